// Package indicators computes the upstream inputs of the allocation engine
// from confirmed closes.
package indicators

import (
	"errors"
	"fmt"
	"math"
)

// NeutralRSI is reported when there are too few closes.
const NeutralRSI = 50.0

// VIXRatio returns vix / vix3m.
func VIXRatio(vix, vix3m float64) (float64, error) {
	if vix3m == 0 {
		return 0, errors.New("vix3m cannot be zero")
	}
	if math.IsNaN(vix) || math.IsNaN(vix3m) || vix <= 0 || vix3m < 0 {
		return 0, fmt.Errorf("vix inputs must be positive, got vix=%v vix3m=%v", vix, vix3m)
	}
	return vix / vix3m, nil
}

// SMA is the simple moving average of the last n closes.
func SMA(closes []float64, n int) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("sma period must be positive, got %d", n)
	}
	if len(closes) < n {
		return 0, fmt.Errorf("sma(%d) needs %d closes, have %d", n, n, len(closes))
	}
	var sum float64
	for _, c := range closes[len(closes)-n:] {
		sum += c
	}
	return sum / float64(n), nil
}

// RSI uses simple averages of gains and losses over the last n changes.
func RSI(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n+1 {
		return NeutralRSI
	}
	var gains, losses float64
	for i := len(closes) - n; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	if losses == 0 {
		return 100
	}
	rs := (gains / float64(n)) / (losses / float64(n))
	return 100 - 100/(1+rs)
}

// TrendUp reports an uptrend when the weekly close is above its SMA.
func TrendUp(close, sma float64) bool {
	return close > sma
}
