// Package allocation maps confirmed market signals to SPY/TQQQ/cash target
// weights and derives the per-asset rebalance actions.
package allocation

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned for NaN ratios and out-of-range fractions.
// Inputs are rejected, never clamped.
var ErrInvalidInput = errors.New("invalid input")

// VIXLevel classifies the VIX/VIX3M ratio.
type VIXLevel string

const (
	VeryLow  VIXLevel = "VERY_LOW"
	Low      VIXLevel = "LOW"
	Moderate VIXLevel = "MODERATE"
	Elevated VIXLevel = "ELEVATED"
	High     VIXLevel = "HIGH"
)

// Levels lists the VIX levels in band order.
var Levels = []VIXLevel{VeryLow, Low, Moderate, Elevated, High}

var one = decimal.NewFromInt(1)

// Band is one entry of the VIX-ratio lookup table. Lower is inclusive and
// Upper exclusive; the first band starts at -Inf and the last ends at +Inf.
type Band struct {
	Level VIXLevel
	Lower float64
	Upper float64
	SPY   float64
	TQQQ  float64
}

// Contains reports whether the ratio falls inside the band.
func (b Band) Contains(ratio float64) bool {
	return ratio >= b.Lower && (ratio < b.Upper || math.IsInf(b.Upper, 1))
}

// Cash is the residual weight, exact in decimal.
func (b Band) Cash() float64 {
	return one.Sub(decimal.NewFromFloat(b.SPY)).Sub(decimal.NewFromFloat(b.TQQQ)).InexactFloat64()
}

// Weights returns the band's target allocation.
func (b Band) Weights() Weights {
	return Weights{SPY: b.SPY, TQQQ: b.TQQQ, Cash: b.Cash()}
}

func (b Band) String() string {
	lo, hi := "-inf", "+inf"
	if !math.IsInf(b.Lower, -1) {
		lo = fmt.Sprintf("%.2f", b.Lower)
	}
	if !math.IsInf(b.Upper, 1) {
		hi = fmt.Sprintf("%.2f", b.Upper)
	}
	return fmt.Sprintf("%s [%s, %s) %s", b.Level, lo, hi, b.Weights())
}

var defaultBands = []Band{
	{Level: VeryLow, Lower: math.Inf(-1), Upper: 0.80, SPY: 0.30, TQQQ: 0.70},
	{Level: Low, Lower: 0.80, Upper: 0.90, SPY: 0.50, TQQQ: 0.50},
	{Level: Moderate, Lower: 0.90, Upper: 0.95, SPY: 0.60, TQQQ: 0.40},
	{Level: Elevated, Lower: 0.95, Upper: 1.05, SPY: 0.75, TQQQ: 0.25},
	{Level: High, Lower: 1.05, Upper: math.Inf(1), SPY: 0.85, TQQQ: 0.15},
}

// DefaultBands returns a copy of the standard five-band table.
func DefaultBands() []Band {
	out := make([]Band, len(defaultBands))
	copy(out, defaultBands)
	return out
}

// DefaultThresholds returns the interior band edges of the standard table.
func DefaultThresholds() []float64 {
	return []float64{0.80, 0.90, 0.95, 1.05}
}

// NewBands builds a five-band table from four ascending interior edges and
// one weight pair per band.
func NewBands(thresholds []float64, weights []Weights) ([]Band, error) {
	if len(thresholds) != len(Levels)-1 {
		return nil, fmt.Errorf("need %d thresholds, got %d", len(Levels)-1, len(thresholds))
	}
	if len(weights) != len(Levels) {
		return nil, fmt.Errorf("need %d weight pairs, got %d", len(Levels), len(weights))
	}
	bands := make([]Band, len(Levels))
	for i, level := range Levels {
		lower, upper := math.Inf(-1), math.Inf(1)
		if i > 0 {
			lower = thresholds[i-1]
		}
		if i < len(thresholds) {
			upper = thresholds[i]
		}
		bands[i] = Band{Level: level, Lower: lower, Upper: upper, SPY: weights[i].SPY, TQQQ: weights[i].TQQQ}
	}
	if err := validateBands(bands); err != nil {
		return nil, err
	}
	return bands, nil
}

func validateBands(bands []Band) error {
	if len(bands) != len(Levels) {
		return fmt.Errorf("band table must have %d bands, got %d", len(Levels), len(bands))
	}
	if !math.IsInf(bands[0].Lower, -1) || !math.IsInf(bands[len(bands)-1].Upper, 1) {
		return errors.New("band table must be open-ended at both tails")
	}
	for i, b := range bands {
		if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) || b.Lower >= b.Upper {
			return fmt.Errorf("band %s has an empty range", b.Level)
		}
		if i > 0 && bands[i-1].Upper != b.Lower {
			return fmt.Errorf("band %s does not start where %s ends", b.Level, bands[i-1].Level)
		}
		if err := checkFraction(string(b.Level)+" spy", b.SPY); err != nil {
			return err
		}
		if err := checkFraction(string(b.Level)+" tqqq", b.TQQQ); err != nil {
			return err
		}
		if decimal.NewFromFloat(b.SPY).Add(decimal.NewFromFloat(b.TQQQ)).GreaterThan(one) {
			return fmt.Errorf("band %s weights exceed 100%%", b.Level)
		}
	}
	return nil
}

func classify(bands []Band, ratio float64) (Band, error) {
	if math.IsNaN(ratio) {
		return Band{}, fmt.Errorf("%w: vix ratio is NaN", ErrInvalidInput)
	}
	for _, b := range bands {
		if b.Contains(ratio) {
			return b, nil
		}
	}
	return Band{}, fmt.Errorf("%w: vix ratio %v matches no band", ErrInvalidInput, ratio)
}

func checkFraction(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s fraction %v outside [0, 1]", ErrInvalidInput, name, v)
	}
	return nil
}
