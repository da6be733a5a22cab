// Package models defines the core domain entities: price bars, confirmed market
// signals, holdings, and alerts.
package models

import (
	"errors"
	"math"
	"time"
)

// Interval is the aggregation period of a bar series.
type Interval string

const (
	Daily  Interval = "d"
	Weekly Interval = "w"
)

// Bar is one OHLC candle. Date is the session date at midnight in the market
// timezone; for weekly bars it is the last session date of the week.
type Bar struct {
	Symbol   string    `json:"symbol"`
	Interval Interval  `json:"interval"`
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
}

// Key identifies the bar within its series, e.g. "2025-01-10".
func (b *Bar) Key() string {
	return b.Date.Format("2006-01-02")
}

// Validate checks bar field constraints.
func (b *Bar) Validate() error {
	if b.Symbol == "" {
		return errors.New("bar symbol must not be empty")
	}
	if b.Interval != Daily && b.Interval != Weekly {
		return errors.New("bar interval must be d or w")
	}
	if b.Date.IsZero() {
		return errors.New("bar date must be set")
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("bar prices must be finite")
		}
	}
	if b.Close <= 0 {
		return errors.New("bar close must be positive")
	}
	if b.High < b.Low {
		return errors.New("bar high must be >= low")
	}
	return nil
}
