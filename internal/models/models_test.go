package models

import (
	"math"
	"testing"
	"time"
)

func TestBarValidate(t *testing.T) {
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		bar     Bar
		wantErr bool
	}{
		{
			name:    "valid bar",
			bar:     Bar{Symbol: "^vix", Interval: Daily, Date: day, Open: 15, High: 16, Low: 14, Close: 15.5},
			wantErr: false,
		},
		{
			name:    "empty symbol",
			bar:     Bar{Interval: Daily, Date: day, Open: 15, High: 16, Low: 14, Close: 15.5},
			wantErr: true,
		},
		{
			name:    "unknown interval",
			bar:     Bar{Symbol: "^vix", Interval: "m", Date: day, Open: 15, High: 16, Low: 14, Close: 15.5},
			wantErr: true,
		},
		{
			name:    "missing date",
			bar:     Bar{Symbol: "^vix", Interval: Daily, Open: 15, High: 16, Low: 14, Close: 15.5},
			wantErr: true,
		},
		{
			name:    "non-positive close",
			bar:     Bar{Symbol: "spy.us", Interval: Weekly, Date: day, Close: 0},
			wantErr: true,
		},
		{
			name:    "nan price",
			bar:     Bar{Symbol: "spy.us", Interval: Weekly, Date: day, High: math.NaN(), Close: 500},
			wantErr: true,
		},
		{
			name:    "high below low",
			bar:     Bar{Symbol: "spy.us", Interval: Weekly, Date: day, Open: 500, High: 490, Low: 495, Close: 500},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bar.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Bar.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHoldingsValidate(t *testing.T) {
	tests := []struct {
		name     string
		holdings Holdings
		wantErr  bool
	}{
		{"all cash", AllCash(), false},
		{"fully invested", Holdings{SPY: 0.75, TQQQ: 0.25}, false},
		{"partly cash", Holdings{SPY: 0.5}, false},
		{"negative spy", Holdings{SPY: -0.1, TQQQ: 0.5}, true},
		{"tqqq above one", Holdings{TQQQ: 1.5}, true},
		{"nan spy", Holdings{SPY: math.NaN()}, true},
		{"over allocated", Holdings{SPY: 0.6, TQQQ: 0.6}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.holdings.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Holdings.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHoldingsCash(t *testing.T) {
	h := Holdings{SPY: 0.5, TQQQ: 0.25}
	if got := h.Cash(); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("Cash() = %f, want 0.25", got)
	}
}

func TestAlertDedupeKey(t *testing.T) {
	a := Alert{Kind: AlertRebalance, BarKey: "2025-01-10"}
	if got := a.DedupeKey(); got != "REBALANCE@2025-01-10" {
		t.Errorf("DedupeKey() = %q", got)
	}
}

func TestParseHoldings(t *testing.T) {
	tests := []struct {
		spy, tqqq string
		want      Holdings
		wantErr   bool
	}{
		{"0.6", "0.4", Holdings{SPY: 0.6, TQQQ: 0.4}, false},
		{"30%", "70%", Holdings{SPY: 0.3, TQQQ: 0.7}, false},
		{" 0.5 ", "0", Holdings{SPY: 0.5}, false},
		{"abc", "0.4", Holdings{}, true},
		{"0.8", "0.8", Holdings{}, true},
		{"-10%", "50%", Holdings{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.spy+"/"+tt.tqqq, func(t *testing.T) {
			got, err := ParseHoldings(tt.spy, tt.tqqq)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHoldings() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (got.SPY != tt.want.SPY || got.TQQQ != tt.want.TQQQ) {
				t.Errorf("ParseHoldings() = %v/%v, want %v/%v", got.SPY, got.TQQQ, tt.want.SPY, tt.want.TQQQ)
			}
		})
	}
}
