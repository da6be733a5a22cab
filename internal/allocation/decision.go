package allocation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Action is the trade direction for one asset.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Posture summarizes the strategy stance.
type Posture string

const (
	PostureCash       Posture = "CASH"
	PostureAggressive Posture = "AGGRESSIVE"
	PostureBalanced   Posture = "BALANCED"
	PostureDefensive  Posture = "DEFENSIVE"
)

// Weights is an SPY/TQQQ/cash split expressed as fractions.
type Weights struct {
	SPY  float64 `json:"spy"`
	TQQQ float64 `json:"tqqq"`
	Cash float64 `json:"cash"`
}

// Percentages returns the weights scaled to 0-100.
func (w Weights) Percentages() (spy, tqqq, cash float64) {
	hundred := decimal.NewFromInt(100)
	return decimal.NewFromFloat(w.SPY).Mul(hundred).InexactFloat64(),
		decimal.NewFromFloat(w.TQQQ).Mul(hundred).InexactFloat64(),
		decimal.NewFromFloat(w.Cash).Mul(hundred).InexactFloat64()
}

func (w Weights) String() string {
	return fmt.Sprintf("SPY: %s%% | TQQQ: %s%% | Cash: %s%%", pct(w.SPY, 0), pct(w.TQQQ, 0), pct(w.Cash, 0))
}

// AssetChange is the move required in one asset. Change is target - current.
type AssetChange struct {
	Asset  string  `json:"asset"`
	Action Action  `json:"action"`
	Change float64 `json:"change"`
}

// Decision is the derived output of one evaluation.
type Decision struct {
	Band            Band
	Posture         Posture
	Target          Weights
	Current         Weights
	SPY             AssetChange
	TQQQ            AssetChange
	CashChange      float64
	RebalanceNeeded bool

	tolerance decimal.Decimal
}

// Instructions renders the human-readable rebalance order.
func (d Decision) Instructions() string {
	if !d.RebalanceNeeded {
		return "No rebalance required. Current allocation is optimal."
	}
	var parts []string
	for _, c := range []AssetChange{d.SPY, d.TQQQ} {
		if c.Action == Hold || !d.beyondTolerance(c.Change) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s%% %s", c.Action, pct(abs(c.Change), 1), c.Asset))
	}
	if d.beyondTolerance(d.CashChange) {
		if d.CashChange > 0 {
			parts = append(parts, fmt.Sprintf("Move %s%% to Cash", pct(d.CashChange, 1)))
		} else {
			parts = append(parts, fmt.Sprintf("Deploy %s%% from Cash", pct(-d.CashChange, 1)))
		}
	}
	return "Execute at next market open: " + strings.Join(parts, " | ")
}

func (d Decision) beyondTolerance(change float64) bool {
	return decimal.NewFromFloat(change).Abs().GreaterThan(d.tolerance)
}

func actionFor(change decimal.Decimal) Action {
	switch change.Sign() {
	case 1:
		return Buy
	case -1:
		return Sell
	default:
		return Hold
	}
}

func pct(fraction float64, places int32) string {
	return decimal.NewFromFloat(fraction).Mul(decimal.NewFromInt(100)).StringFixed(places)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
