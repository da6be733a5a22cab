package allocation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/trendmonster/internal/models"
)

// DefaultTolerance is the 0.1 percentage point rebalance threshold.
const DefaultTolerance = 0.001

// Options configures an Engine.
type Options struct {
	Bands []Band
	// Tolerance is the rebalance threshold as a fraction. Nil selects
	// DefaultTolerance; an explicit zero rebalances on any change.
	Tolerance   *float64
	TrendFilter bool
}

// Engine evaluates decisions against a band table. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	bands       []Band
	tolerance   decimal.Decimal
	trendFilter bool
}

var standard = &Engine{
	bands:     defaultBands,
	tolerance: decimal.NewFromFloat(DefaultTolerance),
}

// NewEngine validates the options and returns an engine. A nil band table
// selects DefaultBands.
func NewEngine(opts Options) (*Engine, error) {
	bands := opts.Bands
	if bands == nil {
		bands = DefaultBands()
	}
	if err := validateBands(bands); err != nil {
		return nil, fmt.Errorf("invalid band table: %w", err)
	}
	tol := DefaultTolerance
	if opts.Tolerance != nil {
		tol = *opts.Tolerance
	}
	if math.IsNaN(tol) || tol < 0 || tol >= 1 {
		return nil, fmt.Errorf("tolerance must be in [0, 1), got %v", tol)
	}
	own := make([]Band, len(bands))
	copy(own, bands)
	return &Engine{
		bands:       own,
		tolerance:   decimal.NewFromFloat(tol),
		trendFilter: opts.TrendFilter,
	}, nil
}

// ClassifyBand selects the band of the standard table containing the ratio.
func ClassifyBand(vixRatioDaily float64) (Band, error) {
	return standard.ClassifyBand(vixRatioDaily)
}

// Decide evaluates the standard table without the trend filter.
func Decide(signal models.MarketSignal, currentSPY, currentTQQQ float64) (Decision, error) {
	return standard.Decide(signal, currentSPY, currentTQQQ)
}

// Bands returns a copy of the engine's table.
func (e *Engine) Bands() []Band {
	out := make([]Band, len(e.bands))
	copy(out, e.bands)
	return out
}

// TrendFilter reports whether a weekly downtrend forces an all-cash target.
func (e *Engine) TrendFilter() bool {
	return e.trendFilter
}

// ClassifyBand selects the unique band containing the ratio.
func (e *Engine) ClassifyBand(vixRatioDaily float64) (Band, error) {
	return classify(e.bands, vixRatioDaily)
}

// Posture derives the strategy stance. The aggressive edge is the upper edge
// of the LOW band and the defensive edge the upper edge of the ELEVATED band;
// a ratio sitting exactly on the defensive edge is still balanced.
func (e *Engine) Posture(trendUp bool, vixRatio float64) Posture {
	if !trendUp {
		return PostureCash
	}
	switch {
	case vixRatio < e.bands[1].Upper:
		return PostureAggressive
	case vixRatio > e.bands[3].Upper:
		return PostureDefensive
	default:
		return PostureBalanced
	}
}

// Decide maps the confirmed signal and current weights to a target allocation
// and per-asset actions. It is a pure function of its inputs.
func (e *Engine) Decide(signal models.MarketSignal, currentSPY, currentTQQQ float64) (Decision, error) {
	band, err := e.ClassifyBand(signal.VIXRatioDaily)
	if err != nil {
		return Decision{}, err
	}
	if err := checkFraction("current spy", currentSPY); err != nil {
		return Decision{}, err
	}
	if err := checkFraction("current tqqq", currentTQQQ); err != nil {
		return Decision{}, err
	}

	curSPY := decimal.NewFromFloat(currentSPY)
	curTQQQ := decimal.NewFromFloat(currentTQQQ)
	if curSPY.Add(curTQQQ).GreaterThan(one) {
		return Decision{}, fmt.Errorf("%w: current spy + tqqq exceeds 1", ErrInvalidInput)
	}
	curCash := one.Sub(curSPY).Sub(curTQQQ)

	uptrend := signal.WeeklyTrendUp || !e.trendFilter
	tgtSPY := decimal.NewFromFloat(band.SPY)
	tgtTQQQ := decimal.NewFromFloat(band.TQQQ)
	if !uptrend {
		tgtSPY, tgtTQQQ = decimal.Zero, decimal.Zero
	}
	tgtCash := one.Sub(tgtSPY).Sub(tgtTQQQ)

	spyChange := tgtSPY.Sub(curSPY)
	tqqqChange := tgtTQQQ.Sub(curTQQQ)

	return Decision{
		Band:    band,
		Posture: e.Posture(uptrend, signal.VIXRatioDaily),
		Target: Weights{
			SPY:  tgtSPY.InexactFloat64(),
			TQQQ: tgtTQQQ.InexactFloat64(),
			Cash: tgtCash.InexactFloat64(),
		},
		Current: Weights{
			SPY:  currentSPY,
			TQQQ: currentTQQQ,
			Cash: curCash.InexactFloat64(),
		},
		SPY:             AssetChange{Asset: "SPY", Action: actionFor(spyChange), Change: spyChange.InexactFloat64()},
		TQQQ:            AssetChange{Asset: "TQQQ", Action: actionFor(tqqqChange), Change: tqqqChange.InexactFloat64()},
		CashChange:      tgtCash.Sub(curCash).InexactFloat64(),
		RebalanceNeeded: spyChange.Abs().GreaterThan(e.tolerance) || tqqqChange.Abs().GreaterThan(e.tolerance),
		tolerance:       e.tolerance,
	}, nil
}
