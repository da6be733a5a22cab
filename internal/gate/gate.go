// Package gate debounces evaluations so a decision runs only when a confirmed
// input actually changes.
package gate

import (
	"sync"

	"github.com/rewired-gh/trendmonster/internal/models"
)

// Change reports what moved since the previous confirmed signal.
type Change struct {
	First         bool
	DailyChanged  bool
	WeeklyChanged bool
	TrendFlipped  bool
}

// Any reports whether a decision should be recomputed.
func (c Change) Any() bool {
	return c.First || c.DailyChanged || c.WeeklyChanged
}

type snapshot struct {
	vixRatio    float64
	weeklyClose float64
	weeklySMA   float64
	trendUp     bool
}

// Gate remembers the last confirmed daily VIX ratio and weekly close/SMA.
// Its state lives in memory only.
type Gate struct {
	mu   sync.Mutex
	last *snapshot
}

func New() *Gate {
	return &Gate{}
}

func snapshotOf(signal models.MarketSignal) snapshot {
	return snapshot{
		vixRatio:    signal.VIXRatioDaily,
		weeklyClose: signal.WeeklyClose,
		weeklySMA:   signal.WeeklySMA,
		trendUp:     signal.WeeklyTrendUp,
	}
}

func diff(prev *snapshot, cur snapshot) Change {
	if prev == nil {
		return Change{First: true}
	}
	return Change{
		DailyChanged:  cur.vixRatio != prev.vixRatio,
		WeeklyChanged: cur.weeklyClose != prev.weeklyClose || cur.weeklySMA != prev.weeklySMA || cur.trendUp != prev.trendUp,
		TrendFlipped:  cur.trendUp != prev.trendUp,
	}
}

// Observe records signal as the latest confirmed input and reports the change.
func (g *Gate) Observe(signal models.MarketSignal) Change {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := snapshotOf(signal)
	change := diff(g.last, cur)
	g.last = &cur
	return change
}

// Peek reports what Observe would return without recording signal.
func (g *Gate) Peek(signal models.MarketSignal) Change {
	g.mu.Lock()
	defer g.mu.Unlock()
	return diff(g.last, snapshotOf(signal))
}

// Reset forgets the last confirmed signal.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.last = nil
	g.mu.Unlock()
}
