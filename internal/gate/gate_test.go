package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rewired-gh/trendmonster/internal/models"
)

func TestGate_Observe(t *testing.T) {
	g := New()
	base := models.MarketSignal{VIXRatioDaily: 0.85, WeeklyTrendUp: true, WeeklyClose: 590, WeeklySMA: 540}

	c := g.Observe(base)
	assert.True(t, c.First)
	assert.True(t, c.Any())

	c = g.Observe(base)
	assert.False(t, c.Any(), "unchanged confirmed inputs must not trigger")

	next := base
	next.VIXRatioDaily = 0.91
	c = g.Observe(next)
	assert.True(t, c.DailyChanged)
	assert.False(t, c.WeeklyChanged)
	assert.True(t, c.Any())

	weekly := next
	weekly.WeeklyClose = 530
	weekly.WeeklyTrendUp = false
	c = g.Observe(weekly)
	assert.False(t, c.DailyChanged)
	assert.True(t, c.WeeklyChanged)
	assert.True(t, c.TrendFlipped)
}

func TestGate_PeekDoesNotRecord(t *testing.T) {
	g := New()
	sig := models.MarketSignal{VIXRatioDaily: 1.0}

	assert.True(t, g.Peek(sig).First)
	assert.True(t, g.Peek(sig).First)

	g.Observe(sig)
	assert.False(t, g.Peek(sig).Any())

	g.Reset()
	assert.True(t, g.Peek(sig).First)
}

func TestGate_SMAOnlyChange(t *testing.T) {
	g := New()
	sig := models.MarketSignal{VIXRatioDaily: 0.9, WeeklyClose: 500, WeeklySMA: 480, WeeklyTrendUp: true}
	g.Observe(sig)

	sig.WeeklySMA = 481
	c := g.Observe(sig)
	assert.True(t, c.WeeklyChanged)
	assert.False(t, c.TrendFlipped)
}
