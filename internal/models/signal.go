package models

import "time"

// MarketSignal is an immutable snapshot of confirmed inputs. Every value comes
// from a closed bar; intrabar values belong in LiveSnapshot.
type MarketSignal struct {
	VIXRatioDaily float64
	WeeklyTrendUp bool

	VIXClose   float64
	VIX3MClose float64

	WeeklyClose float64
	WeeklySMA   float64
	WeeklyRSI   float64

	DailyAsOf  time.Time
	WeeklyAsOf time.Time
}

// DailyKey is the confirmed daily bar the signal was built from.
func (s MarketSignal) DailyKey() string {
	return s.DailyAsOf.Format("2006-01-02")
}

// WeeklyKey is the confirmed weekly bar the signal was built from.
func (s MarketSignal) WeeklyKey() string {
	return s.WeeklyAsOf.Format("2006-01-02")
}

// LiveSnapshot holds the latest, possibly still forming, values. Display only.
type LiveSnapshot struct {
	VIXRatio float64
	SPYClose float64
	AsOf     time.Time
}
