package models

import "time"

// AlertKind names the logical event an alert reports.
type AlertKind string

const (
	AlertRebalance      AlertKind = "REBALANCE"
	AlertTrendChange    AlertKind = "TREND_CHANGE"
	AlertVIXLevelChange AlertKind = "VIX_LEVEL_CHANGE"
)

// Alert is a notification produced by an evaluation. BarKey names the
// confirmed bar it belongs to; one alert per (Kind, BarKey) is ever sent.
type Alert struct {
	ID         string
	Kind       AlertKind
	BarKey     string
	Title      string
	Message    string
	DetectedAt time.Time
}

// DedupeKey identifies the logical event for once-per-bar delivery.
func (a Alert) DedupeKey() string {
	return string(a.Kind) + "@" + a.BarKey
}
