// Package report renders an evaluation as an ordered list of dashboard rows
// and as the JSON document served by the API.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/trendmonster/internal/allocation"
	"github.com/rewired-gh/trendmonster/internal/monitor"
)

const (
	TrendUp   = "UPTREND"
	TrendDown = "DOWNTREND"
)

// Row is one dashboard line.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

func trend(up bool) string {
	if up {
		return TrendUp
	}
	return TrendDown
}

func change(c allocation.AssetChange) string {
	if c.Action == allocation.Hold {
		return string(c.Action)
	}
	return fmt.Sprintf("%s %s%%", c.Action, decimal.NewFromFloat(c.Change).Abs().Shift(2).StringFixed(1))
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// Rows lists the dashboard in display order. Live values are shown for
// information only and come after the confirmed inputs.
func Rows(eval *monitor.Evaluation) []Row {
	if eval == nil {
		return []Row{{Label: "Status", Value: "No evaluation yet"}}
	}
	s, d := eval.Signal, eval.Decision

	rows := []Row{
		{"Weekly Trend", trend(s.WeeklyTrendUp)},
		{"SPY Weekly Close", fmt.Sprintf("%.2f (SMA %.2f)", s.WeeklyClose, s.WeeklySMA)},
		{"Weekly RSI", fmt.Sprintf("%.1f", s.WeeklyRSI)},
		{"VIX/VIX3M", fmt.Sprintf("%.4f (%s)", s.VIXRatioDaily, d.Band.Level)},
		{"Posture", string(d.Posture)},
		{"Target", d.Target.String()},
		{"Current", d.Current.String()},
		{"SPY", change(d.SPY)},
		{"TQQQ", change(d.TQQQ)},
		{"Rebalance", yesNo(d.RebalanceNeeded)},
		{"Instructions", d.Instructions()},
		{"Daily As Of", day(s.DailyAsOf)},
		{"Weekly As Of", day(s.WeeklyAsOf)},
	}

	if eval.Live.VIXRatio > 0 {
		rows = append(rows, Row{"VIX/VIX3M (live)", fmt.Sprintf("%.4f", eval.Live.VIXRatio)})
	}
	if eval.Live.SPYClose > 0 {
		rows = append(rows, Row{"SPY (live)", fmt.Sprintf("%.2f", eval.Live.SPYClose)})
	}
	return rows
}

// Text renders rows as aligned "label  value" lines.
func Text(rows []Row) string {
	width := 0
	for _, r := range rows {
		if len(r.Label) > width {
			width = len(r.Label)
		}
	}
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%-*s  %s\n", width, r.Label, r.Value)
	}
	return b.String()
}

type Allocation struct {
	SPY  float64 `json:"spy"`
	TQQQ float64 `json:"tqqq"`
	Cash float64 `json:"cash"`
}

type Indicators struct {
	VIXRatio  float64 `json:"vix_ratio"`
	SPYClose  float64 `json:"spy_close"`
	SPYSMA    float64 `json:"spy_sma"`
	WeeklyRSI float64 `json:"weekly_rsi"`
}

type Live struct {
	VIXRatio float64 `json:"vix_ratio"`
	SPYClose float64 `json:"spy_close"`
	AsOf     *string `json:"as_of"`
}

type Timestamps struct {
	SignalGenerated string  `json:"signal_generated"`
	WeeklyDataAsOf  *string `json:"weekly_data_as_of"`
	DailyDataAsOf   *string `json:"daily_data_as_of"`
}

// Signal is the JSON form of an evaluation. Allocation values are percentages.
type Signal struct {
	Trend                 string     `json:"trend"`
	Posture               string     `json:"posture"`
	VIXLevel              string     `json:"vix_level"`
	Allocation            Allocation `json:"allocation"`
	Indicators            Indicators `json:"indicators"`
	RebalanceRequired     bool       `json:"rebalance_required"`
	RebalanceInstructions string     `json:"rebalance_instructions"`
	Timestamps            Timestamps `json:"timestamps"`
	Live                  Live       `json:"live"`
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func stamp(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// SignalJSON builds the API document for eval.
func SignalJSON(eval *monitor.Evaluation) Signal {
	s, d := eval.Signal, eval.Decision
	spy, tqqq, cash := d.Target.Percentages()

	return Signal{
		Trend:      trend(s.WeeklyTrendUp),
		Posture:    string(d.Posture),
		VIXLevel:   string(d.Band.Level),
		Allocation: Allocation{SPY: spy, TQQQ: tqqq, Cash: cash},
		Indicators: Indicators{
			VIXRatio:  round(s.VIXRatioDaily, 4),
			SPYClose:  round(s.WeeklyClose, 2),
			SPYSMA:    round(s.WeeklySMA, 2),
			WeeklyRSI: round(s.WeeklyRSI, 2),
		},
		RebalanceRequired:     d.RebalanceNeeded,
		RebalanceInstructions: d.Instructions(),
		Timestamps: Timestamps{
			SignalGenerated: eval.At.Format(time.RFC3339),
			WeeklyDataAsOf:  stamp(s.WeeklyAsOf),
			DailyDataAsOf:   stamp(s.DailyAsOf),
		},
		Live: Live{
			VIXRatio: round(eval.Live.VIXRatio, 4),
			SPYClose: round(eval.Live.SPYClose, 2),
			AsOf:     stamp(eval.Live.AsOf),
		},
	}
}
