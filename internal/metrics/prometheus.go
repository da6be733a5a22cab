package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements monitor.Recorder using Prometheus.
type Recorder struct {
	vixRatio       prometheus.Gauge
	trendUp        prometheus.Gauge
	weeklyRSI      prometheus.Gauge
	targetWeight   *prometheus.GaugeVec
	rebalance      prometheus.Gauge
	cycleDuration  *prometheus.HistogramVec
	providerErrors *prometheus.CounterVec
	alertsSent     *prometheus.CounterVec
}

// New creates a recorder registered with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		vixRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "trendmonster_vix_ratio",
			Help: "Confirmed daily VIX/VIX3M ratio",
		}),
		trendUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "trendmonster_weekly_trend_up",
			Help: "1 when the confirmed weekly close is above its SMA",
		}),
		weeklyRSI: f.NewGauge(prometheus.GaugeOpts{
			Name: "trendmonster_weekly_rsi",
			Help: "Confirmed weekly RSI",
		}),
		targetWeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trendmonster_target_weight",
			Help: "Target allocation fraction per asset",
		}, []string{"asset"}),
		rebalance: f.NewGauge(prometheus.GaugeOpts{
			Name: "trendmonster_rebalance_needed",
			Help: "1 when the latest decision requires a rebalance",
		}),
		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendmonster_cycle_duration_seconds",
			Help:    "Duration of evaluation cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		providerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trendmonster_provider_errors_total",
			Help: "Market data fetch failures per symbol",
		}, []string{"symbol"}),
		alertsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trendmonster_alerts_sent_total",
			Help: "Alerts delivered per kind",
		}, []string{"kind"}),
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RecordSignal records the confirmed inputs of an evaluation.
func (r *Recorder) RecordSignal(vixRatio float64, trendUp bool, weeklyRSI float64) {
	r.vixRatio.Set(vixRatio)
	r.trendUp.Set(boolGauge(trendUp))
	r.weeklyRSI.Set(weeklyRSI)
}

// RecordTarget records the target allocation of a decision.
func (r *Recorder) RecordTarget(spy, tqqq, cash float64, rebalance bool) {
	r.targetWeight.WithLabelValues("spy").Set(spy)
	r.targetWeight.WithLabelValues("tqqq").Set(tqqq)
	r.targetWeight.WithLabelValues("cash").Set(cash)
	r.rebalance.Set(boolGauge(rebalance))
}

// RecordProviderError counts a failed fetch.
func (r *Recorder) RecordProviderError(symbol string) {
	r.providerErrors.WithLabelValues(symbol).Inc()
}

// RecordCycle records cycle latency in seconds.
func (r *Recorder) RecordCycle(seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.cycleDuration.WithLabelValues(result).Observe(seconds)
}

// RecordAlert counts a delivered alert.
func (r *Recorder) RecordAlert(kind string) {
	r.alertsSent.WithLabelValues(kind).Inc()
}
