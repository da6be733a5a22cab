package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func labelled(mf *dto.MetricFamily, value string) *dto.Metric {
	for _, m := range mf.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetValue() == value {
				return m
			}
		}
	}
	return nil
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordSignal(0.93, true, 58)
	r.RecordTarget(0.6, 0.4, 0, true)
	r.RecordProviderError("^vix")
	r.RecordProviderError("^vix")
	r.RecordCycle(0.2, nil)
	r.RecordCycle(0.1, errors.New("boom"))
	r.RecordAlert("REBALANCE")

	mfs := gather(t, reg)

	assert.Equal(t, 0.93, mfs["trendmonster_vix_ratio"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, mfs["trendmonster_weekly_trend_up"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, mfs["trendmonster_rebalance_needed"].GetMetric()[0].GetGauge().GetValue())

	weights := mfs["trendmonster_target_weight"]
	require.NotNil(t, weights)
	assert.Equal(t, 0.4, labelled(weights, "tqqq").GetGauge().GetValue())

	errs := labelled(mfs["trendmonster_provider_errors_total"], "^vix")
	require.NotNil(t, errs)
	assert.Equal(t, 2.0, errs.GetCounter().GetValue())

	cycles := mfs["trendmonster_cycle_duration_seconds"]
	require.NotNil(t, cycles)
	assert.Len(t, cycles.GetMetric(), 2)
	assert.Equal(t, uint64(1), labelled(cycles, "error").GetHistogram().GetSampleCount())

	assert.Equal(t, 1.0, labelled(mfs["trendmonster_alerts_sent_total"], "REBALANCE").GetCounter().GetValue())
}

func TestRecorder_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
