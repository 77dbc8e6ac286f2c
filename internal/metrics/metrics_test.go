package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/delaneyj/vyes/internal/metrics"
	"github.com/delaneyj/vyes/reactive"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string][]*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string][]*dto.Metric{}
	for _, f := range families {
		out[f.GetName()] = f.GetMetric()
	}
	return out
}

func TestSystemObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace("test"))
	sys := reactive.NewSystem(reactive.WithObserver(m))

	obj := sys.NewObject(map[string]any{"n": 1.0}, nil)
	h := sys.Watch(func() { obj.Get("n") })
	sys.Watch(func() { obj.Get("n") })
	obj.Set("n", 2.0)
	require.Equal(t, 2, sys.Drain())
	sys.Cancel(h)

	got := gather(t, reg)
	assert.Equal(t, 1.0, got["test_computations"][0].GetGauge().GetValue())
	assert.Equal(t, 1.0, got["test_drains_total"][0].GetCounter().GetValue())
	assert.Equal(t, 2.0, got["test_computation_runs_total"][0].GetCounter().GetValue())
	assert.Equal(t, uint64(1), got["test_drain_duration_seconds"][0].GetHistogram().GetSampleCount())
}

func TestFetchObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))

	m.Fetched("/a.html", time.Millisecond, false, nil)
	m.Fetched("/a.html", 0, true, nil)
	m.Fetched("/a.html", 0, true, nil)
	m.Fetched("/b.html", time.Millisecond, false, errors.New("missing"))

	results := map[string]float64{}
	for _, metric := range gather(t, reg)["vyes_fetches_total"] {
		for _, l := range metric.GetLabel() {
			if l.GetName() == "result" {
				results[l.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"miss": 1, "hit": 2, "error": 1}, results)
	assert.Equal(t, uint64(1), gather(t, reg)["vyes_fetch_duration_seconds"][0].GetHistogram().GetSampleCount())
}
