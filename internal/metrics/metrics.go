// Package metrics exports reactive and fetch activity as Prometheus
// collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Config struct {
	// Namespace prefixes every metric name (default "vyes").
	Namespace string
	// Buckets are the histogram buckets for drain and fetch durations.
	Buckets []float64
	// Registry receives the collectors (default prometheus.DefaultRegisterer).
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(ns string) Option { return func(c *Config) { c.Namespace = ns } }

func WithBuckets(b []float64) Option { return func(c *Config) { c.Buckets = b } }

func WithRegistry(r prometheus.Registerer) Option { return func(c *Config) { c.Registry = r } }

// Metrics implements reactive.Observer and fetch.Observer.
type Metrics struct {
	computations  prometheus.Gauge
	drains        prometheus.Counter
	runs          prometheus.Counter
	drainDuration prometheus.Histogram

	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
}

func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "vyes",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)
	return &Metrics{
		computations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "computations",
			Help:      "Registered reactive computations",
		}),
		drains: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "drains_total",
			Help:      "Drains that ran at least one computation",
		}),
		runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "computation_runs_total",
			Help:      "Computations run by drains",
		}),
		drainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "drain_duration_seconds",
			Help:      "Time spent per drain",
			Buckets:   cfg.Buckets,
		}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "fetches_total",
			Help:      "Component fetches by result",
		}, []string{"result"}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent loading uncached components",
			Buckets:   cfg.Buckets,
		}),
	}
}

func (m *Metrics) Watched()  { m.computations.Inc() }
func (m *Metrics) Canceled() { m.computations.Dec() }

func (m *Metrics) Drained(ran int, elapsed time.Duration) {
	m.drains.Inc()
	m.runs.Add(float64(ran))
	m.drainDuration.Observe(elapsed.Seconds())
}

// Fetched counts a fetch as "hit", "miss" or "error". Only misses are
// timed.
func (m *Metrics) Fetched(_ string, d time.Duration, cached bool, err error) {
	switch {
	case err != nil:
		m.fetches.WithLabelValues("error").Inc()
	case cached:
		m.fetches.WithLabelValues("hit").Inc()
	default:
		m.fetches.WithLabelValues("miss").Inc()
		m.fetchDuration.Observe(d.Seconds())
	}
}
