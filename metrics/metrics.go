// Package metrics exports Prometheus metrics for performers and linker
// caches.
//
// Instrument wraps a PerformerFactory so that every performer it creates
// reports loads, links, rendered frames and xruns:
//
//	m := metrics.New(metrics.DefaultConfig(), registry)
//	factory := m.Instrument(interp.NewFactory())
//
// The render path only touches pre-resolved counters and never allocates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the metric name prefixes.
type Config struct {
	Namespace string
	Subsystem string

	// LinkDurationBuckets are the histogram buckets for link time, in seconds.
	LinkDurationBuckets []float64
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() *Config {
	return &Config{
		Namespace:           "dsp",
		Subsystem:           "performer",
		LinkDurationBuckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}
}

// Metrics holds the collectors shared by instrumented performers.
type Metrics struct {
	config   *Config
	registry *prometheus.Registry

	loads        *prometheus.CounterVec
	links        *prometheus.CounterVec
	linkDuration *prometheus.HistogramVec
	linked       *prometheus.GaugeVec
	frames       *prometheus.CounterVec
	xruns        *prometheus.CounterVec
	diagnostics  *prometheus.CounterVec
}

// New creates the collectors and registers them with registry. A nil
// registry gets a fresh one.
func New(cfg *Config, registry *prometheus.Registry) *Metrics {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	buckets := cfg.LinkDurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config:   cfg,
		registry: registry,

		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "loads_total",
				Help:      "Program loads by result",
			},
			[]string{"backend", "result"},
		),
		links: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "links_total",
				Help:      "Link attempts by result",
			},
			[]string{"backend", "result"},
		),
		linkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "link_duration_seconds",
				Help:      "Time spent in Link",
				Buckets:   buckets,
			},
			[]string{"backend"},
		),
		linked: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "linked",
				Help:      "Performers currently linked",
			},
			[]string{"backend"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "frames_total",
				Help:      "Frames rendered by Advance",
			},
			[]string{"backend"},
		),
		xruns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "xruns_total",
				Help:      "Endpoint underruns and overruns",
			},
			[]string{"backend"},
		),
		diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "diagnostics_total",
				Help:      "Compile messages reported by Load and Link",
			},
			[]string{"backend", "severity"},
		),
	}

	registry.MustRegister(
		m.loads,
		m.links,
		m.linkDuration,
		m.linked,
		m.frames,
		m.xruns,
		m.diagnostics,
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
