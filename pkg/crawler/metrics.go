package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the traversal counters.
type Metrics struct {
	taps         *prometheus.CounterVec
	screens      prometheus.Counter
	backFailures prometheus.Counter
	popups       prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics registers the traversal counters on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	return &Metrics{
		registry: registry,

		taps: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagscout_crawl_taps_total",
				Help: "Taps performed, by effectiveness reason",
			},
			[]string{"reason"},
		),
		screens: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "tagscout_crawl_screens_total",
				Help: "Distinct screens explored",
			},
		),
		backFailures: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "tagscout_crawl_back_failures_total",
				Help: "Guarded back navigations that exhausted their retries",
			},
		),
		popups: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "tagscout_crawl_popups_dismissed_total",
				Help: "Interstitial popups dismissed",
			},
		),
	}
}

// Registry returns the registry holding the counters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the counters in Prometheus text format, for the node
// exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
