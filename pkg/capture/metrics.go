package capture

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the proxy counters.
type Metrics struct {
	requests *prometheus.CounterVec
	filtered prometheus.Counter
	marks    prometheus.Counter
	sessions prometheus.Counter
	errors   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics registers the proxy counters on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagscout_capture_requests_total",
				Help: "Requests recorded, by traffic category",
			},
			[]string{"category"},
		),
		filtered: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagscout_capture_static_filtered_total",
			Help: "Static asset requests forwarded without recording",
		}),
		marks: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagscout_capture_action_marks_total",
			Help: "User actions marked by the crawler",
		}),
		sessions: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagscout_capture_sessions_total",
			Help: "Capture sessions started",
		}),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagscout_capture_errors_total",
				Help: "Proxy failures, by stage",
			},
			[]string{"stage"},
		),
	}
}

// Handler serves the counters in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
