// Package metrics provides Prometheus instrumentation for admit components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for admit components.
type Registry struct {
	// Admission metrics
	AdmissionRequests *prometheus.CounterVec
	AdmissionGranted  *prometheus.CounterVec
	AdmissionDenied   *prometheus.CounterVec
	AdmissionRejected *prometheus.CounterVec
	AdmissionWaitTime *prometheus.HistogramVec
	WindowRemaining   *prometheus.GaugeVec
	QueueDepth        *prometheus.GaugeVec
}

// DefaultRegistry is the default metrics registry used by admit components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		AdmissionRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "admit",
				Subsystem: "admission",
				Name:      "requests_total",
				Help:      "Total number of admission requests",
			},
			[]string{"limiter_name", "rule"},
		),

		AdmissionGranted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "admit",
				Subsystem: "admission",
				Name:      "granted_total",
				Help:      "Total number of granted admissions",
			},
			[]string{"limiter_name", "rule"},
		),

		AdmissionDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "admit",
				Subsystem: "admission",
				Name:      "denied_total",
				Help:      "Total number of non-blocking probes denied for lack of budget",
			},
			[]string{"limiter_name", "rule"},
		),

		AdmissionRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "admit",
				Subsystem: "admission",
				Name:      "rejected_total",
				Help:      "Total number of admissions rejected with an error",
			},
			[]string{"limiter_name", "rule"},
		),

		AdmissionWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "admit",
				Subsystem: "admission",
				Name:      "wait_duration_seconds",
				Help:      "Time spent waiting for an admission slot",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"limiter_name", "rule"},
		),

		WindowRemaining: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "admit",
				Subsystem: "admission",
				Name:      "window_remaining",
				Help:      "Remaining budget in the current window",
			},
			[]string{"limiter_name", "rule"},
		),

		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "admit",
				Subsystem: "admission",
				Name:      "queue_depth",
				Help:      "Number of callers waiting for a window rollover",
			},
			[]string{"limiter_name", "rule"},
		),
	}
}
