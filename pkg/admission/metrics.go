package admission

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkrell/admit/pkg/metrics"
)

// MetricsLimiter wraps a Limiter with Prometheus metrics collection.
type MetricsLimiter struct {
	limiter  Limiter
	name     string
	registry *metrics.Registry
	enabled  bool
}

// NewWithMetrics creates a limiter for the given rule table with metrics
// enabled on a private registry, avoiding duplicate-registration conflicts
// between instances.
func NewWithMetrics(rules []Rule, name string) (Limiter, error) {
	registry := prometheus.NewRegistry()
	config := metrics.Config{
		Enabled:  true,
		Registry: registry,
	}
	return NewWithConfigAndMetrics(Config{Rules: rules}, name, config)
}

// NewWithConfigAndMetrics creates a limiter with custom config and metrics.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config) (Limiter, error) {
	base, err := NewWithConfigSafe(config)
	if err != nil {
		return nil, err
	}

	if !metricsConfig.Enabled {
		return base, nil
	}

	registry := metrics.DefaultRegistry
	if metricsConfig.Registry != nil {
		registry = metrics.NewRegistry(metricsConfig.Registry)
	}

	return &MetricsLimiter{
		limiter:  base,
		name:     name,
		registry: registry,
		enabled:  true,
	}, nil
}

// Acquire blocks until the named rule grants an admission slot.
func (ml *MetricsLimiter) Acquire(ctx context.Context, rule string) error {
	start := time.Now()

	if ml.enabled {
		ml.registry.AdmissionRequests.WithLabelValues(ml.name, rule).Inc()
	}

	err := ml.limiter.Acquire(ctx, rule)

	if ml.enabled {
		ml.registry.AdmissionWaitTime.WithLabelValues(ml.name, rule).Observe(time.Since(start).Seconds())
		if err == nil {
			ml.registry.AdmissionGranted.WithLabelValues(ml.name, rule).Inc()
		} else {
			ml.registry.AdmissionRejected.WithLabelValues(ml.name, rule).Inc()
		}
		ml.updateGauges(rule)
	}

	return err
}

// TryAcquire reports whether a slot was granted without blocking.
func (ml *MetricsLimiter) TryAcquire(rule string) (bool, error) {
	if ml.enabled {
		ml.registry.AdmissionRequests.WithLabelValues(ml.name, rule).Inc()
	}

	granted, err := ml.limiter.TryAcquire(rule)

	if ml.enabled {
		switch {
		case err != nil:
			ml.registry.AdmissionRejected.WithLabelValues(ml.name, rule).Inc()
		case granted:
			ml.registry.AdmissionGranted.WithLabelValues(ml.name, rule).Inc()
		default:
			ml.registry.AdmissionDenied.WithLabelValues(ml.name, rule).Inc()
		}
		ml.updateGauges(rule)
	}

	return granted, err
}

// Status returns the remaining budget and reset time for the rule.
func (ml *MetricsLimiter) Status(rule string) (Status, bool) {
	status, ok := ml.limiter.Status(rule)

	if ml.enabled && ok {
		ml.registry.WindowRemaining.WithLabelValues(ml.name, rule).Set(float64(status.Remaining))
	}

	return status, ok
}

// Pending returns the number of callers queued on the rule.
func (ml *MetricsLimiter) Pending(rule string) int {
	pending := ml.limiter.Pending(rule)

	if ml.enabled {
		ml.registry.QueueDepth.WithLabelValues(ml.name, rule).Set(float64(pending))
	}

	return pending
}

// Close shuts down the underlying limiter.
func (ml *MetricsLimiter) Close() error {
	return ml.limiter.Close()
}

// updateGauges refreshes the remaining-budget and queue-depth gauges.
func (ml *MetricsLimiter) updateGauges(rule string) {
	if status, ok := ml.limiter.Status(rule); ok {
		ml.registry.WindowRemaining.WithLabelValues(ml.name, rule).Set(float64(status.Remaining))
	}
	ml.registry.QueueDepth.WithLabelValues(ml.name, rule).Set(float64(ml.limiter.Pending(rule)))
}

// EnableMetrics enables metrics collection.
func (ml *MetricsLimiter) EnableMetrics(config metrics.Config) error {
	ml.enabled = config.Enabled

	if config.Registry != nil {
		ml.registry = metrics.NewRegistry(config.Registry)
	}

	return nil
}

// DisableMetrics disables metrics collection.
func (ml *MetricsLimiter) DisableMetrics() {
	ml.enabled = false
}

// MetricsEnabled returns true if metrics are currently enabled.
func (ml *MetricsLimiter) MetricsEnabled() bool {
	return ml.enabled
}
