/*
Package metrics provides Prometheus instrumentation for admit components.

The Registry struct holds all metric vectors used across the library.
Components accept a metrics.Config and record into either the
DefaultRegistry (backed by prometheus.DefaultRegisterer) or a custom
registry, which keeps tests and multi-limiter processes free of
duplicate-registration conflicts:

	registry := prometheus.NewRegistry()
	cfg := metrics.Config{Enabled: true, Registry: registry}

	limiter := admission.NewWithMetrics(rules, "broker", cfg)

All admission metrics are labelled with the limiter name and the rule, so
one scrape distinguishes market-data traffic from order placement.
*/
package metrics
