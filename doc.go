/*
Package admit provides windowed admission control for rate-limited upstream
APIs, built for clients that must stay inside a broker's published request
quotas.

Admission Control (pkg/admission):
  - admission: In-process multi-rule limiter with fixed windows and a FIFO
    wait queue
  - admission/distributed: Shared budgets across instances with Redis

Configuration (pkg/config):
  - config: YAML rule tables mapping endpoint groups to budgets

Observability (pkg/metrics):
  - metrics: Prometheus counters for admissions, denials, and queue depth

Example usage:

	import (
		"github.com/mkrell/admit/pkg/admission"
	)

	limiter, _ := admission.NewSafe([]admission.Rule{
		{Name: "market_data", MaxRequests: 10, Window: time.Second},
	})
	defer limiter.Close()

	if err := limiter.Acquire(ctx, "market_data"); err != nil {
		return err
	}
	// Call the broker.
*/
package admit
