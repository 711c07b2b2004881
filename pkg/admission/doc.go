/*
Package admission provides a multi-rule, windowed admission-control limiter
for gating outbound calls against a rate-limited API.

Each named rule carries a fixed budget per time window. A caller asks for
admission before issuing a call; under budget the grant is immediate, over
budget the caller is parked in FIFO order and released automatically when
the window rolls over. The budget is never exceeded within a window and no
caller is starved: a parked caller is always either admitted or rejected
with ErrShutdown on close.

	limiter, err := admission.NewSafe([]admission.Rule{
		{Name: "market_data", MaxRequests: 10, Window: time.Second},
		{Name: "order_placement", MaxRequests: 2, Window: time.Second},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer limiter.Close()

	// Blocks until the rule has budget, then issue the call.
	if err := limiter.Acquire(ctx, "market_data"); err != nil {
		return err
	}
	resp, err := client.FetchQuotes(ctx)

Windows are anchored to traffic, not to the wall clock: when a request
finds the window expired it starts a fresh window at its own timestamp.
After an idle period the first request therefore always opens a full
window. Backlogs larger than one window's budget drain across multiple
windows, which is intentional backpressure.

Status provides read-only introspection without consuming budget:

	if s, ok := limiter.Status("market_data"); ok {
		fmt.Printf("%d calls left until %s\n", s.Remaining, s.ResetAt)
	}

For Prometheus instrumentation wrap the limiter with NewWithMetrics or
NewWithConfigAndMetrics. For budgets shared across processes see the
distributed subpackage.
*/
package admission
