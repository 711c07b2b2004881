// Package distributed provides Redis-coordinated admission control across
// multiple application instances.
//
// When several processes share a single broker API key, the broker counts
// their requests against one quota. Per-instance limiting would require
// dividing the budget up front; this package instead keeps one shared
// counter per rule in Redis, so any split of traffic across instances stays
// within the global budget.
//
// # Overview
//
// The package implements a shared fixed-window counter per rule. Admission
// is decided by an atomic Lua check-and-increment, so two instances can
// never jointly overspend a window even under concurrent load.
//
// Unlike the in-process limiter in the parent package, windows here are
// aligned to fixed clock boundaries (multiples of the rule's window length
// since the Unix epoch) rather than anchored to the first request. Clock
// alignment lets every instance compute the current window independently,
// with no coordination beyond the shared counter. The trade-off is that a
// rule's first window may be shorter than its nominal length.
//
// # Quick Start
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	limiter, err := distributed.New(distributed.Config{
//		Redis:     rdb,
//		KeyPrefix: "broker",
//		Rules: []admission.Rule{
//			{Name: "market_data", MaxRequests: 10, Window: time.Second},
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer limiter.Close()
//
//	ctx := context.Background()
//	if err := limiter.Acquire(ctx, "market_data"); err != nil {
//		return err
//	}
//	// Safe to call the broker now.
//
// # Multiple Instances
//
// Instances sharing a KeyPrefix share budgets. Each instance registers its
// InstanceID in Redis so Status can report who is active:
//
//	cfg1 := cfg
//	cfg1.InstanceID = "server-1"
//	lim1, _ := distributed.New(cfg1)
//
//	cfg2 := cfg
//	cfg2.InstanceID = "server-2"
//	lim2, _ := distributed.New(cfg2)
//
//	// Both draw from the same 10-per-second budget.
//
// # Fallback Strategy
//
// With FallbackToLocal enabled, admission decisions fall back to a local
// in-process limiter when Redis is unreachable:
//
//	local, _ := admission.NewSafe(rules)
//
//	cfg := distributed.Config{
//		Redis:           rdb,
//		KeyPrefix:       "broker",
//		Rules:           rules,
//		FallbackToLocal: true,
//		Local:           local,
//	}
//
// During a fallback each instance enforces the full budget on its own, so
// aggregate traffic can exceed the global limit until Redis recovers. For
// strict enforcement leave FallbackToLocal disabled and treat a RedisError
// from Acquire as a denial.
//
// # Ordering
//
// Acquire blocks until a shared slot is granted, polling at window
// boundaries. Slots are first-come at Redis: ordering is FIFO within one
// instance but best-effort across instances. Callers that need strict
// cross-instance FIFO should funnel requests through a single process and
// use the in-process limiter there.
package distributed
