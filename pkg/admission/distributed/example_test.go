package distributed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkrell/admit/pkg/admission"
)

// Example_basicUsage demonstrates shared admission control through Redis.
func Example_basicUsage() {
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use a test database
	})
	defer func() { _ = rdb.Close() }()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Println("Redis not available, skipping example")
		return
	}

	limiter, err := New(Config{
		Redis:      rdb,
		KeyPrefix:  "example:basic",
		InstanceID: "example_instance_1",
		Rules: []admission.Rule{
			{Name: "market_data", MaxRequests: 5, Window: time.Second},
		},
	})
	if err != nil {
		log.Fatalf("Failed to create limiter: %v", err)
	}
	defer func() { _ = limiter.Close() }()

	fmt.Println("Testing shared admission:")

	for i := 0; i < 7; i++ {
		ok, err := limiter.TryAcquire(ctx, "market_data")
		if err != nil {
			fmt.Printf("Request %d: error: %v\n", i+1, err)
			continue
		}
		if ok {
			fmt.Printf("Request %d: admitted\n", i+1)
		} else {
			fmt.Printf("Request %d: over budget\n", i+1)
		}
	}

	status, err := limiter.Status(ctx, "market_data")
	if err == nil {
		fmt.Printf("Total requests: %d, Allowed: %d, Denied: %d\n",
			status.TotalRequests, status.AllowedRequests, status.DeniedRequests)
	}

	// Output varies based on timing, but the first five requests should be
	// admitted and the rest turned away until the window resets.
}

// Example_multipleInstances demonstrates two instances drawing from one budget.
func Example_multipleInstances() {
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})
	defer func() { _ = rdb.Close() }()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Println("Redis not available, skipping example")
		return
	}

	rules := []admission.Rule{
		{Name: "order_placement", MaxRequests: 4, Window: time.Second},
	}

	cfg := Config{
		Redis:     rdb,
		KeyPrefix: "example:multi",
		Rules:     rules,
	}

	cfg1 := cfg
	cfg1.InstanceID = "server-1"
	lim1, err := New(cfg1)
	if err != nil {
		log.Fatalf("Failed to create limiter: %v", err)
	}
	defer func() { _ = lim1.Close() }()

	cfg2 := cfg
	cfg2.InstanceID = "server-2"
	lim2, err := New(cfg2)
	if err != nil {
		log.Fatalf("Failed to create limiter: %v", err)
	}
	defer func() { _ = lim2.Close() }()

	// Alternate requests between the two instances. Only four total can
	// land in the shared window regardless of which instance asks.
	admitted := 0
	for i := 0; i < 6; i++ {
		lim := lim1
		if i%2 == 1 {
			lim = lim2
		}
		ok, err := lim.TryAcquire(ctx, "order_placement")
		if err == nil && ok {
			admitted++
		}
	}
	fmt.Printf("Admitted across both instances: %d\n", admitted)

	status, err := lim1.Status(ctx, "order_placement")
	if err == nil {
		fmt.Printf("Active instances: %d\n", len(status.ActiveInstances))
	}

	// Output varies based on timing; at most four requests are admitted
	// per window across both instances combined.
}

// Example_fallback demonstrates per-instance fallback when Redis is down.
func Example_fallback() {
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})
	defer func() { _ = rdb.Close() }()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Println("Redis not available, skipping example")
		return
	}

	rules := []admission.Rule{
		{Name: "account_query", MaxRequests: 2, Window: time.Second},
	}

	local, err := admission.NewSafe(rules)
	if err != nil {
		log.Fatalf("Failed to create local limiter: %v", err)
	}
	defer func() { _ = local.Close() }()

	limiter, err := New(Config{
		Redis:           rdb,
		KeyPrefix:       "example:fallback",
		Rules:           rules,
		FallbackToLocal: true,
		Local:           local,
	})
	if err != nil {
		log.Fatalf("Failed to create limiter: %v", err)
	}
	defer func() { _ = limiter.Close() }()

	ok, err := limiter.TryAcquire(ctx, "account_query")
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("Admitted: %v\n", ok)

	// Output varies; with Redis healthy the decision is global, and if
	// Redis drops mid-run each instance enforces the budget on its own.
}
