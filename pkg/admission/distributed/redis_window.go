package distributed

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkrell/admit/pkg/admission"
	aderrors "github.com/mkrell/admit/pkg/common/errors"
)

// redisWindow implements Limiter with one clock-aligned fixed window per
// rule, coordinated through Redis.
type redisWindow struct {
	config Config
	rules  map[string]admission.Rule
	closed atomic.Bool

	// Lua script for atomic check-and-increment per window
	checkAndIncrementScript *redis.Script
}

// newRedisWindow creates the limiter and registers the instance in Redis.
func newRedisWindow(config Config) (Limiter, error) {
	rules := make(map[string]admission.Rule, len(config.Rules))
	for _, r := range config.Rules {
		rules[r.Name] = r
	}

	rw := &redisWindow{
		config:                  config,
		rules:                   rules,
		checkAndIncrementScript: redis.NewScript(luaWindowCheckAndIncrement),
	}

	if err := rw.initialize(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize distributed limiter: %w", err)
	}

	return rw, nil
}

// initialize stores the rule table and registers this instance.
func (rw *redisWindow) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rw.config.RedisTimeout)
	defer cancel()

	pipe := rw.config.Redis.Pipeline()

	for _, r := range rw.rules {
		pipe.HSet(ctx, rw.configKey(r.Name), map[string]interface{}{
			"max_requests": r.MaxRequests,
			"window_ms":    r.Window.Milliseconds(),
		})
		pipe.Expire(ctx, rw.configKey(r.Name), rw.config.KeyTTL)

		pipe.HSetNX(ctx, rw.statsKey(r.Name), "total_requests", 0)
		pipe.HSetNX(ctx, rw.statsKey(r.Name), "allowed_requests", 0)
		pipe.HSetNX(ctx, rw.statsKey(r.Name), "denied_requests", 0)
		pipe.Expire(ctx, rw.statsKey(r.Name), rw.config.KeyTTL)
	}

	pipe.SAdd(ctx, rw.instancesKey(), rw.config.InstanceID)
	pipe.Expire(ctx, rw.instancesKey(), rw.config.KeyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return &RedisError{"initialize", err}
	}
	return nil
}

// Acquire blocks until the named rule grants a shared admission slot.
func (rw *redisWindow) Acquire(ctx context.Context, rule string) error {
	r, ok := rw.rules[rule]
	if !ok {
		return fmt.Errorf("%w: %q", aderrors.ErrUnknownRule, rule)
	}

	for {
		if rw.closed.Load() {
			return aderrors.ErrClosed
		}

		granted, err := rw.tryAcquireRule(ctx, r)
		if err != nil {
			return err
		}
		if granted {
			return nil
		}

		// Sleep until the next shared window boundary. RefreshInterval
		// caps the sleep so a skewed local clock cannot park us forever.
		delay := time.Until(windowResetAt(time.Now(), r.Window))
		if delay <= 0 || delay > r.Window {
			delay = rw.config.RefreshInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// TryAcquire reports whether a shared slot was granted without blocking.
func (rw *redisWindow) TryAcquire(ctx context.Context, rule string) (bool, error) {
	if rw.closed.Load() {
		return false, aderrors.ErrClosed
	}

	r, ok := rw.rules[rule]
	if !ok {
		return false, fmt.Errorf("%w: %q", aderrors.ErrUnknownRule, rule)
	}

	return rw.tryAcquireRule(ctx, r)
}

// tryAcquireRule runs the atomic check-and-increment for one rule.
func (rw *redisWindow) tryAcquireRule(ctx context.Context, r admission.Rule) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, rw.config.RedisTimeout)
	defer cancel()

	now := time.Now()
	ttl := int64(r.Window/time.Second) + 2

	result, err := rw.checkAndIncrementScript.Run(ctx, rw.config.Redis, []string{
		rw.windowKey(r.Name, now, r.Window),
		rw.statsKey(r.Name),
	},
		r.MaxRequests,
		ttl,
	).Result()

	if err != nil {
		if rw.config.FallbackToLocal && rw.config.Local != nil {
			return rw.config.Local.TryAcquire(r.Name)
		}
		return false, &RedisError{"acquire", err}
	}

	allowed, ok := result.(int64)
	return ok && allowed == 1, nil
}

// Status returns the shared remaining budget and reset time for the rule.
func (rw *redisWindow) Status(ctx context.Context, rule string) (*Status, error) {
	r, ok := rw.rules[rule]
	if !ok {
		return nil, fmt.Errorf("%w: %q", aderrors.ErrUnknownRule, rule)
	}

	ctx, cancel := context.WithTimeout(ctx, rw.config.RedisTimeout)
	defer cancel()

	now := time.Now()
	pipe := rw.config.Redis.Pipeline()

	countCmd := pipe.Get(ctx, rw.windowKey(r.Name, now, r.Window))
	statsCmd := pipe.HGetAll(ctx, rw.statsKey(r.Name))
	instancesCmd := pipe.SMembers(ctx, rw.instancesKey())

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, &RedisError{"status", err}
	}

	count, _ := strconv.Atoi(countCmd.Val())
	remaining := r.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}

	statsMap := statsCmd.Val()
	total, _ := strconv.ParseInt(statsMap["total_requests"], 10, 64)
	allowed, _ := strconv.ParseInt(statsMap["allowed_requests"], 10, 64)
	denied, _ := strconv.ParseInt(statsMap["denied_requests"], 10, 64)

	return &Status{
		Remaining:       remaining,
		WindowStart:     windowStart(now, r.Window),
		ResetAt:         windowResetAt(now, r.Window),
		TotalRequests:   total,
		AllowedRequests: allowed,
		DeniedRequests:  denied,
		ActiveInstances: instancesCmd.Val(),
	}, nil
}

// Close removes this instance from the active set. Idempotent.
func (rw *redisWindow) Close() error {
	if rw.closed.Swap(true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), rw.config.RedisTimeout)
	defer cancel()

	return rw.config.Redis.SRem(ctx, rw.instancesKey(), rw.config.InstanceID).Err()
}

func (rw *redisWindow) windowKey(rule string, t time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:%s:window:%d", rw.config.KeyPrefix, rule, windowIndex(t, window))
}

func (rw *redisWindow) configKey(rule string) string {
	return rw.config.KeyPrefix + ":" + rule + ":config"
}

func (rw *redisWindow) statsKey(rule string) string {
	return rw.config.KeyPrefix + ":" + rule + ":stats"
}

func (rw *redisWindow) instancesKey() string {
	return rw.config.KeyPrefix + ":instances"
}

// Lua script for atomic fixed window check-and-increment.
const luaWindowCheckAndIncrement = `
-- KEYS[1]: current window key
-- KEYS[2]: stats key
-- ARGV[1]: max requests per window
-- ARGV[2]: window TTL (seconds)

local window_key = KEYS[1]
local stats_key = KEYS[2]

local max_requests = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current_count = tonumber(redis.call('GET', window_key) or "0")

if current_count + 1 <= max_requests then
    local new_count = redis.call('INCR', window_key)

    -- Set TTL if this is a new window
    if new_count == 1 then
        redis.call('EXPIRE', window_key, ttl)
    end

    redis.call('HINCRBY', stats_key, 'total_requests', 1)
    redis.call('HINCRBY', stats_key, 'allowed_requests', 1)

    return 1 -- allowed
else
    redis.call('HINCRBY', stats_key, 'total_requests', 1)
    redis.call('HINCRBY', stats_key, 'denied_requests', 1)

    return 0 -- denied
end
`
