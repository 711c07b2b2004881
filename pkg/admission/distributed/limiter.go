package distributed

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkrell/admit/pkg/admission"
)

// Limiter enforces one shared admission budget per rule across multiple
// application instances, using Redis as the coordination backend. This is
// the multi-process counterpart of admission.Limiter for deployments where
// several processes share a single broker API key.
type Limiter interface {
	// Acquire blocks until the named rule grants an admission slot in the
	// shared budget. Slots are first-come at Redis; FIFO order holds per
	// instance but is best-effort across instances.
	Acquire(ctx context.Context, rule string) error

	// TryAcquire reports whether a shared slot was granted without blocking.
	TryAcquire(ctx context.Context, rule string) (bool, error)

	// Status returns the shared remaining budget and reset time for the rule.
	Status(ctx context.Context, rule string) (*Status, error)

	// Close removes this instance from the active set and releases resources.
	Close() error
}

// Status holds the shared state of one rule's current window.
type Status struct {
	Remaining       int
	WindowStart     time.Time
	ResetAt         time.Time
	TotalRequests   int64
	AllowedRequests int64
	DeniedRequests  int64
	ActiveInstances []string
}

// Config holds configuration for the distributed limiter.
type Config struct {
	// Redis client for coordination
	Redis redis.UniversalClient

	// KeyPrefix is the Redis key prefix for this limiter
	KeyPrefix string

	// Rules is the shared rule table. Budgets apply across all instances.
	Rules []admission.Rule

	// InstanceID uniquely identifies this application instance
	InstanceID string

	// FallbackToLocal enables per-instance limiting if Redis is unavailable
	FallbackToLocal bool

	// Local is used when Redis is unavailable (if FallbackToLocal is true).
	// Note that a local fallback enforces the budget per instance, not
	// globally.
	Local admission.Limiter

	// RedisTimeout is the timeout for Redis operations
	RedisTimeout time.Duration

	// RefreshInterval caps how long Acquire sleeps between retries when
	// the window boundary cannot be trusted (defaults to 100ms)
	RefreshInterval time.Duration

	// KeyTTL is how long Redis keys should live (defaults to 1 hour)
	KeyTTL time.Duration
}

// DefaultConfig returns a default distributed limiter configuration.
func DefaultConfig() Config {
	return Config{
		InstanceID:      generateInstanceID(),
		FallbackToLocal: true,
		RedisTimeout:    500 * time.Millisecond,
		RefreshInterval: 100 * time.Millisecond,
		KeyTTL:          time.Hour,
	}
}

// New creates a new Redis-coordinated admission limiter.
//
// Unlike the in-process limiter, windows here are aligned to fixed clock
// boundaries (multiples of each rule's window length since the epoch) so
// that every instance computes the same window without coordination.
func New(config Config) (Limiter, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = applyConfigDefaults(config)
	return newRedisWindow(config)
}

// validateConfig validates the limiter configuration.
func validateConfig(config Config) error {
	if config.Redis == nil {
		return &ConfigError{"redis client is required"}
	}
	if config.KeyPrefix == "" {
		return &ConfigError{"key prefix is required"}
	}
	if len(config.Rules) == 0 {
		return &ConfigError{"at least one rule is required"}
	}
	for _, r := range config.Rules {
		if r.Name == "" {
			return &ConfigError{"rule name cannot be empty"}
		}
		if r.MaxRequests <= 0 {
			return &ConfigError{"rule " + r.Name + ": maxRequests must be positive"}
		}
		if r.Window <= 0 {
			return &ConfigError{"rule " + r.Name + ": window must be positive"}
		}
	}
	if config.FallbackToLocal && config.Local == nil {
		return &ConfigError{"fallback enabled but no local limiter provided"}
	}
	return nil
}

// applyConfigDefaults sets default values for unspecified config fields.
func applyConfigDefaults(config Config) Config {
	if config.InstanceID == "" {
		config.InstanceID = generateInstanceID()
	}
	if config.RedisTimeout == 0 {
		config.RedisTimeout = 500 * time.Millisecond
	}
	if config.RefreshInterval == 0 {
		config.RefreshInterval = 100 * time.Millisecond
	}
	if config.KeyTTL == 0 {
		config.KeyTTL = time.Hour
	}
	return config
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "distributed admission config error: " + e.Message
}

// RedisError represents a Redis operation error.
type RedisError struct {
	Operation string
	Err       error
}

func (e *RedisError) Error() string {
	return "redis error in " + e.Operation + ": " + e.Err.Error()
}

func (e *RedisError) Unwrap() error {
	return e.Err
}
