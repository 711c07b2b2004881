package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	aderrors "github.com/mkrell/admit/pkg/common/errors"
	"github.com/mkrell/admit/pkg/common/validation"
)

// Rule defines the admission budget for one named category of calls.
// Rules are immutable once the limiter is constructed.
type Rule struct {
	// Name uniquely identifies the rule, e.g. "market_data".
	Name string

	// MaxRequests is the number of admissions granted per window.
	MaxRequests int

	// Window is the length of one budget window.
	Window time.Duration
}

// Status reports the observable state of one rule's current window.
type Status struct {
	// Remaining is the unused budget in the current window, never negative.
	Remaining int

	// ResetAt is when the current window ends and the budget replenishes.
	// It is constant for the lifetime of the window and strictly increases
	// across rollovers.
	ResetAt time.Time
}

// Limiter gates callers against per-rule windowed budgets. A caller that
// exceeds a rule's budget is parked in FIFO order and released when the
// window rolls over, so admission is deferred rather than refused.
type Limiter interface {
	// Acquire blocks until the named rule grants an admission slot.
	// It returns ErrUnknownRule for unregistered rule names, ErrClosed if
	// the limiter has shut down, ErrShutdown if the limiter shuts down
	// while the caller is queued, or the context error if ctx expires
	// first. A context-canceled caller leaves the queue without consuming
	// budget and without disturbing the order of the remaining waiters.
	Acquire(ctx context.Context, rule string) error

	// TryAcquire reports whether a slot was granted without blocking.
	// It consumes budget only when it returns true.
	TryAcquire(rule string) (bool, error)

	// Status returns the remaining budget and reset time for the rule.
	// The second return value is false for unregistered rules; status
	// queries are diagnostic and never fail.
	Status(rule string) (Status, bool)

	// Pending returns the number of callers queued on the rule.
	Pending(rule string) int

	// Close shuts the limiter down: every armed rollover timer is
	// released and every queued caller is rejected with ErrShutdown.
	// Close is idempotent. After Close, Acquire and TryAcquire fail
	// with ErrClosed.
	Close() error
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds configuration options for creating a new Limiter.
type Config struct {
	// Rules is the fixed rule table. At least one rule is required.
	Rules []Rule

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// Logger receives debug events for rollovers and drains and an info
	// event on close. If nil, logging is disabled.
	Logger *zerolog.Logger

	// SweepSchedule is an optional cron expression (e.g. "@every 5m")
	// that evicts expired, idle window state. Empty disables sweeping.
	// Evicted state is rebuilt lazily on the rule's next use, so the
	// sweep never changes admission behavior.
	SweepSchedule string
}

// limiter implements Limiter with one fixed window per rule.
type limiter struct {
	rules map[string]Rule
	clock Clock
	log   zerolog.Logger

	closed    atomic.Bool
	closeOnce sync.Once

	mu     sync.RWMutex
	states map[string]*ruleState

	sweeper *cron.Cron
}

// ruleState is the mutable window and queue for one rule. All fields are
// guarded by mu; different rules never share a lock.
type ruleState struct {
	mu      sync.Mutex
	rule    Rule
	start   time.Time
	resetAt time.Time
	count   int
	waiters []*waiter
	timer   *time.Timer
	evicted bool
}

// waiter is one parked Acquire call. result carries exactly one value:
// nil when a rollover drains the waiter, ErrShutdown on close.
type waiter struct {
	result   chan error
	enqueued time.Time
}

// NewSafe creates a limiter for the given rule table with validation that
// returns an error instead of panicking. This is the recommended way to
// create limiters for production use.
func NewSafe(rules []Rule) (Limiter, error) {
	return NewWithConfigSafe(Config{Rules: rules})
}

// NewWithConfigSafe creates a limiter with custom configuration, validating
// every rule before any state is built.
func NewWithConfigSafe(config Config) (Limiter, error) {
	if len(config.Rules) == 0 {
		return nil, aderrors.NewValidationError("admission", "rules", len(config.Rules), "at least one rule is required").
			WithHint("register every category of outbound call the limiter should gate")
	}

	seen := make(map[string]struct{}, len(config.Rules))
	for _, r := range config.Rules {
		if err := validation.ValidateNotEmpty("admission", "name", r.Name); err != nil {
			return nil, err
		}
		if err := validation.ValidatePositive("admission", "maxRequests", r.MaxRequests); err != nil {
			return nil, err
		}
		if err := validation.ValidatePositiveDuration("admission", "window", r.Window); err != nil {
			return nil, err
		}
		if _, dup := seen[r.Name]; dup {
			return nil, aderrors.NewValidationError("admission", "name", r.Name, "duplicate rule name").
				WithHint("rule names must be unique")
		}
		seen[r.Name] = struct{}{}
	}

	clock := config.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	rules := make(map[string]Rule, len(config.Rules))
	for _, r := range config.Rules {
		rules[r.Name] = r
	}

	l := &limiter{
		rules:  rules,
		clock:  clock,
		log:    log,
		states: make(map[string]*ruleState, len(rules)),
	}

	if config.SweepSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(config.SweepSchedule, l.sweep); err != nil {
			return nil, aderrors.NewValidationError("admission", "sweepSchedule", config.SweepSchedule, "not a valid cron expression").
				WithHint(`use a cron spec such as "@every 5m"`)
		}
		l.sweeper = c
		c.Start()
	}

	return l, nil
}
