package admission

import (
	"context"
	"fmt"
	"time"

	aderrors "github.com/mkrell/admit/pkg/common/errors"
)

// Acquire blocks until the named rule grants an admission slot.
func (l *limiter) Acquire(ctx context.Context, rule string) error {
	if l.closed.Load() {
		return aderrors.ErrClosed
	}

	r, ok := l.rules[rule]
	if !ok {
		return fmt.Errorf("%w: %q", aderrors.ErrUnknownRule, rule)
	}

	// Check if context is already canceled
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	st := l.lockState(r)

	// Close may have happened between the flag check and taking the lock;
	// waiters enqueued now would never be rejected, so re-check under it.
	if l.closed.Load() {
		st.mu.Unlock()
		return aderrors.ErrClosed
	}

	now := l.clock.Now()
	l.rolloverLocked(st, now)

	// Fast path: budget remains and nobody is queued ahead.
	if st.count < st.rule.MaxRequests && len(st.waiters) == 0 {
		st.count++
		st.mu.Unlock()
		return nil
	}

	// Slow path: park in FIFO order until a rollover drains us.
	w := &waiter{result: make(chan error, 1), enqueued: now}
	st.waiters = append(st.waiters, w)
	l.armTimerLocked(st)
	st.mu.Unlock()

	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		if l.removeWaiter(st, w) {
			return ctx.Err()
		}
		// Already resolved concurrently with cancellation; honor the
		// resolution so a granted slot is not silently dropped.
		return <-w.result
	}
}

// TryAcquire reports whether a slot was granted without blocking.
func (l *limiter) TryAcquire(rule string) (bool, error) {
	if l.closed.Load() {
		return false, aderrors.ErrClosed
	}

	r, ok := l.rules[rule]
	if !ok {
		return false, fmt.Errorf("%w: %q", aderrors.ErrUnknownRule, rule)
	}

	st := l.lockState(r)
	defer st.mu.Unlock()

	l.rolloverLocked(st, l.clock.Now())

	if st.count < st.rule.MaxRequests && len(st.waiters) == 0 {
		st.count++
		return true, nil
	}
	return false, nil
}

// Status returns the remaining budget and reset time for the rule. A
// rollover that is due but whose timer has not fired yet is applied lazily
// on read, so status is never stale past a window boundary.
func (l *limiter) Status(rule string) (Status, bool) {
	r, ok := l.rules[rule]
	if !ok {
		return Status{}, false
	}

	st := l.lockState(r)
	defer st.mu.Unlock()

	l.rolloverLocked(st, l.clock.Now())

	remaining := st.rule.MaxRequests - st.count
	if remaining < 0 {
		remaining = 0
	}
	return Status{Remaining: remaining, ResetAt: st.resetAt}, true
}

// Pending returns the number of callers queued on the rule.
func (l *limiter) Pending(rule string) int {
	r, ok := l.rules[rule]
	if !ok {
		return 0
	}

	l.mu.RLock()
	st, ok := l.states[r.Name]
	l.mu.RUnlock()
	if !ok {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.waiters)
}

// Close releases every rollover timer and rejects every queued caller with
// ErrShutdown. It is idempotent and always returns nil.
func (l *limiter) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)

		if l.sweeper != nil {
			// Wait for an in-flight sweep to finish before tearing down.
			<-l.sweeper.Stop().Done()
		}

		l.mu.RLock()
		states := make([]*ruleState, 0, len(l.states))
		for _, st := range l.states {
			states = append(states, st)
		}
		l.mu.RUnlock()

		rejected := 0
		for _, st := range states {
			st.mu.Lock()
			if st.timer != nil {
				st.timer.Stop()
				st.timer = nil
			}
			for _, w := range st.waiters {
				w.result <- aderrors.ErrShutdown
			}
			rejected += len(st.waiters)
			st.waiters = nil
			st.mu.Unlock()
		}

		l.log.Info().Int("rejected_waiters", rejected).Msg("admission limiter closed")
	})
	return nil
}

// state returns the rule's window state, creating it lazily on first use.
func (l *limiter) state(r Rule) *ruleState {
	l.mu.RLock()
	st, ok := l.states[r.Name]
	l.mu.RUnlock()
	if ok {
		return st
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok = l.states[r.Name]; ok {
		return st
	}

	now := l.clock.Now()
	st = &ruleState{
		rule:    r,
		start:   now,
		resetAt: now.Add(r.Window),
	}
	l.states[r.Name] = st
	return st
}

// lockState returns the rule's state with its mutex held, retrying if the
// sweeper evicted the state between lookup and lock.
func (l *limiter) lockState(r Rule) *ruleState {
	for {
		st := l.state(r)
		st.mu.Lock()
		if !st.evicted {
			return st
		}
		st.mu.Unlock()
	}
}

// rolloverLocked rolls the window if it has expired and reports whether it
// did. The new window anchors to now, the timestamp of the detecting
// request, not to the previous boundary; after an idle period the next
// request starts a fresh window rather than replaying skipped ones.
// Queued waiters are drained in FIFO order before any new caller is
// considered. Must be called with st.mu held.
func (l *limiter) rolloverLocked(st *ruleState, now time.Time) bool {
	if now.Before(st.resetAt) {
		return false
	}

	st.start = now
	st.resetAt = now.Add(st.rule.Window)
	st.count = 0

	drained := 0
	for len(st.waiters) > 0 && st.count < st.rule.MaxRequests {
		w := st.waiters[0]
		st.waiters = st.waiters[1:]
		st.count++
		w.result <- nil
		drained++
	}

	// A lazy rollover may beat the armed timer to the boundary; once the
	// queue is empty the timer has nothing left to do.
	if len(st.waiters) == 0 && st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}

	l.log.Debug().
		Str("rule", st.rule.Name).
		Int("drained", drained).
		Int("still_queued", len(st.waiters)).
		Time("reset_at", st.resetAt).
		Msg("window rolled over")

	return true
}

// armTimerLocked schedules the rollover wake-up at the window boundary.
// At most one timer exists per rule. Must be called with st.mu held.
func (l *limiter) armTimerLocked(st *ruleState) {
	if st.timer != nil {
		return
	}
	delay := st.resetAt.Sub(l.clock.Now())
	if delay < 0 {
		delay = 0
	}
	st.timer = time.AfterFunc(delay, func() { l.onTimer(st) })
}

// onTimer fires at a window boundary: it rolls the window, drains waiters
// up to the fresh budget, and re-arms for the next boundary if a backlog
// remains. A backlog larger than one window's budget therefore waits
// multiple cycles; the budget is never exceeded to drain faster.
func (l *limiter) onTimer(st *ruleState) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.timer = nil
	if l.closed.Load() {
		return
	}

	if !l.rolloverLocked(st, l.clock.Now()) {
		// Fired before the boundary was actually due; re-arm for the
		// remainder instead of rolling early.
		if len(st.waiters) > 0 {
			l.armTimerLocked(st)
		}
		return
	}

	if len(st.waiters) > 0 {
		l.armTimerLocked(st)
	}
}

// removeWaiter unlinks a canceled waiter, preserving the FIFO order of the
// remainder. It reports false if the waiter had already been resolved.
func (l *limiter) removeWaiter(st *ruleState, w *waiter) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	for i, q := range st.waiters {
		if q == w {
			st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// sweep evicts window state that is expired, queue-empty, and timer-free.
// Such state is rebuilt lazily on the rule's next use with a fresh window
// anchored to that request, which is exactly what rollover would produce.
func (l *limiter) sweep() {
	if l.closed.Load() {
		return
	}

	now := l.clock.Now()

	l.mu.Lock()
	swept := 0
	for name, st := range l.states {
		st.mu.Lock()
		idle := st.timer == nil && len(st.waiters) == 0 && !now.Before(st.resetAt)
		if idle {
			st.evicted = true
			delete(l.states, name)
			swept++
		}
		st.mu.Unlock()
	}
	l.mu.Unlock()

	if swept > 0 {
		l.log.Debug().Int("swept", swept).Msg("evicted idle window state")
	}
}
