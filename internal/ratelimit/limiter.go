// Package ratelimit provides a minimum-interval rate limiter injected
// into external collaborators (LLM and code-hosting clients). The state
// is explicit (last-call timestamp plus minimum interval) so tests can
// substitute the clock and sleep functions instead of relying on a
// module-level variable.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum interval between successive calls. Safe for
// concurrent use; callers block in Wait until their slot opens.
type Limiter struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter with the given minimum interval between
// calls. A non-positive interval disables limiting.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// SetClock overrides the limiter's time and sleep sources for tests.
func (l *Limiter) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.sleep = sleep
}

// Wait blocks until at least the configured interval has elapsed since
// the previous call, then records the call. Returns early with the
// context's error if it is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()

	now := l.now()
	var wait time.Duration
	if l.interval > 0 && !l.last.IsZero() {
		if elapsed := now.Sub(l.last); elapsed < l.interval {
			wait = l.interval - elapsed
		}
	}

	// Reserve the slot before sleeping so concurrent waiters queue up
	// behind each other rather than all firing at once.
	l.last = now.Add(wait)
	sleep := l.sleep
	l.mu.Unlock()

	if wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
