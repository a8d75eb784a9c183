package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces operations at least interval apart. Spacing is measured
// from the previous fire, or from the previous operation's completion once
// Done has been called for it. The first Wait returns immediately. An
// optional jitter adds a random extra delay of up to jitter*interval after
// the spacing elapses. It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
}

// NewLimiter creates a limiter with the given minimum interval between
// operations and jitter factor. Jitter is clamped to [0, 1].
// If interval is <= 0, the limiter does not block.
func NewLimiter(interval time.Duration, jitter float64) *Limiter {
	if interval <= 0 {
		return &Limiter{}
	}

	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		jitter:   jitter,
		interval: interval,
	}
}

// Interval returns the configured spacing between operations.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Wait blocks until the next operation may run, or until the context is
// canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	lim := l.limiter
	l.mu.Unlock()

	first := lim.Tokens() >= 1
	if err := lim.Wait(ctx); err != nil {
		return err
	}

	if first || l.jitter == 0 {
		return nil
	}

	extra := time.Duration(float64(l.interval) * l.jitter * rand.Float64())
	if extra <= 0 {
		return nil
	}
	select {
	case <-time.After(extra):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Done marks the end of an operation. The next Wait then blocks for a full
// interval counted from now, however long the operation took.
func (l *Limiter) Done() {
	if l == nil || l.interval <= 0 {
		return
	}

	now := time.Now()
	lim := rate.NewLimiter(rate.Every(l.interval), 1)
	lim.AllowN(now, 1)

	l.mu.Lock()
	l.limiter = lim
	l.mu.Unlock()
}
