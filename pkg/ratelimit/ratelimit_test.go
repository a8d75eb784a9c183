package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_NoBlockWhenZeroInterval(t *testing.T) {
	limiter := NewLimiter(0, 0.5)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("limiter with zero interval should not block")
	}
}

func TestLimiter_NilIsNoop(t *testing.T) {
	var limiter *Limiter
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLimiter_FirstWaitImmediate(t *testing.T) {
	limiter := NewLimiter(time.Second, 0)

	start := time.Now()
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if time.Since(start) > 20*time.Millisecond {
		t.Errorf("first wait should not be delayed, took %v", time.Since(start))
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100*time.Millisecond, 0)
	ctx := context.Background()

	_ = limiter.Wait(ctx)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	duration := time.Since(start)

	// It should take roughly 100ms
	if duration < 80*time.Millisecond || duration > 200*time.Millisecond {
		t.Errorf("expected wait around 100ms, took %v", duration)
	}
}

func TestLimiter_ContextCancellation(t *testing.T) {
	limiter := NewLimiter(time.Second, 0)

	ctx, cancel := context.WithCancel(context.Background())
	_ = limiter.Wait(ctx)
	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatalf("expected context canceled error")
	}
}

func TestLimiter_Jitter(t *testing.T) {
	limiter := NewLimiter(100*time.Millisecond, 0.5) // up to +50ms
	ctx := context.Background()

	_ = limiter.Wait(ctx)

	start := time.Now()
	_ = limiter.Wait(ctx)

	duration := time.Since(start)

	// Interval is 100ms and jitter only ever adds time, up to 50ms.
	// Allow some slack for goroutine scheduling.
	if duration < 80*time.Millisecond || duration > 300*time.Millisecond {
		t.Errorf("expected jittered wait between 100ms and 150ms, took %v", duration)
	}
}

func TestLimiter_IntervalCountsFromDone(t *testing.T) {
	limiter := NewLimiter(100*time.Millisecond, 0)
	ctx := context.Background()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// An operation slower than the interval.
	time.Sleep(150 * time.Millisecond)
	limiter.Done()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gap := time.Since(start); gap < 90*time.Millisecond {
		t.Errorf("expected a full interval after the slow operation, waited %v", gap)
	}
}

func TestLimiter_DoneOnNoopLimiter(t *testing.T) {
	var nilLimiter *Limiter
	nilLimiter.Done()

	limiter := NewLimiter(0, 0)
	limiter.Done()

	start := time.Now()
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("limiter with zero interval should not block after Done")
	}
}
