package mq

import (
	"context"
	"testing"
	"time"
)

func TestTokenLimiterAcquireRelease(t *testing.T) {
	t.Parallel()
	limiter := NewTokenLimiter(2)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	// Pool exhausted: a bounded acquire must time out.
	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := limiter.Acquire(timeoutCtx); err == nil {
		t.Fatal("expected acquire to fail with exhausted tokens")
	}

	limiter.Release()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
}

func TestTokenLimiterReleaseNeverOverfills(t *testing.T) {
	t.Parallel()
	limiter := NewTokenLimiter(1)
	ctx := context.Background()

	limiter.Release()
	limiter.Release()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := limiter.Acquire(timeoutCtx); err == nil {
		t.Fatal("expected capacity to stay at 1 despite extra releases")
	}
}

func TestTokenLimiterMinimumCapacity(t *testing.T) {
	t.Parallel()
	limiter := NewTokenLimiter(0)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("expected zero size to fall back to capacity 1, got %v", err)
	}
}

func TestRateLimiterRefillsByWindow(t *testing.T) {
	t.Parallel()
	limiter := NewRateLimiter(2, time.Second)
	current := time.Unix(1000, 0)
	limiter.now = func() time.Time { return current }

	ctx := context.Background()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	// Budget spent: acquiring with a canceled context must fail instead of
	// waiting for the next window.
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := limiter.Acquire(canceled); err == nil {
		t.Fatal("expected acquire to observe context cancellation")
	}

	current = current.Add(time.Second)
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("acquire in fresh window failed: %v", err)
	}
}

func TestCombineLimiters(t *testing.T) {
	t.Parallel()
	narrow := NewTokenLimiter(1)
	wide := NewTokenLimiter(2)
	combined := CombineLimiters(wide, narrow)

	ctx := context.Background()
	if err := combined.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// The narrower limiter is exhausted; the failed acquire must give the
	// wider limiter its slot back.
	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := combined.Acquire(timeoutCtx); err == nil {
		t.Fatal("expected acquire to fail on the exhausted limiter")
	}
	if err := wide.Acquire(ctx); err != nil {
		t.Fatalf("expected the wide limiter's slot returned after rollback, got %v", err)
	}
	wide.Release()

	combined.Release()
	if err := combined.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
}

func TestRateLimiterReleaseIsNoop(t *testing.T) {
	t.Parallel()
	limiter := NewRateLimiter(1, time.Second)
	current := time.Unix(1000, 0)
	limiter.now = func() time.Time { return current }

	ctx := context.Background()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	limiter.Release()

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := limiter.Acquire(canceled); err == nil {
		t.Fatal("expected release to leave the window budget spent")
	}
}
