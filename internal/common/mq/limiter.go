package mq

import (
	"context"
	"sync"
	"time"
)

// FetchLimiter gates message fetching so consumers never pull more work
// than the downstream workers can hold.
type FetchLimiter interface {
	// Acquire blocks until a slot is available or ctx is canceled.
	Acquire(ctx context.Context) error

	// Release returns a slot to the limiter.
	Release()
}

// TokenLimiter is a simple counting limiter for fetch control.
type TokenLimiter struct {
	tokens chan struct{}
}

// NewTokenLimiter creates a limiter with a fixed capacity.
func NewTokenLimiter(size int) *TokenLimiter {
	if size <= 0 {
		size = 1
	}
	tokens := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		tokens <- struct{}{}
	}
	return &TokenLimiter{tokens: tokens}
}

// Acquire blocks until a token is available or ctx is canceled.
func (l *TokenLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}

// Release returns a token to the limiter.
func (l *TokenLimiter) Release() {
	select {
	case l.tokens <- struct{}{}:
	default:
	}
}

// RateLimiter caps how many acquisitions may happen per interval.
// Unlike TokenLimiter the budget refills on a schedule, not on Release,
// which makes it suitable for capping execution start rate.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	used     int
	interval time.Duration
	window   time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing limit acquisitions per interval.
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &RateLimiter{
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Acquire blocks until the current window has budget or ctx is canceled.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		if now.Sub(l.window) >= l.interval {
			l.window = now
			l.used = 0
		}
		if l.used < l.limit {
			l.used++
			l.mu.Unlock()
			return nil
		}
		wait := l.interval - now.Sub(l.window)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Release is a no-op: rate budget refills with time, not with completion.
func (l *RateLimiter) Release() {}

// CombineLimiters gates an acquisition behind every limiter in order.
// Limiters acquired before a failure are released again.
func CombineLimiters(limiters ...FetchLimiter) FetchLimiter {
	return combinedLimiter(limiters)
}

type combinedLimiter []FetchLimiter

func (c combinedLimiter) Acquire(ctx context.Context) error {
	for i, l := range c {
		if err := l.Acquire(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				c[j].Release()
			}
			return err
		}
	}
	return nil
}

func (c combinedLimiter) Release() {
	for _, l := range c {
		l.Release()
	}
}
