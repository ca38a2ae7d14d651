package ebay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Usage is a point-in-time view of the daily call budget.
type Usage struct {
	Count   int64     `json:"count"`
	Max     int64     `json:"max"`
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns the calls left in the current window.
func (u Usage) Remaining() int64 {
	return max(u.Max-u.Count, 0)
}

// RateLimiter paces Browse API calls with a token bucket and enforces a
// daily call budget over a rolling 24-hour window that opens with the
// first call after the previous window closed.
type RateLimiter struct {
	limiter *rate.Limiter
	nowFunc func() time.Time

	mu       sync.Mutex
	count    int64
	maxDaily int64
	resetAt  time.Time
}

// RateLimiterOption configures the RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterNowFunc overrides the time function for testing.
func WithRateLimiterNowFunc(f func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) {
		r.nowFunc = f
	}
}

// NewRateLimiter creates a rate limiter with the given per-second rate,
// burst size, and daily limit.
func NewRateLimiter(
	perSecond float64,
	burst int,
	maxDaily int64,
	opts ...RateLimiterOption,
) *RateLimiter {
	r := &RateLimiter{
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		maxDaily: maxDaily,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wait blocks until the rate limiter allows the call, or the context is canceled.
// Returns ErrDailyLimitReached if the daily limit has been exhausted.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.reserveDaily(); err != nil {
		return err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		r.release()
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// Usage returns the current daily usage.
func (r *RateLimiter) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked()
	return Usage{Count: r.count, Max: r.maxDaily, ResetAt: r.resetAt}
}

func (r *RateLimiter) reserveDaily() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollLocked()
	if r.count >= r.maxDaily {
		return fmt.Errorf("%w (%d/%d)", ErrDailyLimitReached, r.count, r.maxDaily)
	}
	if r.count == 0 {
		r.resetAt = r.nowFunc().Add(24 * time.Hour)
	}
	r.count++
	return nil
}

func (r *RateLimiter) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count > 0 {
		r.count--
	}
}

func (r *RateLimiter) rollLocked() {
	if !r.resetAt.IsZero() && r.nowFunc().After(r.resetAt) {
		r.count = 0
		r.resetAt = time.Time{}
	}
}
