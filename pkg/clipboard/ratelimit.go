package clipboard

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter caps how many clipboard operations run per period. The monitor
// uses one so a program rewriting the clipboard in a loop cannot flood every
// peer; ResilientClipboard uses another to protect the clipboard tools.
type RateLimiter struct {
	limiter atomic.Pointer[rate.Limiter]
	now     func() time.Time
	maxOps  int
	period  time.Duration
}

// NewRateLimiter allows bursts of maxOps operations, refilled evenly over
// period. It starts full.
func NewRateLimiter(maxOps int, period time.Duration) *RateLimiter {
	return newRateLimiterWithClock(maxOps, period, time.Now)
}

func newRateLimiterWithClock(maxOps int, period time.Duration, now func() time.Time) *RateLimiter {
	rl := &RateLimiter{now: now, maxOps: maxOps, period: period}
	rl.limiter.Store(rl.newLimiter())
	return rl
}

func (rl *RateLimiter) newLimiter() *rate.Limiter {
	every := rate.Inf
	if rl.maxOps > 0 && rl.period > 0 {
		every = rate.Every(rl.period / time.Duration(rl.maxOps))
	}
	return rate.NewLimiter(every, rl.maxOps)
}

// Allow reports whether one more operation may run now.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN reports whether n operations may run now, consuming them if so.
func (rl *RateLimiter) AllowN(n int) bool {
	return rl.limiter.Load().AllowN(rl.now(), n)
}

// TokensAvailable returns how many operations could run right now.
func (rl *RateLimiter) TokensAvailable() float64 {
	return rl.limiter.Load().TokensAt(rl.now())
}

// Reset refills the limiter to full capacity.
func (rl *RateLimiter) Reset() {
	rl.limiter.Store(rl.newLimiter())
}
