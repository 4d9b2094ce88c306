package clipboard

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned while a ResilientClipboard is backing off after
// repeated failures.
var ErrUnavailable = errors.New("clipboard: temporarily unavailable after repeated failures")

// ErrRateLimited is returned when a ResilientClipboard's rate limit is exhausted.
var ErrRateLimited = errors.New("clipboard: rate limit exceeded")

// Defaults for ResilientClipboard.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second
)

// ResilientClipboard wraps a clipboard with retries, a rate limit and a circuit
// breaker. After FailureThreshold consecutive failures it refuses operations
// until Cooldown has passed, then lets one attempt through.
type ResilientClipboard struct {
	clipboard   Clipboard
	retryPolicy RetryPolicy
	rateLimiter *RateLimiter
	now         func() time.Time

	failureThreshold int
	cooldown         time.Duration

	mu         sync.RWMutex
	lastError  error
	openedAt   time.Time
	errorCount int
}

// NewResilientClipboard creates a new resilient clipboard wrapper
func NewResilientClipboard(clipboard Clipboard) *ResilientClipboard {
	return &ResilientClipboard{
		clipboard:        clipboard,
		retryPolicy:      DefaultRetryPolicy(),
		rateLimiter:      NewRateLimiter(600, time.Minute),
		now:              time.Now,
		failureThreshold: DefaultFailureThreshold,
		cooldown:         DefaultCooldown,
	}
}

// Read returns the current clipboard contents with retry logic
func (rc *ResilientClipboard) Read() (Data, error) {
	if err := rc.admit(); err != nil {
		return Data{}, err
	}

	data, err := retry(context.Background(), rc.policy(), rc.clipboard.Read)
	rc.record(err)
	return data, err
}

// Write sets the clipboard contents with retry logic
func (rc *ResilientClipboard) Write(data Data) error {
	if err := rc.admit(); err != nil {
		return err
	}

	_, err := retry(context.Background(), rc.policy(), func() (struct{}, error) {
		return struct{}{}, rc.clipboard.Write(data)
	})

	rc.record(err)
	return err
}

// admit applies the rate limit and the open circuit.
func (rc *ResilientClipboard) admit() error {
	rc.mu.RLock()
	limiter := rc.rateLimiter
	open := rc.errorCount >= rc.failureThreshold && rc.now().Sub(rc.openedAt) < rc.cooldown
	rc.mu.RUnlock()

	if open {
		return ErrUnavailable
	}
	if limiter != nil && !limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}

func (rc *ResilientClipboard) policy() RetryPolicy {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.retryPolicy
}

// record tracks consecutive failures. Permanent errors such as unsupported types
// say nothing about the clipboard's health and are not counted.
func (rc *ResilientClipboard) record(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if err == nil {
		rc.errorCount = 0
		rc.lastError = nil
		return
	}
	if errors.Is(err, ErrUnsupportedType) || errors.Is(err, ErrContentTooLarge) {
		return
	}

	rc.lastError = err
	rc.errorCount++
	if rc.errorCount >= rc.failureThreshold {
		rc.openedAt = rc.now()
	}
}

// ErrorState returns the consecutive failure count, whether the circuit is
// open, and the last error.
func (rc *ResilientClipboard) ErrorState() (int, bool, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	open := rc.errorCount >= rc.failureThreshold && rc.now().Sub(rc.openedAt) < rc.cooldown
	return rc.errorCount, open, rc.lastError
}

// SetRetryPolicy replaces the retry policy.
func (rc *ResilientClipboard) SetRetryPolicy(policy RetryPolicy) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.retryPolicy = policy
}

// SetRateLimiter updates the rate limiter. A nil limiter disables rate limiting.
func (rc *ResilientClipboard) SetRateLimiter(limiter *RateLimiter) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.rateLimiter = limiter
}

// SetBreaker updates the failure threshold and cooldown.
func (rc *ResilientClipboard) SetBreaker(threshold int, cooldown time.Duration) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.failureThreshold = threshold
	rc.cooldown = cooldown
}
