package clipboard

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryPolicy bounds how a ResilientClipboard retries a failing tool.
type RetryPolicy struct {
	Attempts  int           // total tries, including the first
	BaseDelay time.Duration // wait before the first retry; doubles after each
	MaxDelay  time.Duration
	Jitter    float64 // fraction of each wait that is randomized, 0 to 1

	// Transient lists errors worth another attempt besides the tool messages
	// recognised by default.
	Transient []error
}

// DefaultRetryPolicy returns the policy used for clipboard tools.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  2 * time.Second,
		Jitter:    0.1,
		Transient: []error{context.DeadlineExceeded},
	}
}

// toolHiccups are messages clipboard tools print for failures that clear up
// on their own, such as a display server restarting or a busy pasteboard.
var toolHiccups = []string{
	"temporary failure",
	"resource temporarily unavailable",
	"can't open display",
	"failed to connect to a wayland server",
}

// permanent errors describe the content, not the clipboard, so retrying
// cannot help.
var permanent = []error{ErrNotSupported, ErrContentTooLarge, ErrUnsupportedType, ErrInvalidText}

func (p RetryPolicy) transient(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range permanent {
		if errors.Is(err, target) {
			return false
		}
	}
	for _, target := range p.Transient {
		if errors.Is(err, target) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, hiccup := range toolHiccups {
		if strings.Contains(msg, hiccup) {
			return true
		}
	}
	return false
}

// wait returns the pause before retry n (1-based).
func (p RetryPolicy) wait(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n && d < p.MaxDelay; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (2*rand.Float64() - 1)) //nolint:gosec // jitter only
	}
	return d
}

// retry runs op until it succeeds, fails permanently, runs out of attempts or
// ctx ends.
func retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)
	for n := 1; ; n++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		if !p.transient(err) {
			return result, err
		}
		if n == attempts {
			return result, fmt.Errorf("gave up after %d attempts: %w", attempts, err)
		}

		timer := time.NewTimer(p.wait(n))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return result, fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), err))
		}
	}
}
