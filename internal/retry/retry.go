// Package retry implements the bounded-retry policy shared by the
// producer, consumers, and dead-letter handler. Each call site carries
// its own Policy; there is no global retry state.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Policy bounds a retried operation: at most MaxAttempts calls, with
// exponential backoff between them starting at BaseDelay, capped at
// MaxDelay, randomized by ±Jitter fraction.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// DefaultPolicy returns the policy used when configuration does not
// override it.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
	}
}

// Validate reports configuration errors in the policy.
func (p Policy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, errors.New("maxAttempts must be >= 1"))
	}
	if p.BaseDelay <= 0 {
		errs = append(errs, errors.New("baseDelay must be positive"))
	}
	if p.MaxDelay < p.BaseDelay {
		errs = append(errs, errors.New("maxDelay must be >= baseDelay"))
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		errs = append(errs, errors.New("jitter must be in [0,1]"))
	}
	return errors.Join(errs...)
}

// PermanentError wraps an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Do runs fn until it succeeds, returns a permanent error, the attempt
// budget is exhausted, or ctx is cancelled. The last error from fn is
// returned on exhaustion.
func Do(ctx context.Context, p Policy, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		j := d * p.Jitter
		d = d - j + rand.Float64()*2*j
	}
	return time.Duration(d)
}
