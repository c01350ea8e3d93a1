package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig describes a fixed exponential schedule. Delays are literal:
// there is no jitter and no cap on total elapsed time.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first (default: 4).
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt (default: 1s).
	InitialBackoff time.Duration

	// BackoffFactor multiplies the wait after each further attempt (default: 2).
	BackoffFactor float64
}

// DefaultRetryConfig returns the 0s, 1s, 2s, 4s schedule.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 1 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Validate checks if the retry configuration is valid.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialBackoff < 0 {
		return fmt.Errorf("initial_backoff must be non-negative, got %v", c.InitialBackoff)
	}
	if c.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff_factor must be >= 1.0, got %f", c.BackoffFactor)
	}
	return nil
}

// Delays returns the wait before each attempt. The first entry is always zero.
func (c RetryConfig) Delays() []time.Duration {
	delays := make([]time.Duration, c.MaxAttempts)
	next := float64(c.InitialBackoff)
	for i := 1; i < c.MaxAttempts; i++ {
		delays[i] = time.Duration(next)
		next *= c.BackoffFactor
	}
	return delays
}

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttemptFunc performs one attempt. attempt starts at 1.
type AttemptFunc func(ctx context.Context, attempt int) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Retry stops without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs fn on the configured schedule until it succeeds, returns a
// Permanent error, the attempts are exhausted, or ctx is cancelled. It
// returns the number of attempts made and the last error.
func Retry(ctx context.Context, cfg RetryConfig, sleep Sleeper, fn AttemptFunc) (int, error) {
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	attempts := 0
	for i, delay := range cfg.Delays() {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return attempts, &TransportError{
					Type:    ErrorTypeCancelled,
					Message: "cancelled during retry backoff",
					Cause:   errors.Join(err, lastErr),
				}
			}
		}

		attempts++
		lastErr = fn(ctx, attempts)
		if lastErr == nil {
			return attempts, nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return attempts, perm.err
		}
	}
	return attempts, lastErr
}
