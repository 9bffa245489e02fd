// Package retry provides bounded retry with exponential backoff for
// transient failures. Callers decide what counts as transient; everything
// else returns immediately.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config bounds a retry loop.
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // backoff growth per attempt
}

// DefaultConfig retries three times over roughly half a second.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// IsRetryable reports whether an error should trigger another attempt.
type IsRetryable func(error) bool

// Do runs fn until it succeeds, fails non-retryably, or exhausts the
// configured attempts. Waits respect context cancellation.
func Do(ctx context.Context, config Config, isRetryable IsRetryable, fn func() error) error {
	_, err := DoValue(ctx, config, isRetryable, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoValue is Do for functions that produce a value.
func DoValue[T any](
	ctx context.Context,
	config Config,
	isRetryable IsRetryable,
	fn func() (T, error),
) (T, error) {
	var zero T
	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry aborted: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return zero, err
		}

		// No sleep after the final attempt
		if attempt < config.MaxAttempts-1 {
			select {
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * config.Multiplier)
				if delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			case <-ctx.Done():
				return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
			}
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", config.MaxAttempts, lastErr)
}
