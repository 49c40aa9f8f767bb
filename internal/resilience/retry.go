// Package resilience provides the bounded retry primitive shared by the
// analyzer's model-assisted path and the response composer.
//
// The backoff grows linearly with the attempt index rather than
// exponentially: with three attempts and sub-second base delays the
// difference is negligible, and linear delays are easier to reason about in
// tests.
package resilience

import (
	"context"
	"log/slog"
	"time"
)

// DefaultAttempts is the number of attempts made when RetryConfig.Attempts
// is zero.
const DefaultAttempts = 3

// DefaultBaseDelay is the delay multiplier used when RetryConfig.BaseDelay
// is zero. The sleep before attempt i (1-based, counting failures) is
// BaseDelay × i.
const DefaultBaseDelay = time.Second

// RetryConfig tunes [Retry] and [RetryWithResult].
type RetryConfig struct {
	// Attempts is the total number of attempts, including the first.
	Attempts int

	// BaseDelay is the linear backoff multiplier: the sleep after the i-th
	// failed attempt is BaseDelay × i.
	BaseDelay time.Duration

	// Name labels log messages for this retried operation.
	Name string
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	return c
}

// Retry runs fn up to cfg.Attempts times, sleeping cfg.BaseDelay × attempt
// between failures. The last error is returned when all attempts exhaust.
// Context cancellation aborts the backoff sleep and returns ctx.Err().
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult is [Retry] for operations that produce a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var (
		lastErr error
		zero    T
	)
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.Attempts {
			break
		}

		delay := cfg.BaseDelay * time.Duration(attempt)
		slog.Debug("operation failed, retrying",
			"name", cfg.Name, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
