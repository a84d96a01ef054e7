package common

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = errors.New("max retries exceeded")

// RetryOptions configures the shared backoff envelope for correction calls.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// WithRetry executes op with exponential backoff. Only errors the taxonomy
// marks retryable (rate limits, transient server faults) trigger another
// attempt; a server-supplied retry hint overrides the computed delay. All
// other errors return immediately.
func WithRetry(ctx context.Context, logger *slog.Logger, op func() error, opts RetryOptions) error {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	var lastErr error
	delay := opts.InitialDelay
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == opts.MaxAttempts {
			break
		}

		wait := delay
		if hint, ok := RetryHint(lastErr); ok {
			wait = hint
		}
		if wait > opts.MaxDelay {
			wait = opts.MaxDelay
		}
		logger.Warn("retry.backoff",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"wait_ms", wait.Milliseconds(),
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * opts.Multiplier)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return WrapError(lastErr, ErrMaxRetries.Error())
}
