package common

import (
	"errors"
	"fmt"
	"time"
)

// Closed failure taxonomy. Every external-call failure is classified into one
// of these at the boundary; business logic branches on these values, never on
// transport-level error types.
var (
	// ErrRateLimited means the correction service throttled us; retry with
	// backoff, honoring a server-supplied hint when present.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransientService is a retryable server-side fault (5xx, timeouts).
	ErrTransientService = errors.New("transient service error")
	// ErrAuthOrRequest is fatal for the batch: bad credentials or a malformed
	// request. Never retried.
	ErrAuthOrRequest = errors.New("authentication or request error")
	// ErrMalformedReply means the reply survived no parse strategy.
	ErrMalformedReply = errors.New("malformed correction reply")
	// ErrValidationRejected marks a per-field suggestion discarded by the
	// validation rules. Absorbed per field, never a batch failure.
	ErrValidationRejected = errors.New("suggested value rejected by validation")
	// ErrStaleWrite is a version mismatch on commit. The caller must re-read
	// current state before deciding to retry.
	ErrStaleWrite = errors.New("stale write")
	// ErrClaimConflict means the record is already owned by another pass.
	ErrClaimConflict = errors.New("record already claimed")
	// ErrRenderFailure means page images could not be produced; the vision
	// path is unavailable and the caller falls back to text.
	ErrRenderFailure = errors.New("page render failure")

	ErrNotFound        = errors.New("record not found")
	ErrClearNotAllowed = errors.New("field may not be cleared")
	ErrInvalidState    = errors.New("record in unexpected state")
)

// RateLimitError carries an optional server-supplied retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// StaleWriteError reports the version the store currently holds so the caller
// can reload and reconcile instead of blindly retrying.
type StaleWriteError struct {
	CurrentVersion int64
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("stale write: current version is %d", e.CurrentVersion)
}

func (e *StaleWriteError) Unwrap() error { return ErrStaleWrite }

// Retryable reports whether err warrants another attempt under the shared
// retry policy.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransientService)
}

// RetryHint extracts a server-supplied delay hint, if any.
func RetryHint(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}

// WrapError annotates err with a message, preserving the taxonomy sentinel.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
