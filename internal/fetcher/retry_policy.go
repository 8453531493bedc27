package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// StatusError reports a non-success HTTP status from upstream.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// RetryPolicy decides which failures are retried and how long to wait
// between attempts.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy builds a policy allowing maxRetries retries after the first
// attempt, with jittered exponential backoff between base and max.
func NewRetryPolicy(maxRetries int, base, maxDelay time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxDelay < base {
		maxDelay = base
	}
	return RetryPolicy{maxRetries: maxRetries, baseDelay: base, maxDelay: maxDelay}
}

// MaxAttempts returns the total number of attempts, the first included.
func (p RetryPolicy) MaxAttempts() uint {
	return uint(p.maxRetries) + 1
}

// ShouldRetry reports whether err is transient. Cancellation of the caller's
// context is never retried; server errors and transport failures are.
func (p RetryPolicy) ShouldRetry(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError
	}
	return true
}

// BackOff returns a fresh backoff schedule for one call.
func (p RetryPolicy) BackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.baseDelay
	b.MaxInterval = p.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	return b
}
