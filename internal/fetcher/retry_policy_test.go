package fetcher

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	require.False(t, p.ShouldRetry(ctx, nil))
	require.True(t, p.ShouldRetry(ctx, errors.New("connection refused")))
	require.True(t, p.ShouldRetry(ctx, &StatusError{Code: http.StatusServiceUnavailable}))
	require.False(t, p.ShouldRetry(ctx, &StatusError{Code: http.StatusNotFound}))
	require.False(t, p.ShouldRetry(ctx, context.Canceled))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.False(t, p.ShouldRetry(canceled, errors.New("connection refused")))
}

func TestRetryPolicyAttemptsAndBackoff(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, 10*time.Millisecond, 40*time.Millisecond)
	require.Equal(t, uint(4), p.MaxAttempts())
	require.Equal(t, uint(1), NewRetryPolicy(-1, 0, 0).MaxAttempts())

	b := p.BackOff()
	for range 10 {
		d := b.NextBackOff()
		require.Positive(t, d)
		// Jitter is at most 50% around a 40ms cap.
		require.LessOrEqual(t, d, 60*time.Millisecond)
	}
}
