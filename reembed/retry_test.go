package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("embedding service unavailable")

// failing returns an operation that fails the first n calls and counts
// every call.
func failing(n int, calls *int) func() error {
	return func() error {
		*calls++
		if *calls <= n {
			return errFlaky
		}
		return nil
	}
}

func TestRetryWithBackoff(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   error
		wantCalls int
	}{
		{name: "first try", failures: 0, attempts: 3, wantCalls: 1},
		{name: "recovers", failures: 2, attempts: 5, wantCalls: 3},
		{name: "gives up", failures: 10, attempts: 3, wantErr: errFlaky, wantCalls: 3},
		{name: "zero attempts", failures: 10, attempts: 0, wantErr: ErrInvalidMaxAttempts, wantCalls: 0},
		{name: "negative attempts", failures: 10, attempts: -1, wantErr: ErrInvalidMaxAttempts, wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoff(context.Background(), failing(tt.failures, &calls), tt.attempts, time.Millisecond)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetryWithBackoffStopsOnContext(t *testing.T) {
	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			if calls == 2 {
				cancel()
			}
			return errFlaky
		}, 10, time.Millisecond)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, calls)
	})

	t.Run("deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			time.Sleep(30 * time.Millisecond)
			return errFlaky
		}, 10, 10*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.LessOrEqual(t, calls, 3)
	})
}

func TestRetryWithBackoffDoublesDelay(t *testing.T) {
	var gaps []time.Duration
	last := time.Now()
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls > 1 {
			gaps = append(gaps, time.Since(last))
		}
		last = time.Now()
		if calls < 4 {
			return errFlaky
		}
		return nil
	}, 5, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, gaps, 3)
	assert.GreaterOrEqual(t, gaps[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[1], 20*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[2], 40*time.Millisecond)
}

func TestRetryWithBackoffPermanent(t *testing.T) {
	calls := 0
	notFound := errors.New("artifact not found")
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return Permanent(notFound)
	}, 5, time.Millisecond)
	assert.Same(t, notFound, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}
