package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/topoctl/internal/clock"
	"grimm.is/topoctl/internal/kernel"
)

func testRetrier(cfg RetryConfig) (*retrier, *clock.Mock) {
	clk := clock.NewMock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return &retrier{cfg: cfg, clock: clk}, clk
}

func TestRetrySucceedsAfterTransient(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.Jitter = false
	r, clk := testRetrier(cfg)

	var retried []int
	r.onRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
		assert.ErrorIs(t, err, kernel.ErrTransient)
	}

	calls := 0
	attempts, err := r.do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("link add: %w", kernel.ErrTransient)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clk.Waits())
}

func TestRetryExhausted(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 3
	r, clk := testRetrier(cfg)

	attempts, err := r.do(context.Background(), func() error {
		return kernel.ErrBusy
	})

	assert.ErrorIs(t, err, kernel.ErrBusy)
	assert.Equal(t, 3, attempts)
	assert.Len(t, clk.Waits(), 2, "no wait after the last attempt")
}

func TestRetryNonRetryable(t *testing.T) {
	r, clk := testRetrier(DefaultRetryConfig())

	attempts, err := r.do(context.Background(), func() error {
		return kernel.ErrPermissionDenied
	})

	assert.ErrorIs(t, err, kernel.ErrPermissionDenied)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, clk.Waits())
}

func TestRetryAtLeastOnce(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 0
	r, _ := testRetrier(cfg)

	calls := 0
	attempts, err := r.do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryCancelledKeepsLastError(t *testing.T) {
	r, _ := testRetrier(DefaultRetryConfig())
	ctx, cancel := context.WithCancel(context.Background())

	attempts, err := r.do(ctx, func() error {
		cancel()
		return kernel.ErrTransient
	})

	assert.ErrorIs(t, err, kernel.ErrTransient)
	assert.Equal(t, 1, attempts)
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateDelay(tt.attempt, cfg), "attempt %d", tt.attempt)
	}

	cfg.Jitter = true
	for i := 0; i < 50; i++ {
		d := calculateDelay(1, cfg)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := DefaultRetryConfig().RetryableErrors

	assert.True(t, isRetryable(fmt.Errorf("x: %w", kernel.ErrAlreadyExists), retryable))
	assert.False(t, isRetryable(kernel.ErrNotFound, retryable))
	assert.True(t, isRetryable(errors.New("anything"), nil))
}
