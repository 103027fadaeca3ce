package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

var errStale = errors.New("stale")

func testConfig(max int, retryable ...error) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     max,
		BackoffStrategy: &ConstantBackoff{Interval: time.Millisecond},
		Logger:          logger.NewNop(),
		RetryableErrors: retryable,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errStale
		}
		return nil
	}, testConfig(3, errStale))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return fatal
	}, testConfig(5, errStale))

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return errStale
	}, testConfig(3, errStale))

	assert.Same(t, errStale, err)
	assert.Equal(t, 3, calls)
}

func TestRetryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func(ctx context.Context) error { return nil }, testConfig(3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExponentialBackoffIsCapped(t *testing.T) {
	b := &ExponentialBackoff{InitialInterval: 10 * time.Millisecond, MaxInterval: 40 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 10*time.Millisecond, b.NextBackoff(1))
	assert.Equal(t, 20*time.Millisecond, b.NextBackoff(2))
	assert.Equal(t, 40*time.Millisecond, b.NextBackoff(3))
	assert.Equal(t, 40*time.Millisecond, b.NextBackoff(6))
}
