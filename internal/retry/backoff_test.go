package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestWithBackoffFirstAttemptSucceeds(t *testing.T) {
	calls := 0
	result := WithBackoff(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, result.RetryReasons)
}

func TestWithBackoffRetriesUntilSuccess(t *testing.T) {
	calls := 0
	result := WithBackoff(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, result.RetryReasons, 2)
}

func TestWithBackoffExhaustsRetries(t *testing.T) {
	failure := errors.New("persistent")
	calls := 0
	result := WithBackoff(context.Background(), fastConfig(2), func() error {
		calls++
		return failure
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts, "initial attempt plus two retries")
	assert.Equal(t, 3, calls)
	assert.Equal(t, failure, result.LastError)
}

func TestWithBackoffZeroRetriesMeansSingleAttempt(t *testing.T) {
	calls := 0
	result := WithBackoff(context.Background(), fastConfig(0), func() error {
		calls++
		return errors.New("nope")
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
}

func TestWithBackoffStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	result := WithBackoff(ctx, fastConfig(5), func() error {
		calls++
		cancel()
		return errors.New("fail then cancel")
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestWithBackoffStopsOnPermanentError(t *testing.T) {
	failure := errors.New("invalid api key")
	calls := 0
	result := WithBackoff(context.Background(), fastConfig(5), func() error {
		calls++
		return Permanent(failure)
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls, "a permanent error is never retried")
	assert.Equal(t, failure, result.LastError, "caller sees the original error, not the wrapper")
}

func TestPermanentNilPassthrough(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestCalculateDelayGrowsAndCaps(t *testing.T) {
	cfg := Config{
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
	}

	assert.Equal(t, time.Second, calculateDelay(cfg, 0))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 2))
	assert.Equal(t, 10*time.Second, calculateDelay(cfg, 5), "capped at MaxDelay")
}

func TestCalculateDelayJitterStaysInBand(t *testing.T) {
	cfg := Config{
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}

	for i := 0; i < 100; i++ {
		d := calculateDelay(cfg, 1)
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestIsRetryableError(t *testing.T) {
	retryable := []string{
		"dial tcp: connection refused",
		"HTTP 429 Too Many Requests",
		"upstream returned 503",
		"context deadline exceeded",
		"rate limit hit for model",
	}
	for _, msg := range retryable {
		assert.True(t, IsRetryableError(errors.New(msg)), msg)
	}

	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(errors.New("invalid api key")))
	assert.False(t, IsRetryableError(errors.New("model not found")))
}
