package node

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockNetError implements net.Error for testing
type mockNetError struct {
	msg     string
	timeout bool
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return false }

func fastRetry(maxAttempts int) *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    common.NewDuration(5 * time.Millisecond),
		MaxBackoff:        common.NewDuration(20 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil error", err: nil, retryable: false},
		{name: "network timeout error", err: &mockNetError{msg: "network timeout", timeout: true}, retryable: true},
		{name: "connection refused", err: syscall.ECONNREFUSED, retryable: true},
		{name: "connection reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), retryable: true},
		{name: "broken pipe", err: syscall.EPIPE, retryable: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, retryable: true},
		{name: "cancelled", err: context.Canceled, retryable: false},
		{name: "rate limit 429", err: errors.New("HTTP 429"), retryable: true},
		{name: "503 service unavailable", err: errors.New("503 Service Unavailable"), retryable: true},
		{name: "http 429", err: rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}, retryable: true},
		{name: "http 502", err: fmt.Errorf("call: %w", rpc.HTTPError{StatusCode: 502}), retryable: true},
		{name: "http 404", err: rpc.HTTPError{StatusCode: 404, Status: "404 Not Found"}, retryable: false},
		{name: "invalid parameter", err: errors.New("invalid parameter"), retryable: false},
		{name: "block not found", err: errors.New("block not found"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := retryableError(tt.err)
			assert.Equal(t, tt.retryable, result, "retryableError(%v) = %v, want %v", tt.err, result, tt.retryable)
		})
	}
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "cancelled", errorType(context.Canceled))
	assert.Equal(t, "timeout", errorType(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, "transient", errorType(syscall.ECONNRESET))
	assert.Equal(t, "permanent", errorType(errors.New("invalid params")))
}

func TestNewBackOff(t *testing.T) {
	cfg := &config.RetryConfig{
		MaxAttempts:       6,
		InitialBackoff:    common.NewDuration(1 * time.Second),
		MaxBackoff:        common.NewDuration(5 * time.Second),
		BackoffMultiplier: 2.0,
	}

	b := newBackOff(context.Background(), cfg)

	// base delays 1s 2s 4s 5s 5s, each with 25% jitter
	for i, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second} {
		next := b.NextBackOff()
		assert.GreaterOrEqual(t, next, base*3/4, "retry %d", i+1)
		assert.LessOrEqual(t, next, base*5/4, "retry %d", i+1)
	}
	assert.Equal(t, backoff.Stop, b.NextBackOff(), "budget is MaxAttempts-1 retries")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, backoff.Stop, newBackOff(ctx, cfg).NextBackOff())
}

func TestRetryWithBackoff(t *testing.T) {
	log := logger.NewNopLogger()

	t.Run("success after retries", func(t *testing.T) {
		callCount := 0
		err := retryWithBackoff(context.Background(), fastRetry(5), log, "op", func() error {
			callCount++
			if callCount < 3 {
				return &mockNetError{msg: "temporary error", timeout: true}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, callCount)
	})

	t.Run("non-retryable error", func(t *testing.T) {
		callCount := 0
		expectedErr := errors.New("invalid parameter")
		err := retryWithBackoff(context.Background(), fastRetry(5), log, "op", func() error {
			callCount++
			return expectedErr
		})
		require.ErrorIs(t, err, expectedErr)
		assert.Contains(t, err.Error(), "non-retryable error")
		assert.Equal(t, 1, callCount)
	})

	t.Run("exhausted", func(t *testing.T) {
		callCount := 0
		expectedErr := &mockNetError{msg: "persistent error", timeout: true}
		err := retryWithBackoff(context.Background(), fastRetry(3), log, "op", func() error {
			callCount++
			return expectedErr
		})
		require.ErrorIs(t, err, expectedErr)
		assert.Contains(t, err.Error(), "all 3 attempts failed")
		assert.Equal(t, 3, callCount)
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		callCount := 0
		err := retryWithBackoff(ctx, fastRetry(5), log, "op", func() error {
			callCount++
			if callCount == 2 {
				cancel()
			}
			return &mockNetError{msg: "temporary error", timeout: true}
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, callCount)
	})

	t.Run("nil config runs once", func(t *testing.T) {
		callCount := 0
		expectedErr := errors.New("some error")
		err := retryWithBackoff(context.Background(), nil, log, "op", func() error {
			callCount++
			return expectedErr
		})
		require.ErrorIs(t, err, expectedErr)
		assert.Equal(t, 1, callCount)
	})
}
