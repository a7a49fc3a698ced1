package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
)

const backoffJitter = 0.25

// transientMarkers are matched against error text from gateways that do not
// return typed errors.
var transientMarkers = []string{
	"timeout",
	"deadline exceeded",
	"429",
	"too many requests",
	"rate limit",
	"502",
	"503",
	"504",
	"bad gateway",
	"service unavailable",
}

// retryableError reports whether a failed node request is worth repeating.
func retryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// errorType labels err for the RPC error metric.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case retryableError(err):
		return "transient"
	default:
		return "permanent"
	}
}

// newBackOff yields at most cfg.MaxAttempts-1 jittered exponential delays and
// stops early once ctx is done.
func newBackOff(ctx context.Context, cfg *config.RetryConfig) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialBackoff.Duration),
		backoff.WithMultiplier(cfg.BackoffMultiplier),
		backoff.WithMaxInterval(cfg.MaxBackoff.Duration),
		backoff.WithRandomizationFactor(backoffJitter),
		backoff.WithMaxElapsedTime(0),
	)
	retries := uint64(max(cfg.MaxAttempts, 1) - 1)
	return backoff.WithContext(backoff.WithMaxRetries(exp, retries), ctx)
}

// retryWithBackoff runs fn until it succeeds, fails permanently, the attempt
// budget of cfg runs out or ctx is done. A nil cfg runs fn once.
func retryWithBackoff(ctx context.Context, cfg *config.RetryConfig, log *logger.Logger,
	operation string, fn func() error) error {
	if cfg == nil {
		return fn()
	}

	var (
		attempts  int
		permanent bool
		start     = time.Now()
	)

	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn()
		if err != nil && !retryableError(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}, newBackOff(ctx, cfg), func(err error, next time.Duration) {
		retryInc(operation)
		log.Warnw("node request failed, retrying",
			"operation", operation,
			"attempt", attempts,
			"max_attempts", cfg.MaxAttempts,
			"retry_in", next,
			"error", err,
		)
	})

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%s cancelled after %d attempts: %w", operation, attempts, ctx.Err())
	case permanent:
		return fmt.Errorf("non-retryable error on attempt %d/%d: %w", attempts, cfg.MaxAttempts, err)
	default:
		return fmt.Errorf("all %d attempts failed after %v (last error: %w)", attempts, time.Since(start), err)
	}
}
