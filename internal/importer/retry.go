package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goran-ethernal/ContractIndexor/internal/store"
)

// ErrRetriesExhausted wraps the last error once the retry budget is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Outcome is the result kind of a retried operation.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeExhausted means every allowed retry failed.
	OutcomeExhausted
	// OutcomePermanent means the operation failed with an error that is never retried.
	OutcomePermanent
	// OutcomeCancelled means the context ended before the operation succeeded.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomePermanent:
		return "permanent"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RetryResult reports how a retried operation ended.
type RetryResult struct {
	Outcome Outcome
	// Attempts counts every call of the operation, the first one included.
	Attempts int
	Err      error
}

// RetryPolicy retries an operation after a fixed delay, at most MaxAttempts times
// after the first failure. Invariant violations are never retried.
type RetryPolicy struct {
	Delay       time.Duration
	MaxAttempts uint64
}

// Run calls op until it succeeds, fails permanently, the budget runs out or ctx ends.
// onRetry is called before every wait.
func (p RetryPolicy) Run(ctx context.Context, op func(ctx context.Context) error,
	onRetry func(err error, attempt int, next time.Duration)) RetryResult {
	var (
		attempts  int
		permanent bool
	)

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), p.MaxAttempts),
		ctx,
	)

	operation := func() error {
		attempts++
		err := op(ctx)
		if err != nil && errors.Is(err, store.ErrInvariant) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		if onRetry != nil {
			onRetry(err, attempts, next)
		}
	}

	err := backoff.RetryNotify(operation, b, notify)

	switch {
	case err == nil:
		return RetryResult{Outcome: OutcomeSuccess, Attempts: attempts}
	case permanent:
		return RetryResult{Outcome: OutcomePermanent, Attempts: attempts, Err: err}
	case ctx.Err() != nil:
		return RetryResult{Outcome: OutcomeCancelled, Attempts: attempts, Err: ctx.Err()}
	default:
		return RetryResult{
			Outcome:  OutcomeExhausted,
			Attempts: attempts,
			Err:      fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err),
		}
	}
}
