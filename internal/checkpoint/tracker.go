// Package checkpoint maintains the per-source ledger of fully processed block heights.
package checkpoint

import (
	"context"
	"fmt"

	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/store"
)

// Tracker records processed heights for one import source. Heights are recorded
// contiguously, starting at the configured start height, and never twice.
type Tracker struct {
	source      string
	startHeight uint64
	reader      *store.Reader
	log         *logger.Logger
}

// NewTracker creates a tracker for source.
func NewTracker(source string, startHeight uint64, reader *store.Reader, log *logger.Logger) *Tracker {
	return &Tracker{
		source:      source,
		startHeight: startHeight,
		reader:      reader,
		log:         log.WithComponent(common.ComponentCheckpoint),
	}
}

// Source returns the import source the tracker records for.
func (t *Tracker) Source() string {
	return t.source
}

// LastCommitted returns the highest committed height. ok is false when nothing
// was committed for the source yet.
func (t *Tracker) LastCommitted(ctx context.Context) (height uint64, ok bool, err error) {
	return t.reader.LastCheckpoint(ctx, t.source)
}

// NextHeight returns the first height that still needs processing.
func (t *Tracker) NextHeight(ctx context.Context) (uint64, error) {
	last, ok, err := t.LastCommitted(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return t.startHeight, nil
	}
	if last < t.startHeight {
		return 0, fmt.Errorf("%w: source %s committed height %d below start height %d",
			store.ErrInvariant, t.source, last, t.startHeight)
	}
	return last + 1, nil
}

// Record stages the checkpoint for height in uow. It fails with store.ErrInvariant
// unless height directly follows the last height visible to uow.
func (t *Tracker) Record(ctx context.Context, uow *store.UnitOfWork, height uint64) error {
	last, ok, err := uow.LastCheckpoint(ctx, t.source)
	if err != nil {
		return err
	}

	expected := t.startHeight
	if ok {
		expected = last + 1
	}
	if height != expected {
		return fmt.Errorf("%w: source %s expected height %d, got %d",
			store.ErrInvariant, t.source, expected, height)
	}

	if err := uow.InsertCheckpoint(ctx, height, t.source); err != nil {
		return err
	}

	t.log.Debugf("checkpoint staged: source=%s height=%d", t.source, height)

	return nil
}
