// Package importer drives block heights through the contract pipeline, one unit of
// work per height.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goran-ethernal/ContractIndexor/internal/checkpoint"
	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/contract"
	"github.com/goran-ethernal/ContractIndexor/internal/db"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/metrics"
	"github.com/goran-ethernal/ContractIndexor/internal/store"
	"github.com/goran-ethernal/ContractIndexor/internal/token"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	pkgnode "github.com/goran-ethernal/ContractIndexor/pkg/node"
)

// Importer imports finalized blocks for one source. It is the only writer of the
// source's checkpoint ledger and processes heights strictly in order.
type Importer struct {
	cfg         config.ImportConfig
	node        pkgnode.Client
	store       *store.Store
	tracker     *checkpoint.Tracker
	classifier  *contract.Classifier
	aggregator  *token.Aggregator
	folder      *contract.Folder
	maintenance db.Maintenance
	policy      RetryPolicy
	state       atomic.Int32
	log         *logger.Logger
}

// New creates an Importer. maintenance may be nil.
func New(
	cfg config.ImportConfig,
	nodeClient pkgnode.Client,
	st *store.Store,
	aggregator *token.Aggregator,
	maintenance db.Maintenance,
	log *logger.Logger,
) (*Importer, error) {
	if nodeClient == nil {
		return nil, errors.New("node client is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if aggregator == nil {
		return nil, errors.New("aggregator is required")
	}
	if maintenance == nil {
		maintenance = &db.NoOpMaintenance{}
	}

	return &Importer{
		cfg:         cfg,
		node:        nodeClient,
		store:       st,
		tracker:     checkpoint.NewTracker(cfg.Source, cfg.StartHeight, st.Reader(), log),
		classifier:  contract.NewClassifier(log),
		aggregator:  aggregator,
		folder:      contract.NewFolder(log),
		maintenance: maintenance,
		policy: RetryPolicy{
			Delay:       cfg.RetryDelay.Duration,
			MaxAttempts: cfg.MaxRetryAttempts,
		},
		log: log.WithComponent(common.ComponentImporter),
	}, nil
}

// State returns the current state. Safe for concurrent use.
func (i *Importer) State() State {
	return State(i.state.Load())
}

// Healthy reports false once the importer has given up.
func (i *Importer) Healthy() bool {
	return i.State() != StateFatal
}

// Health reports the state machine position for the health endpoint.
func (i *Importer) Health() metrics.Health {
	s := i.State()
	return metrics.Health{Healthy: s != StateFatal, State: s.String()}
}

func (i *Importer) setState(s State) {
	i.state.Store(int32(s))
}

// Run imports heights until ctx is cancelled or the retry budget is exhausted.
// It returns ctx.Err() on cancellation and the terminal error otherwise.
func (i *Importer) Run(ctx context.Context) error {
	source := i.tracker.Source()
	i.log.Infow("starting import", "source", source, "start_height", i.cfg.StartHeight)
	metrics.ComponentHealthSet(common.ComponentImporter, true)

	for {
		select {
		case <-ctx.Done():
			i.setState(StateIdle)
			i.log.Info("import cancelled")
			return ctx.Err()
		default:
		}

		var processed int
		result := i.policy.Run(ctx, func(ctx context.Context) error {
			var err error
			processed, err = i.Sync(ctx)
			return err
		}, func(err error, attempt int, next time.Duration) {
			i.setState(StateRetrying)
			metrics.ImportRetriesInc(source)
			i.log.Warnw("import cycle failed, retrying",
				"source", source,
				"attempt", attempt,
				"max_attempts", i.policy.MaxAttempts,
				"retry_in", next,
				"error", err,
			)
		})

		switch result.Outcome {
		case OutcomeSuccess:
		case OutcomeCancelled:
			i.setState(StateIdle)
			i.log.Info("import cancelled")
			return result.Err
		case OutcomePermanent, OutcomeExhausted:
			i.setState(StateFatal)
			metrics.ImportFatalInc(source)
			metrics.ComponentHealthSet(common.ComponentImporter, false)
			metrics.ErrorsInc(common.ComponentImporter, "fatal")
			i.log.Errorw("import failed",
				"source", source,
				"outcome", result.Outcome.String(),
				"attempts", result.Attempts,
				"error", result.Err,
			)
			return result.Err
		}

		if processed > 0 {
			continue
		}

		// caught up
		i.setState(StateIdle)
		select {
		case <-ctx.Done():
			i.log.Info("import cancelled")
			return ctx.Err()
		case <-time.After(i.cfg.PollInterval.Duration):
		}
	}
}

// Sync runs one FetchHeight and ProcessHeight cycle: it imports every height from
// the next unprocessed one up to the node's latest finalized height and returns the
// number of heights committed.
func (i *Importer) Sync(ctx context.Context) (int, error) {
	i.setState(StateFetchHeight)

	next, err := i.tracker.NextHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	finalized, err := i.node.GetLatestFinalizedHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest finalized height: %w", err)
	}

	if finalized < next {
		return 0, nil
	}

	i.setState(StateProcessHeight)

	processed := 0
	for height := next; height <= finalized; height++ {
		// cancellation is honoured between heights only
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		if err := i.processHeight(ctx, height); err != nil {
			return processed, fmt.Errorf("failed to process height %d: %w", height, err)
		}
		processed++
	}

	i.log.Infow("caught up",
		"source", i.tracker.Source(),
		"height", finalized,
		"heights_processed", processed,
	)

	return processed, nil
}

// processHeight commits one height: classification, token aggregation, snapshot
// folding and the checkpoint row, all in one unit of work.
func (i *Importer) processHeight(ctx context.Context, height uint64) error {
	start := time.Now()

	block, err := i.node.GetBlockTransactionEvents(ctx, height)
	if err != nil {
		return err
	}

	blockInfo := func(ctx context.Context) (*types.BlockInfo, error) {
		return i.node.GetBlockInfo(ctx, block.BlockHash)
	}

	err = db.WithOperationLock(i.maintenance, func() error {
		uow, err := i.store.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := uow.Rollback(); err != nil {
				i.log.Errorf("failed to rollback unit of work: %v", err)
			}
		}()

		if _, err := i.classifier.Stage(ctx, uow, block, blockInfo); err != nil {
			return err
		}
		if err := i.aggregator.Aggregate(ctx, uow); err != nil {
			return err
		}
		if err := i.folder.Fold(ctx, uow, height); err != nil {
			return err
		}
		if err := i.tracker.Record(ctx, uow, height); err != nil {
			return err
		}

		return uow.Commit()
	})
	if err != nil {
		return err
	}

	source := i.tracker.Source()
	metrics.LastCommittedHeightSet(source, height)
	metrics.HeightsProcessedInc(source)
	metrics.HeightProcessingTimeLog(source, time.Since(start))

	i.log.Debugw("height committed", "source", source, "height", height, "items", len(block.Items))

	return nil
}
