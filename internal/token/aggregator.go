// Package token derives CIS-2 token supplies and account balances from contract events.
package token

import (
	"context"
	"fmt"

	"github.com/goran-ethernal/ContractIndexor/internal/cis2"
	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/metrics"
	"github.com/goran-ethernal/ContractIndexor/internal/store"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

// AccountResolver maps account addresses to account ids. Unknown addresses are
// absent from the result.
type AccountResolver interface {
	Resolve(ctx context.Context, addrs []types.AccountAddress) (map[types.AccountAddress]int64, error)
}

// Notifier is told which accounts had their balances changed by a committed unit of work.
type Notifier interface {
	NotifyBalanceChanged(accounts []types.AccountAddress)
}

// Aggregator decodes the CIS-2 logs of staged contract events and writes the
// resulting token and balance changes.
type Aggregator struct {
	accounts AccountResolver
	notifier Notifier
	log      *logger.Logger
}

// NewAggregator creates a new Aggregator. notifier may be nil.
func NewAggregator(accounts AccountResolver, notifier Notifier, log *logger.Logger) *Aggregator {
	return &Aggregator{
		accounts: accounts,
		notifier: notifier,
		log:      log.WithComponent(common.ComponentTokenAggregator),
	}
}

// Collect decodes every log of events, in order. Malformed logs and logs that are
// not CIS-2 events are skipped.
func (a *Aggregator) Collect(events []*store.ContractEvent) (*Changes, error) {
	changes := &Changes{}

	for _, e := range events {
		if e.Effect == nil {
			continue
		}
		logs, err := logsOf(e.Effect)
		if err != nil {
			return nil, err
		}

		origin := cis2.Origin{Contract: e.Address(), TransactionHash: e.TransactionHash}
		for i, raw := range logs {
			ev, ok, err := cis2.Decode(raw, origin)
			if err != nil {
				metrics.CIS2DecodeFailureInc()
				a.log.Warnw("dropping malformed CIS-2 event",
					"contract", origin.Contract.String(),
					"height", e.BlockHeight,
					"transaction_index", e.TransactionIndex,
					"event_index", e.EventIndex,
					"log_index", i,
					"error", err,
				)
				continue
			}
			if !ok {
				continue
			}

			metrics.CIS2EventDecodedInc(ev.Tag().String())

			pos := LogPosition{
				BlockHeight:      e.BlockHeight,
				TransactionIndex: e.TransactionIndex,
				EventIndex:       e.EventIndex,
				LogIndex:         uint64(i),
			}
			if err := changes.Apply(ev, pos); err != nil {
				return nil, fmt.Errorf("failed to apply %s event of %s: %w", ev.Tag(), origin.Contract, err)
			}
		}
	}

	return changes, nil
}

// Aggregate processes the contract events staged in uow and writes token events,
// supplies, metadata and balances through it. Accounts whose balances changed are
// notified once uow commits.
func (a *Aggregator) Aggregate(ctx context.Context, uow *store.UnitOfWork) error {
	changes, err := a.Collect(uow.Staged().ContractEvents)
	if err != nil {
		return err
	}

	if changes.Operators > 0 {
		a.log.Debugf("skipped %d operator updates", changes.Operators)
	}

	balances, notified, err := a.resolve(ctx, changes)
	if err != nil {
		return err
	}

	if err := uow.AddTokenEvents(changes.Events); err != nil {
		return err
	}
	if err := uow.UpsertTokenSupplies(ctx, changes.Supplies); err != nil {
		return err
	}
	if err := uow.UpsertTokenMetadata(ctx, changes.Metadata); err != nil {
		return err
	}
	if err := uow.UpsertAccountBalances(ctx, balances); err != nil {
		return err
	}

	if a.notifier != nil && len(notified) > 0 {
		uow.AfterCommit(func() {
			a.notifier.NotifyBalanceChanged(notified)
		})
	}

	if len(changes.Events) > 0 {
		a.log.Debugw("token events aggregated",
			"token_events", len(changes.Events),
			"supply_deltas", len(changes.Supplies),
			"balance_deltas", len(balances),
			"accounts", len(notified),
		)
	}

	return nil
}

// resolve turns balance changes into id keyed deltas. Changes of accounts that
// can not be resolved are dropped.
func (a *Aggregator) resolve(ctx context.Context, changes *Changes) ([]store.AccountBalanceDelta, []types.AccountAddress, error) {
	accounts := changes.Accounts()
	if len(accounts) == 0 {
		return nil, nil, nil
	}

	ids, err := a.accounts.Resolve(ctx, accounts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve %d accounts: %w", len(accounts), err)
	}

	resolved := make([]types.AccountAddress, 0, len(accounts))
	for _, acc := range accounts {
		if _, ok := ids[acc]; ok {
			resolved = append(resolved, acc)
		}
	}

	balances := make([]store.AccountBalanceDelta, 0, len(changes.Balances))
	dropped := 0
	for _, b := range changes.Balances {
		id, ok := ids[b.Account]
		if !ok {
			dropped++
			a.log.Warnw("dropping balance change of unknown account",
				"account", b.Account.String(),
				"contract", b.Contract.String(),
				"token_id", b.TokenID,
				"delta", b.Delta.String(),
			)
			continue
		}
		balances = append(balances, store.AccountBalanceDelta{
			Contract:  b.Contract,
			TokenID:   b.TokenID,
			AccountID: id,
			Delta:     b.Delta,
		})
	}
	metrics.UnresolvedAccountsAdd(dropped)

	return balances, resolved, nil
}
