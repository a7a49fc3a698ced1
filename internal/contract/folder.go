package contract

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/metrics"
	"github.com/goran-ethernal/ContractIndexor/internal/store"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

// Folder derives a new snapshot for every contract touched in a unit of work.
type Folder struct {
	log *logger.Logger
}

// NewFolder creates a new Folder.
func NewFolder(log *logger.Logger) *Folder {
	return &Folder{log: log.WithComponent(common.ComponentSnapshotFolder)}
}

// Fold reads the staged rows of uow and adds one snapshot at height per touched
// contract. Contracts are folded in order of first touch.
func (f *Folder) Fold(ctx context.Context, uow *store.UnitOfWork, height uint64) error {
	staged := uow.Staged()

	order, groups := GroupByContract(staged.ContractEvents)
	if len(order) == 0 {
		return nil
	}

	created := make(map[types.ContractAddress]*store.Contract, len(staged.Contracts))
	for _, c := range staged.Contracts {
		created[c.Address()] = c
	}

	modules := latestLinks(staged.LinkEvents)

	for _, addr := range order {
		events := groups[addr]

		var (
			baseline *store.ContractSnapshot
			err      error
		)
		if _, ok := created[addr]; ok {
			baseline, err = initialSnapshot(addr, events)
		} else {
			baseline, err = uow.LatestSnapshot(ctx, addr)
			if errors.Is(err, store.ErrNotFound) {
				err = fmt.Errorf("%w: no prior snapshot for existing contract %s", store.ErrInvariant, addr)
			}
		}
		if err != nil {
			return err
		}

		amount, err := FoldAmount(addr, baseline.Amount, events)
		if err != nil {
			return err
		}

		module := baseline.ModuleRef
		if link, ok := modules[addr]; ok {
			module = link
		}

		snapshot := &store.ContractSnapshot{
			BlockHeight:      height,
			ContractIndex:    addr.Index,
			ContractSubIndex: addr.SubIndex,
			ContractName:     baseline.ContractName,
			ModuleRef:        module,
			Amount:           amount,
		}
		if err := uow.AddSnapshot(snapshot); err != nil {
			return err
		}

		f.log.Debugf("snapshot folded: contract=%s height=%d events=%d amount=%d",
			addr, height, len(events), amount)
	}

	metrics.SnapshotsWrittenAdd(len(order))

	return nil
}

// initialSnapshot is the baseline of a contract created in this unit of work: its
// name from the init event and a zero balance. Exactly one init event must exist.
func initialSnapshot(addr types.ContractAddress, events []*store.ContractEvent) (*store.ContractSnapshot, error) {
	var inits []*types.ContractInitialized
	for _, e := range events {
		if init, ok := e.Effect.(*types.ContractInitialized); ok && init.Address == addr {
			inits = append(inits, init)
		}
	}
	if len(inits) != 1 {
		return nil, fmt.Errorf("%w: contract %s has %d init events", store.ErrInvariant, addr, len(inits))
	}

	return &store.ContractSnapshot{
		ContractIndex:    addr.Index,
		ContractSubIndex: addr.SubIndex,
		ContractName:     StripInitPrefix(inits[0].InitName),
		ModuleRef:        inits[0].ModuleRef,
	}, nil
}

// latestLinks returns the module of the last Added link per contract.
func latestLinks(links []*store.LinkEvent) map[types.ContractAddress]types.ModuleReference {
	out := make(map[types.ContractAddress]types.ModuleReference, len(links))
	latest := make(map[types.ContractAddress]store.Position, len(links))

	for _, l := range links {
		if l.Action != store.LinkAdded {
			continue
		}
		addr := l.Address()
		if pos, ok := latest[addr]; ok && l.Pos().Before(pos) {
			continue
		}
		latest[addr] = l.Pos()
		out[addr] = l.ModuleRef
	}

	return out
}

// GroupByContract groups events by every contract they touch. An event touches the
// contract it is attributed to and, for a call made by another contract, the
// calling contract. Each group keeps the input order.
func GroupByContract(events []*store.ContractEvent) ([]types.ContractAddress, map[types.ContractAddress][]*store.ContractEvent) {
	var order []types.ContractAddress
	groups := make(map[types.ContractAddress][]*store.ContractEvent)

	add := func(addr types.ContractAddress, e *store.ContractEvent) {
		if _, ok := groups[addr]; !ok {
			order = append(order, addr)
		}
		groups[addr] = append(groups[addr], e)
	}

	for _, e := range events {
		addr := e.Address()
		add(addr, e)

		if upd, ok := e.Effect.(*types.ContractUpdated); ok {
			if caller, ok := types.AsContract(upd.Instigator); ok && caller != addr {
				add(caller, e)
			}
		}
	}

	return order, groups
}

// FoldAmount folds the CCD balance of addr over events, starting at baseline.
// Incoming amounts are added, amounts sent by addr are subtracted, in order.
func FoldAmount(addr types.ContractAddress, baseline types.CCDAmount, events []*store.ContractEvent) (types.CCDAmount, error) {
	v := &amountVisitor{addr: addr, balance: baseline}

	for _, e := range events {
		if e.Effect == nil {
			continue
		}
		if err := e.Effect.Accept(v); err != nil {
			return 0, fmt.Errorf("contract %s at (%d,%d,%d): %w",
				addr, e.BlockHeight, e.TransactionIndex, e.EventIndex, err)
		}
	}

	return v.balance, nil
}

type amountVisitor struct {
	addr    types.ContractAddress
	balance types.CCDAmount
}

var _ types.EffectVisitor = (*amountVisitor)(nil)

func (v *amountVisitor) credit(amount types.CCDAmount) error {
	if amount > math.MaxUint64-v.balance {
		return fmt.Errorf("%w: balance %d overflows adding %d", store.ErrInvariant, v.balance, amount)
	}
	v.balance += amount
	return nil
}

func (v *amountVisitor) debit(amount types.CCDAmount) error {
	if amount > v.balance {
		return fmt.Errorf("%w: balance %d underflows subtracting %d", store.ErrInvariant, v.balance, amount)
	}
	v.balance -= amount
	return nil
}

func (v *amountVisitor) VisitContractInitialized(e *types.ContractInitialized) error {
	if e.Address != v.addr {
		return nil
	}
	return v.credit(e.Amount)
}

func (v *amountVisitor) VisitContractUpdated(e *types.ContractUpdated) error {
	if e.Address == v.addr {
		if err := v.credit(e.Amount); err != nil {
			return err
		}
	}
	if caller, ok := types.AsContract(e.Instigator); ok && caller == v.addr {
		return v.debit(e.Amount)
	}
	return nil
}

func (v *amountVisitor) VisitContractInterrupted(*types.ContractInterrupted) error { return nil }

func (v *amountVisitor) VisitContractResumed(*types.ContractResumed) error { return nil }

func (v *amountVisitor) VisitContractUpgraded(*types.ContractUpgraded) error { return nil }

func (v *amountVisitor) VisitTransferred(e *types.Transferred) error {
	if to, ok := types.AsContract(e.To); ok && to == v.addr {
		if err := v.credit(e.Amount); err != nil {
			return err
		}
	}
	if from, ok := types.AsContract(e.From); ok && from == v.addr {
		return v.debit(e.Amount)
	}
	return nil
}

func (v *amountVisitor) VisitModuleDeployed(*types.ModuleDeployed) error { return nil }

func (v *amountVisitor) VisitTransactionRejected(*types.TransactionRejected) error { return nil }

func (v *amountVisitor) VisitOther(*types.OtherEffect) error { return nil }
