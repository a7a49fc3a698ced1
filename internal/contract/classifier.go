// Package contract turns block effects into contract domain rows and folds them into
// per-contract snapshots.
package contract

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/metrics"
	"github.com/goran-ethernal/ContractIndexor/internal/store"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

const initPrefix = "init_"

// StripInitPrefix returns the contract name of an init function name.
func StripInitPrefix(initName string) string {
	return strings.TrimPrefix(initName, initPrefix)
}

// BlockInfoFunc fetches block metadata. It is called at most once per block, and
// only when the block produced rows.
type BlockInfoFunc func(ctx context.Context) (*types.BlockInfo, error)

// Batch holds the rows produced for one block, each list in block order.
type Batch struct {
	Height         uint64
	Contracts      []*store.Contract
	ContractEvents []*store.ContractEvent
	LinkEvents     []*store.LinkEvent
	ModuleEvents   []*store.ModuleReferenceEvent
	RejectEvents   []*store.ContractRejectEvent
}

// Empty reports whether the block produced no rows.
func (b *Batch) Empty() bool {
	return len(b.Contracts) == 0 && len(b.ContractEvents) == 0 && len(b.LinkEvents) == 0 &&
		len(b.ModuleEvents) == 0 && len(b.RejectEvents) == 0
}

func (b *Batch) setSlotTime(millis int64) {
	for _, c := range b.Contracts {
		c.BlockSlotTime = millis
	}
	for _, e := range b.ContractEvents {
		e.BlockSlotTime = millis
	}
	for _, l := range b.LinkEvents {
		l.BlockSlotTime = millis
	}
	for _, m := range b.ModuleEvents {
		m.BlockSlotTime = millis
	}
	for _, r := range b.RejectEvents {
		r.BlockSlotTime = millis
	}
}

// Classifier maps block effects to contract domain rows.
type Classifier struct {
	log *logger.Logger
}

// NewClassifier creates a new Classifier.
func NewClassifier(log *logger.Logger) *Classifier {
	return &Classifier{log: log.WithComponent(common.ComponentClassifier)}
}

// Classify produces the rows for one block without touching storage. Items must be
// in block order; classifying the same block twice yields equal batches.
func (c *Classifier) Classify(block *types.BlockTransactionEvents) (*Batch, error) {
	v := &classifyVisitor{batch: &Batch{Height: block.Height}}

	for i := range block.Items {
		item := &block.Items[i]
		if i > 0 && !block.Items[i-1].Precedes(*item) {
			return nil, fmt.Errorf("%w: block %d item (%d,%d) out of order",
				store.ErrInvariant, block.Height, item.TransactionIndex, item.EventIndex)
		}
		if item.Effect == nil {
			continue
		}

		v.item = item
		if err := item.Effect.Accept(v); err != nil {
			return nil, fmt.Errorf("failed to classify effect %s at (%d,%d): %w",
				item.Effect.Kind(), item.TransactionIndex, item.EventIndex, err)
		}
	}

	return v.batch, nil
}

// Stage classifies block and adds the rows to uow. Block info is fetched only when
// there is something to stage. The returned batch is empty for irrelevant blocks.
func (c *Classifier) Stage(
	ctx context.Context,
	uow *store.UnitOfWork,
	block *types.BlockTransactionEvents,
	blockInfo BlockInfoFunc,
) (*Batch, error) {
	batch, err := c.Classify(block)
	if err != nil {
		return nil, err
	}
	if batch.Empty() {
		return batch, nil
	}

	info, err := blockInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block info for height %d: %w", block.Height, err)
	}
	batch.setSlotTime(store.SlotTimeMillis(info.SlotTime))

	for _, m := range batch.ModuleEvents {
		if err := uow.AddModuleReferenceEvent(m); err != nil {
			return nil, err
		}
	}
	for _, ct := range batch.Contracts {
		if err := uow.AddContract(ctx, ct); err != nil {
			return nil, err
		}
	}
	for _, e := range batch.ContractEvents {
		if err := uow.AddContractEvent(e); err != nil {
			return nil, err
		}
	}
	for _, l := range batch.LinkEvents {
		if err := uow.AddLinkEvent(l); err != nil {
			return nil, err
		}
	}
	for _, r := range batch.RejectEvents {
		if err := uow.AddRejectEvent(r); err != nil {
			return nil, err
		}
	}

	metrics.ContractRowsStagedAdd("contract", len(batch.Contracts))
	metrics.ContractRowsStagedAdd("contract_event", len(batch.ContractEvents))
	metrics.ContractRowsStagedAdd("link_event", len(batch.LinkEvents))
	metrics.ContractRowsStagedAdd("module_event", len(batch.ModuleEvents))
	metrics.ContractRowsStagedAdd("reject_event", len(batch.RejectEvents))

	c.log.Debugw("block classified",
		"height", block.Height,
		"contracts", len(batch.Contracts),
		"contract_events", len(batch.ContractEvents),
		"link_events", len(batch.LinkEvents),
		"module_events", len(batch.ModuleEvents),
		"reject_events", len(batch.RejectEvents),
	)

	return batch, nil
}

type classifyVisitor struct {
	batch *Batch
	item  *types.BlockItem
}

var _ types.EffectVisitor = (*classifyVisitor)(nil)

func (v *classifyVisitor) contractEvent(addr types.ContractAddress) {
	v.batch.ContractEvents = append(v.batch.ContractEvents, &store.ContractEvent{
		BlockHeight:      v.batch.Height,
		TransactionIndex: v.item.TransactionIndex,
		EventIndex:       v.item.EventIndex,
		ContractIndex:    addr.Index,
		ContractSubIndex: addr.SubIndex,
		TransactionHash:  v.item.TransactionHash,
		Sender:           v.item.Sender,
		Effect:           v.item.Effect,
	})
}

func (v *classifyVisitor) linkAdded(addr types.ContractAddress, module types.ModuleReference) {
	v.batch.LinkEvents = append(v.batch.LinkEvents, &store.LinkEvent{
		BlockHeight:      v.batch.Height,
		TransactionIndex: v.item.TransactionIndex,
		EventIndex:       v.item.EventIndex,
		ModuleRef:        module,
		ContractIndex:    addr.Index,
		ContractSubIndex: addr.SubIndex,
		Action:           store.LinkAdded,
		TransactionHash:  v.item.TransactionHash,
	})
}

func (v *classifyVisitor) VisitContractInitialized(e *types.ContractInitialized) error {
	v.batch.Contracts = append(v.batch.Contracts, &store.Contract{
		ContractIndex:    e.Address.Index,
		ContractSubIndex: e.Address.SubIndex,
		BlockHeight:      v.batch.Height,
		TransactionIndex: v.item.TransactionIndex,
		EventIndex:       v.item.EventIndex,
		TransactionHash:  v.item.TransactionHash,
		Creator:          v.item.Sender,
	})
	v.contractEvent(e.Address)
	v.linkAdded(e.Address, e.ModuleRef)
	return nil
}

func (v *classifyVisitor) VisitContractUpdated(e *types.ContractUpdated) error {
	v.contractEvent(e.Address)
	return nil
}

func (v *classifyVisitor) VisitContractInterrupted(e *types.ContractInterrupted) error {
	v.contractEvent(e.Address)
	return nil
}

func (v *classifyVisitor) VisitContractResumed(e *types.ContractResumed) error {
	v.contractEvent(e.Address)
	return nil
}

// The previous link is not removed: the module of a contract is the latest Added
// link at or before a position.
func (v *classifyVisitor) VisitContractUpgraded(e *types.ContractUpgraded) error {
	v.contractEvent(e.Address)
	v.linkAdded(e.Address, e.To)
	return nil
}

func (v *classifyVisitor) VisitTransferred(e *types.Transferred) error {
	if addr, ok := contractEndpoint(e.From, e.To); ok {
		v.contractEvent(addr)
	}
	return nil
}

func (v *classifyVisitor) VisitModuleDeployed(e *types.ModuleDeployed) error {
	v.batch.ModuleEvents = append(v.batch.ModuleEvents, &store.ModuleReferenceEvent{
		ModuleRef:        e.ModuleRef,
		BlockHeight:      v.batch.Height,
		TransactionIndex: v.item.TransactionIndex,
		EventIndex:       v.item.EventIndex,
		TransactionHash:  v.item.TransactionHash,
		Sender:           v.item.Sender,
	})
	return nil
}

func (v *classifyVisitor) VisitTransactionRejected(e *types.TransactionRejected) error {
	if e.Reason == nil {
		return nil
	}
	contract, module := e.Reason.References()
	if contract == nil && module == nil {
		return nil
	}

	reject := &store.ContractRejectEvent{
		BlockHeight:      v.batch.Height,
		TransactionIndex: v.item.TransactionIndex,
		TransactionHash:  v.item.TransactionHash,
		ModuleRef:        module,
		Sender:           v.item.Sender,
		Reason:           e.Reason,
	}
	if contract != nil {
		reject.ContractIndex = sql.NullInt64{Int64: int64(contract.Index), Valid: true}       //nolint:gosec
		reject.ContractSubIndex = sql.NullInt64{Int64: int64(contract.SubIndex), Valid: true} //nolint:gosec
	}
	v.batch.RejectEvents = append(v.batch.RejectEvents, reject)
	return nil
}

func (v *classifyVisitor) VisitOther(*types.OtherEffect) error {
	return nil
}

// contractEndpoint returns the contract side of a transfer between a contract and
// an account. Transfers between two accounts or two contracts have none.
func contractEndpoint(from, to types.Address) (types.ContractAddress, bool) {
	fromContract, fromIsContract := types.AsContract(from)
	toContract, toIsContract := types.AsContract(to)
	_, fromIsAccount := types.AsAccount(from)
	_, toIsAccount := types.AsAccount(to)

	switch {
	case fromIsContract && toIsAccount:
		return fromContract, true
	case fromIsAccount && toIsContract:
		return toContract, true
	default:
		return types.ContractAddress{}, false
	}
}
