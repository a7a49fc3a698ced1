package token

import (
	"fmt"
	"math/big"

	"github.com/goran-ethernal/ContractIndexor/internal/cis2"
	"github.com/goran-ethernal/ContractIndexor/internal/store"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

// LogPosition locates a log entry: the contract event that carried it and its index
// among that event's logs.
type LogPosition struct {
	BlockHeight      uint64
	TransactionIndex uint64
	EventIndex       uint64
	LogIndex         uint64
}

// BalanceChange is a signed balance change of an account, before the account is
// resolved to its id.
type BalanceChange struct {
	Contract types.ContractAddress
	TokenID  string
	Account  types.AccountAddress
	Delta    *big.Int
}

// Changes accumulates what a sequence of decoded CIS-2 events does to tokens and balances.
type Changes struct {
	Supplies  []store.TokenSupplyDelta
	Metadata  []store.TokenMetadataUpdate
	Balances  []BalanceChange
	Events    []*store.TokenEvent
	Operators int
}

// Apply maps one decoded event to its changes.
func (c *Changes) Apply(ev cis2.Event, pos LogPosition) error {
	return ev.Accept(&changesVisitor{changes: c, pos: pos})
}

// Accounts returns the distinct accounts with balance changes, in first-seen order.
func (c *Changes) Accounts() []types.AccountAddress {
	seen := make(map[types.AccountAddress]struct{}, len(c.Balances))
	var out []types.AccountAddress
	for _, b := range c.Balances {
		if _, ok := seen[b.Account]; ok {
			continue
		}
		seen[b.Account] = struct{}{}
		out = append(out, b.Account)
	}
	return out
}

type changesVisitor struct {
	changes *Changes
	pos     LogPosition
}

var _ cis2.EventVisitor = (*changesVisitor)(nil)

func (v *changesVisitor) supply(origin cis2.Origin, tokenID string, delta *big.Int) error {
	addr, err := cis2.EncodeTokenAddress(origin.Contract.Index, origin.Contract.SubIndex, tokenID)
	if err != nil {
		return err
	}
	v.changes.Supplies = append(v.changes.Supplies, store.TokenSupplyDelta{
		Contract:     origin.Contract,
		TokenID:      tokenID,
		TokenAddress: addr,
		Delta:        delta,
	})
	return nil
}

// balance records delta for owner when owner is an account. Contracts holding
// tokens have no account balance.
func (v *changesVisitor) balance(origin cis2.Origin, tokenID string, owner types.Address, delta *big.Int) {
	account, ok := types.AsAccount(owner)
	if !ok {
		return
	}
	v.changes.Balances = append(v.changes.Balances, BalanceChange{
		Contract: origin.Contract,
		TokenID:  tokenID,
		Account:  account,
		Delta:    delta,
	})
}

func (v *changesVisitor) event(ev cis2.Event, tokenID string, amount *big.Int, from, to types.Address, url string) {
	v.changes.Events = append(v.changes.Events, &store.TokenEvent{
		ContractIndex:    ev.Source().Contract.Index,
		ContractSubIndex: ev.Source().Contract.SubIndex,
		TokenID:          tokenID,
		EventType:        ev.Tag().String(),
		Amount:           amount,
		FromAddress:      addressString(from),
		ToAddress:        addressString(to),
		MetadataURL:      url,
		BlockHeight:      v.pos.BlockHeight,
		TransactionIndex: v.pos.TransactionIndex,
		EventIndex:       v.pos.EventIndex,
		LogIndex:         v.pos.LogIndex,
		TransactionHash:  ev.Source().TransactionHash,
	})
}

func (v *changesVisitor) VisitTransfer(e *cis2.TransferEvent) error {
	v.balance(e.Origin, e.TokenID, e.From, new(big.Int).Neg(e.Amount))
	v.balance(e.Origin, e.TokenID, e.To, new(big.Int).Set(e.Amount))
	v.event(e, e.TokenID, e.Amount, e.From, e.To, "")
	return nil
}

func (v *changesVisitor) VisitMint(e *cis2.MintEvent) error {
	if err := v.supply(e.Origin, e.TokenID, new(big.Int).Set(e.Amount)); err != nil {
		return err
	}
	v.balance(e.Origin, e.TokenID, e.Owner, new(big.Int).Set(e.Amount))
	v.event(e, e.TokenID, e.Amount, nil, e.Owner, "")
	return nil
}

func (v *changesVisitor) VisitBurn(e *cis2.BurnEvent) error {
	if err := v.supply(e.Origin, e.TokenID, new(big.Int).Neg(e.Amount)); err != nil {
		return err
	}
	v.balance(e.Origin, e.TokenID, e.Owner, new(big.Int).Neg(e.Amount))
	v.event(e, e.TokenID, e.Amount, e.Owner, nil, "")
	return nil
}

// Operator updates concern no token and change no balance.
func (v *changesVisitor) VisitUpdateOperator(*cis2.UpdateOperatorEvent) error {
	v.changes.Operators++
	return nil
}

func (v *changesVisitor) VisitTokenMetadata(e *cis2.TokenMetadataEvent) error {
	addr, err := cis2.EncodeTokenAddress(e.Contract.Index, e.Contract.SubIndex, e.TokenID)
	if err != nil {
		return err
	}
	v.changes.Metadata = append(v.changes.Metadata, store.TokenMetadataUpdate{
		Contract:     e.Contract,
		TokenID:      e.TokenID,
		TokenAddress: addr,
		URL:          e.URL,
	})
	v.event(e, e.TokenID, nil, nil, nil, e.URL)
	return nil
}

func addressString(a types.Address) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// logsOf returns the log entries carried by an effect.
func logsOf(effect types.Effect) ([]types.HexBytes, error) {
	v := &logsVisitor{}
	if err := effect.Accept(v); err != nil {
		return nil, fmt.Errorf("failed to read logs of %s: %w", effect.Kind(), err)
	}
	return v.logs, nil
}

type logsVisitor struct {
	logs []types.HexBytes
}

var _ types.EffectVisitor = (*logsVisitor)(nil)

func (v *logsVisitor) VisitContractInitialized(e *types.ContractInitialized) error {
	v.logs = e.Events
	return nil
}

func (v *logsVisitor) VisitContractUpdated(e *types.ContractUpdated) error {
	v.logs = e.Events
	return nil
}

func (v *logsVisitor) VisitContractInterrupted(e *types.ContractInterrupted) error {
	v.logs = e.Events
	return nil
}

func (v *logsVisitor) VisitContractResumed(*types.ContractResumed) error { return nil }

func (v *logsVisitor) VisitContractUpgraded(*types.ContractUpgraded) error { return nil }

func (v *logsVisitor) VisitTransferred(*types.Transferred) error { return nil }

func (v *logsVisitor) VisitModuleDeployed(*types.ModuleDeployed) error { return nil }

func (v *logsVisitor) VisitTransactionRejected(*types.TransactionRejected) error { return nil }

func (v *logsVisitor) VisitOther(*types.OtherEffect) error { return nil }
