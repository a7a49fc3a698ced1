package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EffectKind names a transaction effect variant.
type EffectKind string

const (
	EffectContractInitialized EffectKind = "contractInitialized"
	EffectContractUpdated     EffectKind = "contractUpdated"
	EffectContractInterrupted EffectKind = "contractInterrupted"
	EffectContractResumed     EffectKind = "contractResumed"
	EffectContractUpgraded    EffectKind = "contractUpgraded"
	EffectTransferred         EffectKind = "transferred"
	EffectModuleDeployed      EffectKind = "moduleDeployed"
	EffectTransactionRejected EffectKind = "transactionRejected"
)

// ErrUnknownEffect is returned when an effect payload can not be decoded.
var ErrUnknownEffect = errors.New("unknown effect")

// Effect is one outcome of an account transaction. The set of variants is closed:
// every variant is dispatched through EffectVisitor, so a new variant does not
// compile until every visitor handles it.
type Effect interface {
	Kind() EffectKind
	Accept(v EffectVisitor) error
}

// EffectVisitor handles every Effect variant.
type EffectVisitor interface {
	VisitContractInitialized(e *ContractInitialized) error
	VisitContractUpdated(e *ContractUpdated) error
	VisitContractInterrupted(e *ContractInterrupted) error
	VisitContractResumed(e *ContractResumed) error
	VisitContractUpgraded(e *ContractUpgraded) error
	VisitTransferred(e *Transferred) error
	VisitModuleDeployed(e *ModuleDeployed) error
	VisitTransactionRejected(e *TransactionRejected) error
	VisitOther(e *OtherEffect) error
}

// ContractInitialized is emitted when a new contract instance is created.
type ContractInitialized struct {
	ContractVersion uint8           `json:"contractVersion"`
	ModuleRef       ModuleReference `json:"moduleRef"`
	Address         ContractAddress `json:"address"`
	Amount          CCDAmount       `json:"amount"`
	InitName        string          `json:"initName"`
	Events          []HexBytes      `json:"events"`
}

func (e *ContractInitialized) Kind() EffectKind { return EffectContractInitialized }

func (e *ContractInitialized) Accept(v EffectVisitor) error { return v.VisitContractInitialized(e) }

// ContractUpdated is emitted when a contract receive function completed.
// Instigator is the account or contract that invoked it.
type ContractUpdated struct {
	ContractVersion uint8           `json:"contractVersion"`
	Address         ContractAddress `json:"address"`
	Instigator      Address         `json:"-"`
	Amount          CCDAmount       `json:"amount"`
	Message         HexBytes        `json:"message"`
	ReceiveName     string          `json:"receiveName"`
	Events          []HexBytes      `json:"events"`
}

func (e *ContractUpdated) Kind() EffectKind { return EffectContractUpdated }

func (e *ContractUpdated) Accept(v EffectVisitor) error { return v.VisitContractUpdated(e) }

type contractUpdatedAlias ContractUpdated

type contractUpdatedJSON struct {
	*contractUpdatedAlias
	Instigator json.RawMessage `json:"instigator"`
}

func (e ContractUpdated) MarshalJSON() ([]byte, error) {
	instigator, err := MarshalAddress(e.Instigator)
	if err != nil {
		return nil, err
	}
	alias := contractUpdatedAlias(e)
	return json.Marshal(contractUpdatedJSON{contractUpdatedAlias: &alias, Instigator: instigator})
}

func (e *ContractUpdated) UnmarshalJSON(data []byte) error {
	aux := contractUpdatedJSON{contractUpdatedAlias: (*contractUpdatedAlias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Instigator) == 0 {
		return fmt.Errorf("%w: contractUpdated without instigator", ErrInvalidAddress)
	}
	instigator, err := UnmarshalAddress(aux.Instigator)
	if err != nil {
		return err
	}
	e.Instigator = instigator
	return nil
}

// ContractInterrupted is emitted when a V1 contract calls out to another contract or account.
type ContractInterrupted struct {
	Address ContractAddress `json:"address"`
	Events  []HexBytes      `json:"events"`
}

func (e *ContractInterrupted) Kind() EffectKind { return EffectContractInterrupted }

func (e *ContractInterrupted) Accept(v EffectVisitor) error { return v.VisitContractInterrupted(e) }

// ContractResumed is emitted when an interrupted contract resumes.
type ContractResumed struct {
	Address ContractAddress `json:"address"`
	Success bool            `json:"success"`
}

func (e *ContractResumed) Kind() EffectKind { return EffectContractResumed }

func (e *ContractResumed) Accept(v EffectVisitor) error { return v.VisitContractResumed(e) }

// ContractUpgraded is emitted when a contract switches to a new module.
type ContractUpgraded struct {
	Address ContractAddress `json:"address"`
	From    ModuleReference `json:"from"`
	To      ModuleReference `json:"to"`
}

func (e *ContractUpgraded) Kind() EffectKind { return EffectContractUpgraded }

func (e *ContractUpgraded) Accept(v EffectVisitor) error { return v.VisitContractUpgraded(e) }

// Transferred is a CCD transfer between two addresses.
type Transferred struct {
	Amount CCDAmount `json:"amount"`
	From   Address   `json:"-"`
	To     Address   `json:"-"`
}

func (e *Transferred) Kind() EffectKind { return EffectTransferred }

func (e *Transferred) Accept(v EffectVisitor) error { return v.VisitTransferred(e) }

type transferredJSON struct {
	Amount CCDAmount       `json:"amount"`
	From   json.RawMessage `json:"from"`
	To     json.RawMessage `json:"to"`
}

func (e Transferred) MarshalJSON() ([]byte, error) {
	from, err := MarshalAddress(e.From)
	if err != nil {
		return nil, err
	}
	to, err := MarshalAddress(e.To)
	if err != nil {
		return nil, err
	}
	return json.Marshal(transferredJSON{Amount: e.Amount, From: from, To: to})
}

func (e *Transferred) UnmarshalJSON(data []byte) error {
	var aux transferredJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.From) == 0 || len(aux.To) == 0 {
		return fmt.Errorf("%w: transferred without endpoints", ErrInvalidAddress)
	}
	from, err := UnmarshalAddress(aux.From)
	if err != nil {
		return err
	}
	to, err := UnmarshalAddress(aux.To)
	if err != nil {
		return err
	}
	e.Amount, e.From, e.To = aux.Amount, from, to
	return nil
}

// ModuleDeployed is emitted when a smart contract module is deployed.
type ModuleDeployed struct {
	ModuleRef ModuleReference `json:"moduleRef"`
}

func (e *ModuleDeployed) Kind() EffectKind { return EffectModuleDeployed }

func (e *ModuleDeployed) Accept(v EffectVisitor) error { return v.VisitModuleDeployed(e) }

// TransactionRejected is the single effect of a rejected transaction.
type TransactionRejected struct {
	Reason RejectReason `json:"-"`
}

func (e *TransactionRejected) Kind() EffectKind { return EffectTransactionRejected }

func (e *TransactionRejected) Accept(v EffectVisitor) error { return v.VisitTransactionRejected(e) }

type transactionRejectedJSON struct {
	Reason json.RawMessage `json:"reason"`
}

func (e TransactionRejected) MarshalJSON() ([]byte, error) {
	reason, err := MarshalRejectReason(e.Reason)
	if err != nil {
		return nil, err
	}
	return json.Marshal(transactionRejectedJSON{Reason: reason})
}

func (e *TransactionRejected) UnmarshalJSON(data []byte) error {
	var aux transactionRejectedJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	reason, err := UnmarshalRejectReason(aux.Reason)
	if err != nil {
		return err
	}
	e.Reason = reason
	return nil
}

// OtherEffect stands for every effect variant this indexer does not interpret
// (baker, delegation, credential, ... events).
type OtherEffect struct {
	Type EffectKind `json:"-"`
}

func (e *OtherEffect) Kind() EffectKind { return e.Type }

func (e *OtherEffect) Accept(v EffectVisitor) error { return v.VisitOther(e) }

func (e OtherEffect) MarshalJSON() ([]byte, error) { return []byte("{}"), nil }

// newEffect allocates the concrete variant for kind.
func newEffect(kind EffectKind) Effect {
	switch kind {
	case EffectContractInitialized:
		return &ContractInitialized{}
	case EffectContractUpdated:
		return &ContractUpdated{}
	case EffectContractInterrupted:
		return &ContractInterrupted{}
	case EffectContractResumed:
		return &ContractResumed{}
	case EffectContractUpgraded:
		return &ContractUpgraded{}
	case EffectTransferred:
		return &Transferred{}
	case EffectModuleDeployed:
		return &ModuleDeployed{}
	case EffectTransactionRejected:
		return &TransactionRejected{}
	default:
		return &OtherEffect{Type: kind}
	}
}

type kindJSON struct {
	Type EffectKind `json:"type"`
}

// MarshalEffect encodes an effect as a JSON object with a "type" discriminator.
func MarshalEffect(e Effect) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil effect", ErrUnknownEffect)
	}

	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s effect: %w", e.Kind(), err)
	}

	head, err := json.Marshal(kindJSON{Type: e.Kind()})
	if err != nil {
		return nil, err
	}

	// splice {"type":"..."} with the variant's own fields
	body = bytes.TrimSpace(body)
	if len(body) <= 2 { //nolint:mnd
		return head, nil
	}

	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// UnmarshalEffect decodes the form produced by MarshalEffect.
func UnmarshalEffect(data []byte) (Effect, error) {
	var head kindJSON
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownEffect, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrUnknownEffect)
	}

	effect := newEffect(head.Type)
	if _, other := effect.(*OtherEffect); other {
		return effect, nil
	}

	if err := json.Unmarshal(data, effect); err != nil {
		return nil, fmt.Errorf("failed to decode %s effect: %w", head.Type, err)
	}

	return effect, nil
}

// BlockItem is one effect of one transaction in a block, with its position.
type BlockItem struct {
	TransactionIndex uint64
	EventIndex       uint64
	TransactionHash  common.Hash
	Sender           *AccountAddress
	Effect           Effect
}

type blockItemJSON struct {
	TransactionIndex uint64          `json:"transactionIndex"`
	EventIndex       uint64          `json:"eventIndex"`
	TransactionHash  common.Hash     `json:"transactionHash"`
	Sender           *AccountAddress `json:"sender,omitempty"`
	Effect           json.RawMessage `json:"effect"`
}

func (b BlockItem) MarshalJSON() ([]byte, error) {
	effect, err := MarshalEffect(b.Effect)
	if err != nil {
		return nil, err
	}
	return json.Marshal(blockItemJSON{
		TransactionIndex: b.TransactionIndex,
		EventIndex:       b.EventIndex,
		TransactionHash:  b.TransactionHash,
		Sender:           b.Sender,
		Effect:           effect,
	})
}

func (b *BlockItem) UnmarshalJSON(data []byte) error {
	var aux blockItemJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	effect, err := UnmarshalEffect(aux.Effect)
	if err != nil {
		return err
	}
	*b = BlockItem{
		TransactionIndex: aux.TransactionIndex,
		EventIndex:       aux.EventIndex,
		TransactionHash:  aux.TransactionHash,
		Sender:           aux.Sender,
		Effect:           effect,
	}
	return nil
}

// Precedes reports whether b comes before o in block order.
func (b BlockItem) Precedes(o BlockItem) bool {
	if b.TransactionIndex != o.TransactionIndex {
		return b.TransactionIndex < o.TransactionIndex
	}
	return b.EventIndex < o.EventIndex
}

// BlockTransactionEvents are the ordered effects of all transactions in a block.
type BlockTransactionEvents struct {
	Height    uint64      `json:"height"`
	BlockHash common.Hash `json:"blockHash"`
	Items     []BlockItem `json:"items"`
}

// BlockInfo holds block metadata fetched on demand.
type BlockInfo struct {
	Height   uint64      `json:"height"`
	Hash     common.Hash `json:"hash"`
	SlotTime time.Time   `json:"slotTime"`
}
