// Package cis2 decodes CIS-2 token events logged by smart contracts.
package cis2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

// Tag is the first byte of a CIS-2 event.
type Tag uint8

const (
	TagTokenMetadata  Tag = 251
	TagUpdateOperator Tag = 252
	TagBurn           Tag = 253
	TagMint           Tag = 254
	TagTransfer       Tag = 255
)

// String returns the event name for the tag.
func (t Tag) String() string {
	switch t {
	case TagTokenMetadata:
		return "tokenMetadata"
	case TagUpdateOperator:
		return "updateOperator"
	case TagBurn:
		return "burn"
	case TagMint:
		return "mint"
	case TagTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// IsTag reports whether b is the tag of a CIS-2 event.
func IsTag(b byte) bool {
	return b >= byte(TagTokenMetadata) && b <= byte(TagTransfer)
}

// OperatorUpdate is the action of an UpdateOperator event.
type OperatorUpdate uint8

const (
	OperatorRemove OperatorUpdate = 0
	OperatorAdd    OperatorUpdate = 1
)

func (u OperatorUpdate) String() string {
	if u == OperatorAdd {
		return "add"
	}
	return "remove"
}

// Origin identifies where an event was logged.
type Origin struct {
	Contract        types.ContractAddress
	TransactionHash common.Hash
}

// Event is a decoded CIS-2 event.
type Event interface {
	Tag() Tag
	Source() Origin
	Accept(v EventVisitor) error
}

// EventVisitor handles every CIS-2 event variant.
type EventVisitor interface {
	VisitTransfer(e *TransferEvent) error
	VisitMint(e *MintEvent) error
	VisitBurn(e *BurnEvent) error
	VisitUpdateOperator(e *UpdateOperatorEvent) error
	VisitTokenMetadata(e *TokenMetadataEvent) error
}

// TransferEvent moves Amount of TokenID from From to To.
type TransferEvent struct {
	Origin
	TokenID string
	Amount  *big.Int
	From    types.Address
	To      types.Address
}

func (e *TransferEvent) Tag() Tag                    { return TagTransfer }
func (e *TransferEvent) Source() Origin              { return e.Origin }
func (e *TransferEvent) Accept(v EventVisitor) error { return v.VisitTransfer(e) }

// MintEvent creates Amount of TokenID owned by Owner.
type MintEvent struct {
	Origin
	TokenID string
	Amount  *big.Int
	Owner   types.Address
}

func (e *MintEvent) Tag() Tag                    { return TagMint }
func (e *MintEvent) Source() Origin              { return e.Origin }
func (e *MintEvent) Accept(v EventVisitor) error { return v.VisitMint(e) }

// BurnEvent destroys Amount of TokenID owned by Owner.
type BurnEvent struct {
	Origin
	TokenID string
	Amount  *big.Int
	Owner   types.Address
}

func (e *BurnEvent) Tag() Tag                    { return TagBurn }
func (e *BurnEvent) Source() Origin              { return e.Origin }
func (e *BurnEvent) Accept(v EventVisitor) error { return v.VisitBurn(e) }

// UpdateOperatorEvent adds or removes Operator for Owner.
type UpdateOperatorEvent struct {
	Origin
	Update   OperatorUpdate
	Owner    types.Address
	Operator types.Address
}

func (e *UpdateOperatorEvent) Tag() Tag                    { return TagUpdateOperator }
func (e *UpdateOperatorEvent) Source() Origin              { return e.Origin }
func (e *UpdateOperatorEvent) Accept(v EventVisitor) error { return v.VisitUpdateOperator(e) }

// TokenMetadataEvent sets the metadata URL of TokenID.
// Checksum is nil when the event carries none.
type TokenMetadataEvent struct {
	Origin
	TokenID  string
	URL      string
	Checksum *common.Hash
}

func (e *TokenMetadataEvent) Tag() Tag                    { return TagTokenMetadata }
func (e *TokenMetadataEvent) Source() Origin              { return e.Origin }
func (e *TokenMetadataEvent) Accept(v EventVisitor) error { return v.VisitTokenMetadata(e) }
