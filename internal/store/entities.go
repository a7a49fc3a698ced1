package store

import (
	"database/sql"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

// Table names.
const (
	tableContracts      = "contracts"
	tableContractEvents = "contract_events"
	tableRejectEvents   = "contract_reject_events"
	tableModuleEvents   = "module_reference_events"
	tableLinkEvents     = "module_reference_contract_link_events"
	tableReadHeights    = "contract_read_heights"
	tableSnapshots      = "contract_snapshots"
	tableTokens         = "tokens"
	tableTokenEvents    = "token_events"
	tableAccountTokens  = "account_tokens"
	tableAccounts       = "accounts"
)

// Position locates an effect inside the chain.
type Position struct {
	BlockHeight      uint64
	TransactionIndex uint64
	EventIndex       uint64
}

// Before reports whether p comes strictly before o.
func (p Position) Before(o Position) bool {
	if p.BlockHeight != o.BlockHeight {
		return p.BlockHeight < o.BlockHeight
	}
	if p.TransactionIndex != o.TransactionIndex {
		return p.TransactionIndex < o.TransactionIndex
	}
	return p.EventIndex < o.EventIndex
}

// SlotTimeMillis converts a block slot time to the stored representation.
func SlotTimeMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Contract is created once, by the ContractInitialized effect, and never updated.
type Contract struct {
	ContractIndex    uint64                `meddler:"contract_index"`
	ContractSubIndex uint64                `meddler:"contract_subindex"`
	BlockHeight      uint64                `meddler:"block_height"`
	TransactionIndex uint64                `meddler:"transaction_index"`
	EventIndex       uint64                `meddler:"event_index"`
	TransactionHash  common.Hash           `meddler:"transaction_hash,hash"`
	Creator          *types.AccountAddress `meddler:"creator,account"`
	BlockSlotTime    int64                 `meddler:"block_slot_time"`
}

// Address returns the contract address.
func (c *Contract) Address() types.ContractAddress {
	return types.ContractAddress{Index: c.ContractIndex, SubIndex: c.ContractSubIndex}
}

// Pos returns the position of the creating effect.
func (c *Contract) Pos() Position {
	return Position{BlockHeight: c.BlockHeight, TransactionIndex: c.TransactionIndex, EventIndex: c.EventIndex}
}

// ContractEvent is one contract related effect. Append only.
type ContractEvent struct {
	ID               int64                 `meddler:"id,pk"`
	BlockHeight      uint64                `meddler:"block_height"`
	TransactionIndex uint64                `meddler:"transaction_index"`
	EventIndex       uint64                `meddler:"event_index"`
	ContractIndex    uint64                `meddler:"contract_index"`
	ContractSubIndex uint64                `meddler:"contract_subindex"`
	TransactionHash  common.Hash           `meddler:"transaction_hash,hash"`
	Sender           *types.AccountAddress `meddler:"sender,account"`
	Effect           types.Effect          `meddler:"effect,effect"`
	BlockSlotTime    int64                 `meddler:"block_slot_time"`
}

// Address returns the contract the event is attributed to.
func (e *ContractEvent) Address() types.ContractAddress {
	return types.ContractAddress{Index: e.ContractIndex, SubIndex: e.ContractSubIndex}
}

// Pos returns the position of the event.
func (e *ContractEvent) Pos() Position {
	return Position{BlockHeight: e.BlockHeight, TransactionIndex: e.TransactionIndex, EventIndex: e.EventIndex}
}

// ContractRejectEvent is a rejected transaction that references a contract or a module.
type ContractRejectEvent struct {
	ID               int64                 `meddler:"id,pk"`
	BlockHeight      uint64                `meddler:"block_height"`
	TransactionIndex uint64                `meddler:"transaction_index"`
	TransactionHash  common.Hash           `meddler:"transaction_hash,hash"`
	ContractIndex    sql.NullInt64         `meddler:"contract_index"`
	ContractSubIndex sql.NullInt64         `meddler:"contract_subindex"`
	ModuleRef        *common.Hash          `meddler:"module_ref,hash"`
	Sender           *types.AccountAddress `meddler:"sender,account"`
	Reason           types.RejectReason    `meddler:"reason,reject"`
	BlockSlotTime    int64                 `meddler:"block_slot_time"`
}

// ModuleReferenceEvent records a module deployment.
type ModuleReferenceEvent struct {
	ModuleRef        types.ModuleReference `meddler:"module_ref,hash"`
	BlockHeight      uint64                `meddler:"block_height"`
	TransactionIndex uint64                `meddler:"transaction_index"`
	EventIndex       uint64                `meddler:"event_index"`
	TransactionHash  common.Hash           `meddler:"transaction_hash,hash"`
	Sender           *types.AccountAddress `meddler:"sender,account"`
	BlockSlotTime    int64                 `meddler:"block_slot_time"`
}

// LinkAction is the kind of a module to contract link event.
type LinkAction string

const (
	LinkAdded   LinkAction = "added"
	LinkRemoved LinkAction = "removed"
)

// LinkEvent binds a contract to the module backing it from its position onward.
// The module of a contract at any point is the latest Added link at or before it.
type LinkEvent struct {
	ID               int64                 `meddler:"id,pk"`
	BlockHeight      uint64                `meddler:"block_height"`
	TransactionIndex uint64                `meddler:"transaction_index"`
	EventIndex       uint64                `meddler:"event_index"`
	ModuleRef        types.ModuleReference `meddler:"module_ref,hash"`
	ContractIndex    uint64                `meddler:"contract_index"`
	ContractSubIndex uint64                `meddler:"contract_subindex"`
	Action           LinkAction            `meddler:"link_action"`
	TransactionHash  common.Hash           `meddler:"transaction_hash,hash"`
	BlockSlotTime    int64                 `meddler:"block_slot_time"`
}

// Address returns the linked contract.
func (l *LinkEvent) Address() types.ContractAddress {
	return types.ContractAddress{Index: l.ContractIndex, SubIndex: l.ContractSubIndex}
}

// Pos returns the position of the link event.
func (l *LinkEvent) Pos() Position {
	return Position{BlockHeight: l.BlockHeight, TransactionIndex: l.TransactionIndex, EventIndex: l.EventIndex}
}

// ContractReadHeight marks a block height as fully processed for a source.
type ContractReadHeight struct {
	ID          int64  `meddler:"id,pk"`
	BlockHeight uint64 `meddler:"block_height"`
	Source      string `meddler:"source"`
	ProcessedAt int64  `meddler:"processed_at"`
}

// ContractSnapshot is the derived state of a contract as of BlockHeight.
// A newer snapshot supersedes older ones; rows are never updated.
type ContractSnapshot struct {
	BlockHeight      uint64                `meddler:"block_height"`
	ContractIndex    uint64                `meddler:"contract_index"`
	ContractSubIndex uint64                `meddler:"contract_subindex"`
	ContractName     string                `meddler:"contract_name"`
	ModuleRef        types.ModuleReference `meddler:"module_ref,hash"`
	Amount           types.CCDAmount       `meddler:"amount"`
}

// Address returns the contract address.
func (s *ContractSnapshot) Address() types.ContractAddress {
	return types.ContractAddress{Index: s.ContractIndex, SubIndex: s.ContractSubIndex}
}

// Token is one CIS-2 token of a contract.
type Token struct {
	ContractIndex    uint64   `meddler:"contract_index"`
	ContractSubIndex uint64   `meddler:"contract_subindex"`
	TokenID          string   `meddler:"token_id"`
	TokenAddress     string   `meddler:"token_address"`
	MetadataURL      string   `meddler:"metadata_url,zeroisnull"`
	TotalSupply      *big.Int `meddler:"total_supply,bigint"`
}

// TokenEvent is the audit row of one decoded CIS-2 event.
type TokenEvent struct {
	ID               int64       `meddler:"id,pk"`
	ContractIndex    uint64      `meddler:"contract_index"`
	ContractSubIndex uint64      `meddler:"contract_subindex"`
	TokenID          string      `meddler:"token_id"`
	EventType        string      `meddler:"event_type"`
	Amount           *big.Int    `meddler:"amount,bigint"`
	FromAddress      string      `meddler:"from_address,zeroisnull"`
	ToAddress        string      `meddler:"to_address,zeroisnull"`
	MetadataURL      string      `meddler:"metadata_url,zeroisnull"`
	BlockHeight      uint64      `meddler:"block_height"`
	TransactionIndex uint64      `meddler:"transaction_index"`
	EventIndex       uint64      `meddler:"event_index"`
	LogIndex         uint64      `meddler:"log_index"`
	TransactionHash  common.Hash `meddler:"transaction_hash,hash"`
}

// AccountToken is the balance of one token held by one account.
type AccountToken struct {
	ContractIndex    uint64   `meddler:"contract_index"`
	ContractSubIndex uint64   `meddler:"contract_subindex"`
	TokenID          string   `meddler:"token_id"`
	AccountID        int64    `meddler:"account_id"`
	Balance          *big.Int `meddler:"balance,bigint"`
}

// Account is a row of the chain importer's account table.
type Account struct {
	ID               int64                `meddler:"id,pk"`
	CanonicalAddress string               `meddler:"canonical_address"`
	Address          types.AccountAddress `meddler:"address,account"`
}
