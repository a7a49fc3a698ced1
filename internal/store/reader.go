package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/russross/meddler"
)

// Reader queries committed data outside of any unit of work.
type Reader struct {
	db *sql.DB
}

// LastCheckpoint returns the highest committed height for source.
func (r *Reader) LastCheckpoint(ctx context.Context, source string) (uint64, bool, error) {
	return lastCheckpoint(ctx, r.db, source)
}

// CheckpointHeights returns every committed height for source in ascending order.
func (r *Reader) CheckpointHeights(ctx context.Context, source string) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT block_height FROM contract_read_heights WHERE source = ? ORDER BY block_height ASC`, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var heights []uint64
	for rows.Next() {
		var h uint64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		heights = append(heights, h)
	}
	return heights, rows.Err()
}

// Contract returns the contract at addr.
func (r *Reader) Contract(ctx context.Context, addr types.ContractAddress) (*Contract, error) {
	var c Contract
	err := meddler.QueryRow(r.db, &c,
		`SELECT * FROM contracts WHERE contract_index = ? AND contract_subindex = ?`, addr.Index, addr.SubIndex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contract %s: %w", addr, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query contract %s: %w", addr, err)
	}
	return &c, nil
}

// ContractEvents returns the events of a contract in chain order.
func (r *Reader) ContractEvents(ctx context.Context, addr types.ContractAddress) ([]*ContractEvent, error) {
	var events []*ContractEvent
	err := meddler.QueryAll(r.db, &events, `
		SELECT * FROM contract_events
		WHERE contract_index = ? AND contract_subindex = ?
		ORDER BY block_height ASC, transaction_index ASC, event_index ASC`,
		addr.Index, addr.SubIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query events of %s: %w", addr, err)
	}
	return events, nil
}

// RejectEvents returns the reject events that reference addr, in chain order.
func (r *Reader) RejectEvents(ctx context.Context, addr types.ContractAddress) ([]*ContractRejectEvent, error) {
	var events []*ContractRejectEvent
	err := meddler.QueryAll(r.db, &events, `
		SELECT * FROM contract_reject_events
		WHERE contract_index = ? AND contract_subindex = ?
		ORDER BY block_height ASC, transaction_index ASC`,
		addr.Index, addr.SubIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query reject events of %s: %w", addr, err)
	}
	return events, nil
}

// ModuleReferenceEvent returns the deployment of moduleRef.
func (r *Reader) ModuleReferenceEvent(ctx context.Context, moduleRef types.ModuleReference) (*ModuleReferenceEvent, error) {
	var e ModuleReferenceEvent
	err := meddler.QueryRow(r.db, &e, `SELECT * FROM module_reference_events WHERE module_ref = ?`, moduleRef.Hex())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("module %s: %w", moduleRef.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query module %s: %w", moduleRef.Hex(), err)
	}
	return &e, nil
}

// LinkEvents returns the module link history of a contract in chain order.
func (r *Reader) LinkEvents(ctx context.Context, addr types.ContractAddress) ([]*LinkEvent, error) {
	var events []*LinkEvent
	err := meddler.QueryAll(r.db, &events, `
		SELECT * FROM module_reference_contract_link_events
		WHERE contract_index = ? AND contract_subindex = ?
		ORDER BY block_height ASC, transaction_index ASC, event_index ASC`,
		addr.Index, addr.SubIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query link events of %s: %w", addr, err)
	}
	return events, nil
}

// ModuleForContractAt resolves the module backing addr at pos: the latest Added
// link at or before pos.
func (r *Reader) ModuleForContractAt(ctx context.Context, addr types.ContractAddress, pos Position) (types.ModuleReference, error) {
	var link LinkEvent
	err := meddler.QueryRow(r.db, &link, `
		SELECT * FROM module_reference_contract_link_events
		WHERE contract_index = ? AND contract_subindex = ? AND link_action = ?
		  AND (block_height < ?
		    OR (block_height = ? AND transaction_index < ?)
		    OR (block_height = ? AND transaction_index = ? AND event_index <= ?))
		ORDER BY block_height DESC, transaction_index DESC, event_index DESC
		LIMIT 1`,
		addr.Index, addr.SubIndex, string(LinkAdded),
		pos.BlockHeight,
		pos.BlockHeight, pos.TransactionIndex,
		pos.BlockHeight, pos.TransactionIndex, pos.EventIndex,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ModuleReference{}, fmt.Errorf("module of %s at height %d: %w", addr, pos.BlockHeight, ErrNotFound)
		}
		return types.ModuleReference{}, fmt.Errorf("failed to resolve module of %s: %w", addr, err)
	}
	return link.ModuleRef, nil
}

// LatestSnapshot returns the newest committed snapshot of addr.
func (r *Reader) LatestSnapshot(ctx context.Context, addr types.ContractAddress) (*ContractSnapshot, error) {
	return latestSnapshot(r.db, addr, nil)
}

// ContractSnapshotAt returns the snapshot of addr in effect at height.
func (r *Reader) ContractSnapshotAt(ctx context.Context, addr types.ContractAddress, height uint64) (*ContractSnapshot, error) {
	return latestSnapshot(r.db, addr, &height)
}

// Token returns a token row.
func (r *Reader) Token(ctx context.Context, contract types.ContractAddress, tokenID string) (*Token, error) {
	var t Token
	err := meddler.QueryRow(r.db, &t, `
		SELECT * FROM tokens WHERE contract_index = ? AND contract_subindex = ? AND token_id = ?`,
		contract.Index, contract.SubIndex, tokenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("token %s of %s: %w", tokenID, contract, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query token %s of %s: %w", tokenID, contract, err)
	}
	return &t, nil
}

// TokenEvents returns the audit rows of a token in chain order.
func (r *Reader) TokenEvents(ctx context.Context, contract types.ContractAddress, tokenID string) ([]*TokenEvent, error) {
	var events []*TokenEvent
	err := meddler.QueryAll(r.db, &events, `
		SELECT * FROM token_events
		WHERE contract_index = ? AND contract_subindex = ? AND token_id = ?
		ORDER BY block_height ASC, transaction_index ASC, event_index ASC, log_index ASC`,
		contract.Index, contract.SubIndex, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query token events: %w", err)
	}
	return events, nil
}

// AccountBalance returns the balance of accountID for a token. A missing row is zero.
func (r *Reader) AccountBalance(ctx context.Context, contract types.ContractAddress, tokenID string, accountID int64) (*big.Int, error) {
	var at AccountToken
	err := meddler.QueryRow(r.db, &at, `
		SELECT * FROM account_tokens
		WHERE contract_index = ? AND contract_subindex = ? AND token_id = ? AND account_id = ?`,
		contract.Index, contract.SubIndex, tokenID, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("failed to query balance: %w", err)
	}
	return at.Balance, nil
}

// AccountIDs looks up account ids by canonical address. Unknown addresses are absent
// from the result.
func (r *Reader) AccountIDs(ctx context.Context, canonical []string) (map[string]int64, error) {
	out := make(map[string]int64, len(canonical))

	for start := 0; start < len(canonical); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(canonical))
		chunk := canonical[start:end]

		args := make([]interface{}, len(chunk))
		for i, c := range chunk {
			args[i] = c
		}

		query := `SELECT id, canonical_address FROM accounts WHERE canonical_address IN (?` +
			strings.Repeat(", ?", len(chunk)-1) + `)`

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query accounts: %w", err)
		}

		for rows.Next() {
			var (
				id  int64
				key string
			)
			if err := rows.Scan(&id, &key); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan account: %w", err)
			}
			out[key] = id
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// InsertAccount registers an account. The account table belongs to the chain
// importer; this is its write path into the shared database.
func (s *Store) InsertAccount(ctx context.Context, addr types.AccountAddress) (int64, error) {
	account := &Account{
		CanonicalAddress: addr.CanonicalKey(),
		Address:          addr,
	}
	if err := meddler.Insert(s.db, tableAccounts, account); err != nil {
		return 0, fmt.Errorf("failed to insert account %s: %w", addr, err)
	}
	return account.ID, nil
}
