package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/russross/meddler"
)

// Staged holds the entities added in a unit of work that is not yet committed,
// in insertion order.
type Staged struct {
	Contracts      []*Contract
	ContractEvents []*ContractEvent
	LinkEvents     []*LinkEvent
	ModuleEvents   []*ModuleReferenceEvent
	RejectEvents   []*ContractRejectEvent
	Snapshots      []*ContractSnapshot
}

// Empty reports whether nothing was staged.
func (s *Staged) Empty() bool {
	return len(s.Contracts) == 0 && len(s.ContractEvents) == 0 && len(s.LinkEvents) == 0 &&
		len(s.ModuleEvents) == 0 && len(s.RejectEvents) == 0 && len(s.Snapshots) == 0
}

// UnitOfWork is one atomic database transaction plus the staging list of what it added.
// It is not safe for concurrent use.
type UnitOfWork struct {
	tx          *sql.Tx
	log         *logger.Logger
	staged      Staged
	afterCommit []func()
	closed      bool
}

// Staged returns the entities added so far. The list is discarded on Commit or Rollback.
func (u *UnitOfWork) Staged() *Staged {
	return &u.staged
}

// AfterCommit registers fn to run after a successful Commit.
func (u *UnitOfWork) AfterCommit(fn func()) {
	u.afterCommit = append(u.afterCommit, fn)
}

// Commit commits the transaction, discards the staging list and runs the AfterCommit hooks.
func (u *UnitOfWork) Commit() error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}
	u.closed = true
	u.staged = Staged{}

	if err := u.tx.Commit(); err != nil {
		u.afterCommit = nil
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	hooks := u.afterCommit
	u.afterCommit = nil
	for _, fn := range hooks {
		fn()
	}

	return nil
}

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (u *UnitOfWork) Rollback() error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.staged = Staged{}
	u.afterCommit = nil

	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (u *UnitOfWork) insert(table string, entity interface{}) error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}
	if err := meddler.Insert(u.tx, table, entity); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// AddContract inserts a contract. A contract is created exactly once.
func (u *UnitOfWork) AddContract(ctx context.Context, c *Contract) error {
	var count int
	err := u.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contracts WHERE contract_index = ? AND contract_subindex = ?`,
		c.ContractIndex, c.ContractSubIndex,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to look up contract %s: %w", c.Address(), err)
	}
	if count > 0 {
		return fmt.Errorf("%w: contract %s initialized twice", ErrInvariant, c.Address())
	}

	if err := u.insert(tableContracts, c); err != nil {
		return err
	}
	u.staged.Contracts = append(u.staged.Contracts, c)
	return nil
}

// AddContractEvent appends a contract event.
func (u *UnitOfWork) AddContractEvent(e *ContractEvent) error {
	if err := u.insert(tableContractEvents, e); err != nil {
		return err
	}
	u.staged.ContractEvents = append(u.staged.ContractEvents, e)
	return nil
}

// AddRejectEvent appends a contract reject event.
func (u *UnitOfWork) AddRejectEvent(e *ContractRejectEvent) error {
	if err := u.insert(tableRejectEvents, e); err != nil {
		return err
	}
	u.staged.RejectEvents = append(u.staged.RejectEvents, e)
	return nil
}

// AddModuleReferenceEvent records a module deployment.
func (u *UnitOfWork) AddModuleReferenceEvent(e *ModuleReferenceEvent) error {
	if err := u.insert(tableModuleEvents, e); err != nil {
		return err
	}
	u.staged.ModuleEvents = append(u.staged.ModuleEvents, e)
	return nil
}

// AddLinkEvent appends a module to contract link event.
func (u *UnitOfWork) AddLinkEvent(e *LinkEvent) error {
	if err := u.insert(tableLinkEvents, e); err != nil {
		return err
	}
	u.staged.LinkEvents = append(u.staged.LinkEvents, e)
	return nil
}

// AddSnapshot inserts a new contract snapshot.
func (u *UnitOfWork) AddSnapshot(s *ContractSnapshot) error {
	if err := u.insert(tableSnapshots, s); err != nil {
		return err
	}
	u.staged.Snapshots = append(u.staged.Snapshots, s)
	return nil
}

// AddTokenEvents appends token audit rows.
func (u *UnitOfWork) AddTokenEvents(events []*TokenEvent) error {
	for _, e := range events {
		if err := u.insert(tableTokenEvents, e); err != nil {
			return err
		}
	}
	return nil
}

// LatestSnapshot returns the newest snapshot of addr visible to this unit of work.
// It returns ErrNotFound when the contract has none.
func (u *UnitOfWork) LatestSnapshot(ctx context.Context, addr types.ContractAddress) (*ContractSnapshot, error) {
	if u.closed {
		return nil, ErrUnitOfWorkClosed
	}
	return latestSnapshot(u.tx, addr, nil)
}

// InsertCheckpoint records height as processed for source. A height is recorded once.
func (u *UnitOfWork) InsertCheckpoint(ctx context.Context, height uint64, source string) error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}

	_, err := u.tx.ExecContext(ctx,
		`INSERT INTO contract_read_heights (block_height, source, processed_at) VALUES (?, ?, ?)`,
		height, source, time.Now().UTC().Unix(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: height %d already processed for source %s", ErrInvariant, height, source)
		}
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	return nil
}

// LastCheckpoint returns the highest processed height for source. ok is false when
// nothing was processed yet.
func (u *UnitOfWork) LastCheckpoint(ctx context.Context, source string) (height uint64, ok bool, err error) {
	if u.closed {
		return 0, false, ErrUnitOfWorkClosed
	}
	return lastCheckpoint(ctx, u.tx, source)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func lastCheckpoint(ctx context.Context, q queryer, source string) (uint64, bool, error) {
	var height sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT MAX(block_height) FROM contract_read_heights WHERE source = ?`, source,
	).Scan(&height)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get last checkpoint: %w", err)
	}
	if !height.Valid {
		return 0, false, nil
	}
	return uint64(height.Int64), true, nil
}

// latestSnapshot returns the newest snapshot of addr, at or below atHeight when given.
func latestSnapshot(q meddler.DB, addr types.ContractAddress, atHeight *uint64) (*ContractSnapshot, error) {
	query := `SELECT * FROM contract_snapshots
		WHERE contract_index = ? AND contract_subindex = ?`
	args := []interface{}{addr.Index, addr.SubIndex}
	if atHeight != nil {
		query += ` AND block_height <= ?`
		args = append(args, *atHeight)
	}
	query += ` ORDER BY block_height DESC LIMIT 1`

	var snapshot ContractSnapshot
	if err := meddler.QueryRow(q, &snapshot, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot of %s: %w", addr, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query snapshot of %s: %w", addr, err)
	}

	return &snapshot, nil
}
