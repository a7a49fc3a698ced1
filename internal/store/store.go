// Package store persists contract aggregate state in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrInvariant signals a logical inconsistency in stored data. It is never retried.
	ErrInvariant = errors.New("invariant violation")

	// ErrNotFound is returned when a queried row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnitOfWorkClosed is returned when a committed or rolled back unit of work is used.
	ErrUnitOfWorkClosed = errors.New("unit of work is closed")
)

// Store is the SQLite backed contract store.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// New creates a new Store on a migrated database.
func New(db *sql.DB, log *logger.Logger) *Store {
	return &Store{
		db:  db,
		log: log.WithComponent(common.ComponentStore),
	}
}

// Begin opens a unit of work. Every write for one block height goes through a
// single unit of work and becomes visible only on Commit.
func (s *Store) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &UnitOfWork{
		tx:  tx,
		log: s.log,
	}, nil
}

// Reader returns the non-transactional read path over committed data.
func (s *Store) Reader() *Reader {
	return &Reader{db: s.db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// IsUniqueViolation reports whether err is a SQLite unique or primary key constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// IsBusy reports whether err is a transient SQLite lock error.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
