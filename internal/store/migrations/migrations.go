package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/goran-ethernal/ContractIndexor/internal/db"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
)

//go:embed 001_contracts.sql
var mig001 string

//go:embed 002_tokens.sql
var mig002 string

// All returns the contract store migrations in order.
func All() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_contracts.sql",
			SQL: mig001,
		},
		{
			ID:  "002_tokens.sql",
			SQL: mig002,
		},
	}
}

// RunMigrations runs all migrations for the contract store database.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, All())
}

// RunMigrationsDB runs all migrations on an open database.
func RunMigrationsDB(log *logger.Logger, sqlDB *sql.DB) error {
	return db.RunMigrationsDB(log, sqlDB, All())
}
