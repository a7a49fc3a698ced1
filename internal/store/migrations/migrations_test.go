package migrations

import (
	"path/filepath"
	"testing"

	"github.com/goran-ethernal/ContractIndexor/internal/db"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "contracts.db")

	require.NoError(t, RunMigrations(dbPath))
	// a second run has nothing to apply
	require.NoError(t, RunMigrations(dbPath))

	sqlDB, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	defer sqlDB.Close()

	applied, err := db.AppliedMigrations(sqlDB)
	require.NoError(t, err)
	require.Equal(t, []string{"001_contracts.sql", "002_tokens.sql"}, applied)

	for _, table := range []string{
		"contracts", "contract_events", "contract_reject_events", "module_reference_events",
		"module_reference_contract_link_events", "contract_read_heights", "contract_snapshots",
		"tokens", "token_events", "account_tokens", "accounts",
	} {
		var name string
		err := sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestRunMigrations_MissingMarker(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "broken.db")

	err := db.RunMigrations(dbPath, []db.Migration{{ID: "broken.sql", SQL: "CREATE TABLE x (id INTEGER);"}})
	require.ErrorContains(t, err, "broken.sql")
}
