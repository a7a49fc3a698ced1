package helpers

import (
	"database/sql"
	"path"
	"testing"

	"github.com/goran-ethernal/ContractIndexor/internal/db"
	"github.com/goran-ethernal/ContractIndexor/internal/store/migrations"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

// NewTestDB creates a new temporary, fully migrated contract store database.
func NewTestDB(t *testing.T, dbName string) *sql.DB {
	t.Helper()

	tmpDBPath := path.Join(t.TempDir(), dbName)

	dbConfig := config.DatabaseConfig{Path: tmpDBPath}
	dbConfig.ApplyDefaults()

	require.NoError(t, migrations.RunMigrations(tmpDBPath))

	database, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)

	t.Cleanup(func() {
		database.Close()
	})

	return database
}
