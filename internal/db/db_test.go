package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

// openFilledDB opens a database in the given journal mode holding rows rows of
// padded payload, so that deleting them leaves plenty of free pages.
func openFilledDB(t *testing.T, journal string, rows int) (*sql.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "contracts.db")

	cfg := config.DatabaseConfig{Path: dbPath, JournalMode: journal}
	cfg.ApplyDefaults()

	sqlDB, err := NewSQLiteDBFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	_, err = sqlDB.Exec(`CREATE TABLE snapshots (id INTEGER PRIMARY KEY, payload TEXT NOT NULL)`)
	require.NoError(t, err)

	tx, err := sqlDB.Begin()
	require.NoError(t, err)
	payload := strings.Repeat("x", 512)
	for range rows {
		_, err = tx.Exec(`INSERT INTO snapshots (payload) VALUES (?)`, payload)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	return sqlDB, dbPath
}

func TestNewSQLiteDBFromConfig(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "contracts.db")

	cfg := config.DatabaseConfig{Path: dbPath, EnableForeignKeys: true}
	cfg.ApplyDefaults()

	sqlDB, err := NewSQLiteDBFromConfig(cfg)
	require.NoError(t, err)
	defer sqlDB.Close()

	var mode string
	require.NoError(t, sqlDB.QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", strings.ToLower(mode))

	var fk int
	require.NoError(t, sqlDB.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	require.Equal(t, 1, fk)

	var sum string
	require.NoError(t, sqlDB.QueryRow("SELECT "+BigIntAddFunc+"('9223372036854775807', '1')").Scan(&sum))
	require.Equal(t, "9223372036854775808", sum)
}

func TestVacuum_ReclaimsDeletedRows(t *testing.T) {
	for _, journal := range []string{"WAL", "DELETE"} {
		t.Run(journal, func(t *testing.T) {
			sqlDB, dbPath := openFilledDB(t, journal, 2000)

			_, err := sqlDB.Exec(`DELETE FROM snapshots`)
			require.NoError(t, err)
			_, err = sqlDB.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
			require.NoError(t, err)

			before, err := DBTotalSize(dbPath)
			require.NoError(t, err)

			require.NoError(t, Vacuum(sqlDB))
			_, err = sqlDB.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
			require.NoError(t, err)

			after, err := DBTotalSize(dbPath)
			require.NoError(t, err)
			require.Less(t, after, before)
		})
	}
}

func TestDBTotalSize(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "main.db")

	size, err := DBTotalSize(mainPath)
	require.NoError(t, err)
	require.Zero(t, size, "missing files count as zero")

	require.NoError(t, os.WriteFile(mainPath, []byte("main"), 0o600))
	require.NoError(t, os.WriteFile(mainPath+"-wal", []byte("wal-frames"), 0o600))

	size, err = DBTotalSize(mainPath)
	require.NoError(t, err)
	require.Equal(t, int64(len("main")+len("wal-frames")), size)

	require.NoError(t, os.WriteFile(mainPath+"-shm", []byte("shm"), 0o600))

	size, err = DBTotalSize(mainPath)
	require.NoError(t, err)
	require.Equal(t, int64(len("main")+len("wal-frames")+len("shm")), size)
}
