package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Migration is one embedded schema migration. SQL holds a "-- +migrate Down"
// section followed by a "-- +migrate Up" section.
type Migration struct {
	ID  string
	SQL string
}

// RunMigrations applies every pending migration to the database at dbPath.
func RunMigrations(dbPath string, migrations []Migration) error {
	sqlDB, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	defer sqlDB.Close()

	return RunMigrationsDB(logger.GetDefaultLogger(), sqlDB, migrations)
}

// RunMigrationsDB applies every pending migration to an open database.
func RunMigrationsDB(log *logger.Logger, sqlDB *sql.DB, migrations []Migration) error {
	source, err := memorySource(migrations)
	if err != nil {
		return err
	}

	applied, err := migrate.Exec(sqlDB, "sqlite3", source, migrate.Up)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Infow("migrations applied", "applied", applied, "known", len(migrations))
	return nil
}

// AppliedMigrations returns the ids of the migrations recorded in the database.
func AppliedMigrations(sqlDB *sql.DB) ([]string, error) {
	records, err := migrate.GetMigrationRecords(sqlDB, "sqlite3")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration records: %w", err)
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.Id
	}
	return ids, nil
}

func memorySource(migrations []Migration) (*migrate.MemoryMigrationSource, error) {
	source := &migrate.MemoryMigrationSource{}

	for _, m := range migrations {
		down, up, found := strings.Cut(m.SQL, upMarker)
		if !found {
			return nil, fmt.Errorf("migration %s is missing the %q marker", m.ID, upMarker)
		}

		if _, after, ok := strings.Cut(down, downMarker); ok {
			down = after
		}

		source.Migrations = append(source.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{strings.TrimSpace(up)},
			Down: []string{strings.TrimSpace(down)},
		})
	}

	return source, nil
}
