package database

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rotisserie/eris"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

func migrateSQLite(db *sql.DB) (uint, bool, error) {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return 0, false, eris.Wrap(err, "failed to create sqlite migration driver")
	}
	return runMigrations("migrations/sqlite", "sqlite", driver)
}

func migratePostgres(db *sql.DB) (uint, bool, error) {
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return 0, false, eris.Wrap(err, "failed to create postgres migration driver")
	}
	return runMigrations("migrations/postgres", "pgx5", driver)
}

// runMigrations applies all pending migrations and returns version info.
func runMigrations(dir, driverName string, driver migratedb.Driver) (uint, bool, error) {
	source, err := iofs.New(migrationFS, dir)
	if err != nil {
		return 0, false, eris.Wrap(err, "failed to create iofs source")
	}

	m, err := migrate.NewWithInstance("iofs", source, driverName, driver)
	if err != nil {
		return 0, false, eris.Wrap(err, "failed to create migrate instance")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, eris.Wrap(err, "failed to run migrations")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, eris.Wrap(err, "failed to get migration version")
	}

	return version, dirty, nil
}
