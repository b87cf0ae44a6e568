package database

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, driver, path, dsn string) (Store, error) {
	var (
		store Store
		err   error
	)

	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "database: create %s", dir)
			}
		}
		store, err = NewSQLite(path)
	case DriverPostgres:
		store, err = NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("database: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	version, dirty, err := store.Migrate()
	if err != nil {
		store.Close()
		return nil, eris.Wrap(err, "database: migrate")
	}

	zap.L().Info("Database ready",
		zap.String("driver", driver),
		zap.Uint("migration_version", version),
		zap.Bool("dirty", dirty))

	return store, nil
}
