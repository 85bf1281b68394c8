package db

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/bi-platform/apikeys/internal/apikeys"
	"github.com/bi-platform/apikeys/internal/config"
	"github.com/bi-platform/apikeys/internal/db/repositories"
)

// Store is the full persistence surface the server needs.
type Store interface {
	apikeys.KeyStore
	apikeys.ExpiryStore
}

// Open returns the store selected by cfg.Driver. For the SQL drivers it also returns the
// connection pool (the caller closes it) and applies pending migrations when AutoMigrate is set.
// The pool is nil for the memory driver.
func Open(cfg *config.DatabaseConfig) (Store, *sqlx.DB, error) {
	if cfg.Driver == config.DriverMemory {
		slog.Warn("using in-memory key store; keys will not survive a restart")
		return apikeys.NewMemoryStore(), nil, nil
	}

	conn, err := Connect(cfg.Driver, cfg.GetDSN(), cfg.MaxConnections, cfg.MinIdleConnections)
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(conn, "up"); err != nil {
			conn.Close()
			return nil, nil, err
		}
		version, dirty, err := GetMigrationVersion(conn)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		if dirty {
			conn.Close()
			return nil, nil, fmt.Errorf("database schema is dirty at version %d", version)
		}
		slog.Info("database migrations applied", "driver", cfg.Driver, "version", version)
	}

	return repositories.NewAPIKeyRepository(conn), conn, nil
}
