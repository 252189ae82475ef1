// Package store persists cleaned observations behind a small interface with
// sqlite, postgres, and in-memory backends. The backend is chosen at startup
// from configuration; everything above this package is driver-agnostic.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fluview-etl/internal/config"
	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/couchcryptid/fluview-etl/internal/store/memory"
	"github.com/couchcryptid/fluview-etl/internal/store/postgres"
	"github.com/couchcryptid/fluview-etl/internal/store/sqlite"
)

// Driver names accepted by Open. They match the STORAGE_DRIVER values the
// config layer validates.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Store is the persistence contract for cleaned observations.
//
// Save upserts rows one at a time keyed on source_id and returns how many
// were written before the first failure, so a mid-batch error still leaves
// the earlier rows persisted. ReadAll returns every stored row; a store
// whose table does not exist yet reads as empty rather than failing.
type Store interface {
	Save(ctx context.Context, obs []domain.Observation) (int, error)
	ReadAll(ctx context.Context) ([]domain.Observation, error)
	Ping(ctx context.Context) error
	Close() error
}

// The backend packages cannot import this one, so their interface
// conformance is pinned here.
var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
	_ Store = (*memory.Store)(nil)
)

// Open constructs the backend named by cfg.StorageDriver. SQL-backed stores
// create their schema and repair legacy rows before returning, so a returned
// Store is always ready for Save and ReadAll.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.StorageDriver {
	case DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath, logger)
	case DriverPostgres:
		return postgres.Open(ctx, cfg.PostgresDSN, logger)
	case DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
