// Package backend opens the configured storage engine.
package backend

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/scrypster/fieldmemo/internal/config"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/internal/storage/postgres"
	"github.com/scrypster/fieldmemo/internal/storage/sqlite"
)

// Open returns the store selected by cfg.Storage.StorageEngine. Migrations
// are applied before it returns.
func Open(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case config.EngineSQLite, "":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o750); err != nil {
			return nil, fmt.Errorf("backend: failed to create data directory: %w", err)
		}
		path := cfg.SQLitePath()
		log.Debug().Str("path", path).Msg("backend: opening sqlite store")
		return sqlite.NewStore(path)

	case config.EnginePostgres:
		log.Debug().Msg("backend: opening postgres store")
		return postgres.NewStore(cfg.Storage.PostgresDSN)

	default:
		return nil, fmt.Errorf("backend: unknown storage engine %q", cfg.Storage.StorageEngine)
	}
}
