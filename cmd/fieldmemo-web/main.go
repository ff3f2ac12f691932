package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scrypster/fieldmemo/internal/config"
	"github.com/scrypster/fieldmemo/internal/importer"
	"github.com/scrypster/fieldmemo/internal/logging"
	"github.com/scrypster/fieldmemo/internal/notify"
	"github.com/scrypster/fieldmemo/internal/server"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/internal/storage/backend"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	store, err := backend.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedComponents(ctx, cfg, store); err != nil {
		log.Error().Err(err).Str("file", cfg.Ingest.ComponentsFile).Msg("Component import failed")
	}

	addr, svc, err := startServer(ctx, cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
	log.Info().Msgf("fieldmemo API running at http://%s", addr)

	// Pick up memos ingested and registry files imported by the CLI.
	watcher := newEventWatcher(ctx, cfg, svc)
	if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Cross-process ingestion events disabled")
	} else {
		defer watcher.Stop()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// seedComponents imports the configured registry file, if any, before the
// server starts resolving mentions.
func seedComponents(ctx context.Context, cfg *config.Config, store storage.ComponentRegistry) error {
	if cfg.Ingest.ComponentsFile == "" {
		return nil
	}
	file, err := importer.LoadComponentsFile(cfg.Ingest.ComponentsFile)
	if err != nil {
		return err
	}
	result, err := importer.ImportComponents(ctx, store, file)
	if err != nil {
		return err
	}
	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("Imported component registry")
	return nil
}

// newEventWatcher forwards CLI ingestion events to WebSocket clients and
// refreshes the resolver when the CLI changes the registry.
func newEventWatcher(ctx context.Context, cfg *config.Config, svc *server.Services) *notify.EventWatcher {
	return notify.NewEventWatcher(cfg.Storage.DataPath, svc.Hub,
		notify.WithRegistryHandler(func(e notify.RegistryEvent) {
			log.Info().Str("action", e.Action).Int("created", e.Created).Int("updated", e.Updated).
				Msg("Component registry changed by another process")
			svc.RegistryChanged(ctx, e.Action)
		}),
	)
}

// startServer is a helper that wraps server.Start for testability.
func startServer(ctx context.Context, cfg *config.Config, store storage.Store) (string, *server.Services, error) {
	return server.Start(ctx, cfg, store)
}
