// Package cli implements the fieldmemo command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scrypster/fieldmemo/internal/config"
	"github.com/scrypster/fieldmemo/internal/ingest"
	"github.com/scrypster/fieldmemo/internal/logging"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/internal/storage/backend"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes.
const (
	exitError       = 1
	exitInvalid     = 2
	exitUnavailable = 3
)

type rootOptions struct {
	LogLevel string
	DataPath string
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	root := newRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:          "fieldmemo",
		Short:        "Field report ingestion and component registry",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Logging.Level = opts.LogLevel
			}
			if cmd.Flags().Changed("data-path") {
				loaded.Storage.DataPath = opts.DataPath
			}
			logging.Setup(loaded.Logging.Level, loaded.Logging.Format)
			*cfg = *loaded
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.DataPath, "data-path", "", "SQLite data directory (overrides FIELDMEMO_DATA_PATH)")

	cmd.AddCommand(newIngestCommand(cfg))
	cmd.AddCommand(newComponentsCommand(cfg))
	cmd.AddCommand(newMemosCommand(cfg))
	cmd.AddCommand(newBackupCommand(cfg))
	return cmd
}

// withStore opens the configured store for the duration of fn.
func withStore(cfg *config.Config, fn func(store storage.Store) error) error {
	store, err := backend.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("cli: failed to close store")
		}
	}()
	return fn(store)
}

// usageError marks an error caused by bad arguments.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...interface{}) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func exitCodeForError(err error) int {
	var ue usageError
	switch {
	case errors.As(err, &ue), errors.Is(err, ingest.ErrInvalidRequest), errors.Is(err, storage.ErrInvalidInput):
		return exitInvalid
	case errors.Is(err, ingest.ErrStoreUnavailable):
		return exitUnavailable
	default:
		return exitError
	}
}
