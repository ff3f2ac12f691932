package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scrypster/fieldmemo/internal/backup"
	"github.com/scrypster/fieldmemo/internal/config"
)

func newBackupCommand(cfg *config.Config) *cobra.Command {
	var dir string
	var keep int
	var verify bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a point-in-time snapshot of the SQLite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Storage.StorageEngine != config.EngineSQLite {
				return usagef("backup only supports the %s engine, configured engine is %q",
					config.EngineSQLite, cfg.Storage.StorageEngine)
			}
			if dir == "" {
				dir = filepath.Join(cfg.Storage.DataPath, "backups")
			}

			snap, err := backup.Create(cmd.Context(), cfg.SQLitePath(), backup.Options{
				Dir:    dir,
				Keep:   keep,
				Verify: verify,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes, verified=%t)\n", snap.Path, snap.Size, snap.Verified)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Snapshot directory (default: <data-path>/backups)")
	cmd.Flags().IntVar(&keep, "keep", 10, "Number of newest snapshots to keep, 0 keeps all")
	cmd.Flags().BoolVar(&verify, "verify", true, "Run an integrity check on the snapshot")
	return cmd
}
