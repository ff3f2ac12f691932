// Package backup takes verified point-in-time snapshots of the SQLite store
// and prunes old ones.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// ErrNoDatabase is returned when the database file to snapshot does not exist.
var ErrNoDatabase = errors.New("database not found")

const (
	filePrefix = "fieldmemo-"
	fileSuffix = ".db"
	timeLayout = "20060102-150405.000000"
)

// Snapshot describes one backup file.
type Snapshot struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	Verified  bool      `json:"verified"`
}

// Options controls Create.
type Options struct {
	// Dir receives the snapshot file. Created if missing.
	Dir string

	// Keep is the number of newest snapshots retained after a successful
	// backup. Zero disables pruning.
	Keep int

	// Verify runs PRAGMA integrity_check on the new snapshot.
	Verify bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// Create writes a consistent copy of the database at dbPath into opts.Dir
// using VACUUM INTO, which is safe while the store is open in WAL mode.
func Create(ctx context.Context, dbPath string, opts Options) (*Snapshot, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDatabase, dbPath)
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("backup: directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("backup: failed to create directory: %w", err)
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	created := now().UTC()
	dest := filepath.Join(opts.Dir, filePrefix+created.Format(timeLayout)+fileSuffix)

	src, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return nil, fmt.Errorf("backup: failed to open source database: %w", err)
	}
	defer func() { _ = src.Close() }()

	if _, err := src.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("backup: vacuum into %s: %w", dest, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to stat snapshot: %w", err)
	}
	snap := &Snapshot{Path: dest, CreatedAt: created, Size: info.Size()}

	if opts.Verify {
		if err := Verify(ctx, dest); err != nil {
			return snap, err
		}
		snap.Verified = true
	}

	log.Info().
		Str("path", dest).
		Int64("size", snap.Size).
		Bool("verified", snap.Verified).
		Msg("backup: snapshot written")

	if opts.Keep > 0 {
		if removed, err := Prune(opts.Dir, opts.Keep); err != nil {
			// A failed prune leaves extra files behind; the snapshot itself is good.
			log.Warn().Err(err).Msg("backup: prune failed")
		} else if len(removed) > 0 {
			log.Info().Int("removed", len(removed)).Msg("backup: pruned old snapshots")
		}
	}

	return snap, nil
}

// Verify opens a snapshot read-only and runs SQLite's integrity check.
func Verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("backup: failed to open snapshot: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check failed: %s", result)
	}
	return nil
}

// snapshotTime parses the creation time out of a snapshot file name.
func snapshotTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	t, err := time.Parse(timeLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
