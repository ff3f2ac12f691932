package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// List returns the snapshots in dir, newest first. Files that do not follow
// the snapshot naming scheme are ignored.
func List(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read directory: %w", err)
	}

	snapshots := []Snapshot{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		created, ok := snapshotTime(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // Skip files we can't stat
		}
		snapshots = append(snapshots, Snapshot{
			Path:      filepath.Join(dir, entry.Name()),
			CreatedAt: created,
			Size:      info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// Prune deletes all but the keep newest snapshots in dir and returns the
// removed paths. It keeps going past individual delete failures.
func Prune(dir string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("backup: keep must be at least 1, got %d", keep)
	}

	snapshots, err := List(dir)
	if err != nil {
		return nil, err
	}
	if len(snapshots) <= keep {
		return nil, nil
	}

	var removed []string
	var errs []error
	for _, s := range snapshots[keep:] {
		if err := os.Remove(s.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, s.Path)
	}
	return removed, errors.Join(errs...)
}
