package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore implements the Store interface using filesystem-based
// persistence. Snapshots are stored in a directory structure:
// <baseDir>/runs/<runID>/
//
// Thread-safety: this implementation uses atomic file operations (rename)
// and does not require locks. Multiple goroutines can safely call methods
// concurrently.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store. baseDir is created if
// it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

func (fs *FSStore) runDir(runID string) string {
	return filepath.Join(fs.baseDir, "runs", runID)
}

func (fs *FSStore) snapshotPath(runID string) string {
	return filepath.Join(fs.runDir(runID), "snapshot.json")
}

// SaveSnapshot atomically saves a snapshot for the given run, using a temp
// file plus rename so a concurrent reader never observes a partial write.
func (fs *FSStore) SaveSnapshot(runID string, snapshot *Snapshot) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	runDir := fs.runDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	tempPath := fs.snapshotPath(runID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp snapshot file: %w", err)
	}

	finalPath := fs.snapshotPath(runID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	slog.Debug("snapshot saved", "runID", runID, "path", finalPath)
	return nil
}

// LoadSnapshot retrieves the snapshot for the given run.
func (fs *FSStore) LoadSnapshot(runID string) (*Snapshot, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := fs.snapshotPath(runID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}

	slog.Debug("snapshot loaded", "runID", runID, "path", path)
	return &snapshot, nil
}

// ListSnapshots returns metadata for all available snapshots.
func (fs *FSStore) ListSnapshots() ([]SnapshotInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")

	if _, err := os.Stat(runsDir); os.IsNotExist(err) {
		return []SnapshotInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat runs directory: %w", err)
	}

	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var infos []SnapshotInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		runID := entry.Name()
		snapshotPath := fs.snapshotPath(runID)
		if _, err := os.Stat(snapshotPath); os.IsNotExist(err) {
			continue
		}

		snapshot, err := fs.LoadSnapshot(runID)
		if err != nil {
			slog.Warn("failed to load snapshot for listing", "runID", runID, "error", err)
			continue
		}

		infos = append(infos, snapshot.ToInfo())
	}

	slog.Debug("listed snapshots", "count", len(infos))
	return infos, nil
}

// DeleteSnapshot removes the snapshot and all associated artifacts.
func (fs *FSStore) DeleteSnapshot(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	runDir := fs.runDir(runID)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("snapshot deleted", "runID", runID, "path", runDir)
	return nil
}
