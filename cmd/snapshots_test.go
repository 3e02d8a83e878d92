package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/retryopt/internal/store"
)

func testRunConfig() store.RunConfig {
	return store.RunConfig{
		Objective: "sphere",
		Algorithm: "cmaes",
		Dim:       3,
		Lo:        []float64{-5, -5, -5},
		Hi:        []float64{5, 5, 5},
	}
}

func TestSelectSnapshotsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.SnapshotInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)}, // 10 days old
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},  // 5 days old
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},  // 1 day old
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)}, // 30 days old
	}

	toDelete := selectSnapshotsForDeletion(infos, 0, 7)

	if len(toDelete) != 2 {
		t.Errorf("Expected 2 snapshots to delete, got %d", len(toDelete))
	}

	found10 := false
	found30 := false
	for _, info := range toDelete {
		if info.RunID == "run1" {
			found10 = true
		}
		if info.RunID == "run4" {
			found30 = true
		}
	}

	if !found10 || !found30 {
		t.Error("Expected run1 and run4 to be selected for deletion")
	}
}

func TestSelectSnapshotsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.SnapshotInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectSnapshotsForDeletion(infos, 2, 0)

	if len(toDelete) != 2 {
		t.Errorf("Expected 2 snapshots to delete, got %d", len(toDelete))
	}

	found30 := false
	found10 := false
	for _, info := range toDelete {
		if info.RunID == "run4" {
			found30 = true
		}
		if info.RunID == "run1" {
			found10 = true
		}
	}

	if !found30 || !found10 {
		t.Error("Expected run4 and run1 to be selected for deletion (oldest)")
	}
}

func TestSelectSnapshotsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.SnapshotInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
		{RunID: "run5", Timestamp: now.AddDate(0, 0, -2)},
	}

	toDelete := selectSnapshotsForDeletion(infos, 3, 7)

	if len(toDelete) < 2 {
		t.Errorf("Expected at least 2 snapshots to delete, got %d", len(toDelete))
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.txt")
	content := []byte("Hello, World!")
	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}

	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.bytes)
		if result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestSnapshotsListCommand_NoSnapshots(t *testing.T) {
	tmpDir := t.TempDir()

	originalDataDir := snapshotDataDir
	snapshotDataDir = tmpDir
	defer func() { snapshotDataDir = originalDataDir }()

	err := runListSnapshots(nil, nil)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestSnapshotsListCommand_WithSnapshots(t *testing.T) {
	tmpDir := t.TempDir()

	snapshotStore, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	snapshot := store.NewSnapshot("test-run-id", []float64{1, 2, 3}, 0.5, 1.0, 10, testRunConfig())

	if err := snapshotStore.SaveSnapshot("test-run-id", snapshot); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	originalDataDir := snapshotDataDir
	snapshotDataDir = tmpDir
	defer func() { snapshotDataDir = originalDataDir }()

	err = runListSnapshots(nil, nil)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestSnapshotsCleanCommand_NoFlags(t *testing.T) {
	tmpDir := t.TempDir()

	originalDataDir := snapshotDataDir
	snapshotDataDir = tmpDir
	defer func() { snapshotDataDir = originalDataDir }()

	keepLast = 0
	olderThanDays = 0

	err := runCleanSnapshots(nil, nil)
	if err == nil {
		t.Error("Expected error when no flags specified")
	}
}

func TestSnapshotsCleanCommand_WithForce(t *testing.T) {
	tmpDir := t.TempDir()

	snapshotStore, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	snapshot := store.NewSnapshot("old-run", []float64{1, 2, 3}, 0.5, 1.0, 10, testRunConfig())
	snapshot.Timestamp = time.Now().AddDate(0, 0, -30)

	if err := snapshotStore.SaveSnapshot("old-run", snapshot); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	originalDataDir := snapshotDataDir
	snapshotDataDir = tmpDir
	defer func() { snapshotDataDir = originalDataDir }()

	keepLast = 0
	olderThanDays = 7
	forceClean = true

	err = runCleanSnapshots(nil, nil)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	_, err = snapshotStore.LoadSnapshot("old-run")
	if err == nil {
		t.Error("Expected snapshot to be deleted")
	}
}
