package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"catalog/internal/docstore"
)

const stateFile = "state.json"

type Snapshotter interface {
	WriteSnapshot(ctx context.Context, snapshotID string, st docstore.Store) (int, error)
}

// FilesystemSnapshotter dumps every document to <baseDir>/<snapshotID>/state.json.
type FilesystemSnapshotter struct {
	baseDir string
}

func NewFilesystemSnapshotter(baseDir string) *FilesystemSnapshotter {
	return &FilesystemSnapshotter{baseDir: baseDir}
}

// WriteSnapshot returns the number of documents written.
func (f *FilesystemSnapshotter) WriteSnapshot(ctx context.Context, snapshotID string, st docstore.Store) (int, error) {
	dump := make(map[string]json.RawMessage)
	if err := st.Range(ctx, func(key string, doc json.RawMessage) error {
		dump[key] = doc
		return nil
	}); err != nil {
		return 0, fmt.Errorf("range: %w", err)
	}

	dir := filepath.Join(f.baseDir, snapshotID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	// Write to a temp file and rename so a reader never sees a partial dump.
	tmp, err := os.CreateTemp(dir, stateFile+".*")
	if err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}
	defer os.Remove(tmp.Name())
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, stateFile)); err != nil {
		return 0, fmt.Errorf("rename: %w", err)
	}
	return len(dump), nil
}

// Read loads the dump written by WriteSnapshot.
func Read(baseDir, snapshotID string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, snapshotID, stateFile))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var dump map[string]json.RawMessage
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return dump, nil
}
