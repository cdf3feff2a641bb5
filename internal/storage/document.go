package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DocumentStore persists the whole state document as a single JSON file.
// Writes go through a temp file in the same directory followed by a rename,
// so a crash mid-write never leaves a truncated document behind.
type DocumentStore struct {
	path string
}

// NewDocumentStore returns a store backed by the given file path. The
// parent directory is created lazily on first save.
func NewDocumentStore(path string) *DocumentStore {
	return &DocumentStore{path: path}
}

// Path returns the backing file path.
func (d *DocumentStore) Path() string {
	return d.path
}

// Load reads the current document. A missing file is not an error; it
// returns (nil, nil) so the caller can start from defaults.
func (d *DocumentStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state document: %w", err)
	}
	return data, nil
}

// Save atomically replaces the document with data.
func (d *DocumentStore) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state document: %w", err)
	}
	return nil
}
