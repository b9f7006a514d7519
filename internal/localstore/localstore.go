// Package localstore provides the durable key-value persistence substrate
// used by the watchlist and alert stores. Two backends are available: plain
// JSON files on disk and a single-table SQLite database.
//
// Writes are best effort. A failed write is logged by the caller and the
// in-memory state stays authoritative for the session; there is no
// transactionality and no cross-process locking (last write wins).
package localstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// Well-known keys.
const (
	KeyWatchlists = "watchlists"
	KeyActiveList = "watchlist.active"
	KeyAlerts     = "alerts"
)

// KV is a key-value persistence substrate. Get returns (nil, nil) for a
// missing key.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Compile-time interface check.
var _ KV = (*FileKV)(nil)

// FileKV stores each key as one file under a state directory.
type FileKV struct {
	dir string
}

// NewFileKV creates the state directory if needed and returns a FileKV
// rooted there.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}
	return &FileKV{dir: dir}, nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Get reads the value for key, or (nil, nil) if the file does not exist.
func (f *FileKV) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Put writes the value for key, replacing any previous value.
func (f *FileKV) Put(key string, value []byte) error {
	if err := os.WriteFile(f.path(key), value, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes the value for key. Deleting a missing key is a no-op.
func (f *FileKV) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (f *FileKV) Close() error { return nil }
