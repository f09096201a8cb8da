package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Compile-time assertion that FileStore satisfies KV.
var _ KV = (*FileStore)(nil)

// FileStore is a [KV] backed by one file per key inside a data directory.
// Writes go through a temp file followed by an atomic rename, so a crash
// mid-write never leaves a torn value behind.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates the data directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("filestore: data directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create data directory %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// path maps key to a file path inside the data directory. Path separators in
// keys are flattened so a key can never escape the directory.
func (s *FileStore) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(s.dir, safe+".json")
}

// Get implements [KV].
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("filestore: %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %q: %w", key, err)
	}
	return data, nil
}

// Put implements [KV].
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp for %q: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: close temp for %q: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: rename %q: %w", key, err)
	}
	return nil
}

// Delete implements [KV].
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filestore: delete %q: %w", key, err)
	}
	return nil
}

// Close implements [KV]. The file store holds no open handles between calls.
func (s *FileStore) Close() error { return nil }
