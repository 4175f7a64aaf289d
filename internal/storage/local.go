package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// LocalStore implements Store on the local filesystem, one file per key.
// It is the persistent profile store for a single-user client.
type LocalStore struct {
	basePath string // Root directory (e.g., "~/.cartsync")
}

// NewLocalStore creates a filesystem store rooted at basePath (created if it
// doesn't exist).
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStore{basePath: basePath}, nil
}

// Get reads the file backing key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errUnavailable("get", err)
	}
	return data, nil
}

// Put writes value through a temp file and rename so readers never observe
// a half-written entry.
func (s *LocalStore) Put(ctx context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return errUnavailable("put", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errUnavailable("put", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errUnavailable("put", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return errUnavailable("put", err)
	}
	return nil
}

// Delete removes the file backing key.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return errUnavailable("delete", err)
	}
	return nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.basePath, url.PathEscape(key)+".json")
}
