// Package fake is an in-memory object store for local runs and tests.
package fake

import (
	"context"
	"fmt"
	"io"
	"sync"

	"keepsake-backend/domain/core/entities"
	"keepsake-backend/infrastructure/storage"
	pkgerrors "keepsake-backend/pkg/errors"
)

// Store keeps objects in a map
type Store struct {
	mu     sync.RWMutex
	bucket string
	data   map[string][]byte
}

// NewStore creates an empty fake store
func NewStore(bucket string) *Store {
	return &Store{bucket: bucket, data: make(map[string][]byte)}
}

var _ storage.ObjectStore = (*Store)(nil)

// Save implements storage.ObjectStore
func (s *Store) Save(ctx context.Context, key string, data io.Reader, size int64) error {
	if size > entities.MaxFileSizeBytes {
		return pkgerrors.NewTooLargeError("file exceeds the 50MB upload limit")
	}

	buf, err := io.ReadAll(io.LimitReader(data, entities.MaxFileSizeBytes+1))
	if err != nil {
		return pkgerrors.NewStorageError("save", err)
	}
	if len(buf) > entities.MaxFileSizeBytes {
		return pkgerrors.NewTooLargeError("file exceeds the 50MB upload limit")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = buf
	return nil
}

// Remove implements storage.ObjectStore
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return pkgerrors.NewNotFoundError("stored object")
	}
	delete(s.data, key)
	return nil
}

// ObjectURL implements storage.ObjectStore
func (s *Store) ObjectURL(key string) string {
	return fmt.Sprintf("http://localhost:5000/%s/%s", s.bucket, key)
}

// Exists reports whether a key holds data. Test helper.
func (s *Store) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}
