// Package supabase backs the object store with a Supabase storage bucket.
package supabase

import (
	"context"
	"fmt"
	"io"

	storage_go "github.com/supabase-community/storage-go"

	"keepsake-backend/infrastructure/storage"
	pkgerrors "keepsake-backend/pkg/errors"
)

// Store is a Supabase-bucket ObjectStore
type Store struct {
	client *storage_go.Client
	bucket string
}

// NewStore creates a store against one bucket
func NewStore(client *storage_go.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// NewClient builds a Supabase storage client from the project URL and
// service key
func NewClient(projectURL, serviceKey string) *storage_go.Client {
	return storage_go.NewClient(fmt.Sprintf("%s/storage/v1", projectURL), serviceKey, nil)
}

var _ storage.ObjectStore = (*Store)(nil)

// Save implements storage.ObjectStore
func (s *Store) Save(ctx context.Context, key string, data io.Reader, size int64) error {
	upsert := true
	_, err := s.client.UploadFile(s.bucket, key, data, storage_go.FileOptions{Upsert: &upsert})
	if err != nil {
		return pkgerrors.NewStorageError("save", err)
	}
	return nil
}

// Remove implements storage.ObjectStore
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.client.RemoveFile(s.bucket, []string{key}); err != nil {
		return pkgerrors.NewStorageError("remove", err)
	}
	return nil
}

// ObjectURL implements storage.ObjectStore
func (s *Store) ObjectURL(key string) string {
	return s.client.GetPublicUrl(s.bucket, key).SignedURL
}
