// Package storage contains the object storage backends and the async
// upload sink that drives the fragment save outcome events.
package storage

import (
	"context"
	"io"
)

// ObjectStore is a blocking object storage backend. The sink wraps it
// with the fire-and-forget upload contract the application expects.
type ObjectStore interface {
	Save(ctx context.Context, key string, data io.Reader, size int64) error
	Remove(ctx context.Context, key string) error
	ObjectURL(key string) string
}
