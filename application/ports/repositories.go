// Package ports defines the interfaces the application layer consumes.
// Infrastructure provides the implementations; handlers and services
// depend only on what is declared here.
package ports

import (
	"context"
	"io"

	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/events"
)

// MemoryRepository persists memory aggregates. Save is an atomic
// read-modify-write per aggregate; composition operations rely on the
// locker for cross-aggregate consistency.
type MemoryRepository interface {
	Load(ctx context.Context, id valueobjects.MemoryID) (*entities.Memory, error)
	Save(ctx context.Context, memory *entities.Memory) error
	Delete(ctx context.Context, id valueobjects.MemoryID) error
	FindByOwner(ctx context.Context, owner valueobjects.AccountID) ([]*entities.Memory, error)
	FindSharedWith(ctx context.Context, account valueobjects.AccountID) ([]*entities.Memory, error)
	FindPublic(ctx context.Context, limit int) ([]*entities.Memory, error)
}

// FragmentRepository persists fragments
type FragmentRepository interface {
	Load(ctx context.Context, id valueobjects.FragmentID) (*entities.Fragment, error)
	Save(ctx context.Context, fragment *entities.Fragment) error
	SaveAll(ctx context.Context, fragments []*entities.Fragment) error
	Delete(ctx context.Context, id valueobjects.FragmentID) error
	FindByMemory(ctx context.Context, memoryID valueobjects.MemoryID) ([]*entities.Fragment, error)
}

// AccountRepository persists accounts
type AccountRepository interface {
	Load(ctx context.Context, id valueobjects.AccountID) (*entities.Account, error)
	Save(ctx context.Context, account *entities.Account) error
	FindByEmail(ctx context.Context, email string) (*entities.Account, error)
}

// EventPublisher pushes domain events out to the bus. Delivery is
// at-least-once; consumers must tolerate duplicates.
type EventPublisher interface {
	Publish(ctx context.Context, evts ...events.DomainEvent) error
}

// EventHandler consumes a single domain event
type EventHandler interface {
	HandleEvent(ctx context.Context, event events.DomainEvent) error
}

// EventBus routes published events to subscribed handlers
type EventBus interface {
	EventPublisher
	Subscribe(eventType string, handler EventHandler)
}

// FileStorage is the object storage sink. BeginUpload is fire-and-forget:
// it returns once the transfer is enqueued and later reports the outcome
// as a fragment.save_succeeded or fragment.save_failed event on the bus.
type FileStorage interface {
	BeginUpload(ctx context.Context, fragmentID valueobjects.FragmentID, memoryID valueobjects.MemoryID, key string, data io.Reader, size int64) error
	Remove(ctx context.Context, key string) error
	ObjectURL(key string) string
}

// UnlockFunc releases a held lock
type UnlockFunc func()

// ResourceLocker serializes work per resource id. Pair locks are always
// acquired in ascending memory-id order so concurrent compositions on
// overlapping pairs cannot deadlock.
type ResourceLocker interface {
	LockMemory(ctx context.Context, id valueobjects.MemoryID) (UnlockFunc, error)
	LockMemoryPair(ctx context.Context, a, b valueobjects.MemoryID) (UnlockFunc, error)
	LockFragment(ctx context.Context, id valueobjects.FragmentID) (UnlockFunc, error)
}

// Cache is a read-through cache for query results
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
