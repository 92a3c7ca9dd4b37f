// Package memory provides in-process implementations of the persistence
// ports, used for local development and tests.
package memory

import (
	"context"
	"sync"

	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	pkgerrors "keepsake-backend/pkg/errors"
)

// MemoryRepository is a map-backed ports.MemoryRepository
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*storedMemory
}

// storedMemory snapshots the aggregate state so callers mutating a
// loaded entity do not leak changes into the store before Save.
type storedMemory struct {
	id          valueobjects.MemoryID
	owner       valueobjects.AccountID
	title       string
	public      bool
	draft       bool
	readers     valueobjects.GrantSet
	editors     valueobjects.GrantSet
	fragmentIDs []valueobjects.FragmentID
	tags        []string
	pinnedBy    []valueobjects.AccountID
	createdAt   timeTuple
	version     int
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*storedMemory)}
}

var _ ports.MemoryRepository = (*MemoryRepository)(nil)

// Load implements ports.MemoryRepository
func (r *MemoryRepository) Load(ctx context.Context, id valueobjects.MemoryID) (*entities.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("memory")
	}
	return rehydrate(s)
}

// Save implements ports.MemoryRepository
func (r *MemoryRepository) Save(ctx context.Context, m *entities.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[m.ID().String()] = snapshot(m)
	return nil
}

// Delete implements ports.MemoryRepository
func (r *MemoryRepository) Delete(ctx context.Context, id valueobjects.MemoryID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id.String()]; !ok {
		return pkgerrors.NewNotFoundError("memory")
	}
	delete(r.items, id.String())
	return nil
}

// FindByOwner implements ports.MemoryRepository
func (r *MemoryRepository) FindByOwner(ctx context.Context, owner valueobjects.AccountID) ([]*entities.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.Memory
	for _, s := range r.items {
		if s.owner.Equals(owner) {
			m, err := rehydrate(s)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// FindSharedWith implements ports.MemoryRepository
func (r *MemoryRepository) FindSharedWith(ctx context.Context, account valueobjects.AccountID) ([]*entities.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.Memory
	for _, s := range r.items {
		if s.owner.Equals(account) {
			continue
		}
		if s.readers.Contains(account) || s.editors.Contains(account) {
			m, err := rehydrate(s)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// FindPublic implements ports.MemoryRepository
func (r *MemoryRepository) FindPublic(ctx context.Context, limit int) ([]*entities.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.Memory
	for _, s := range r.items {
		if !s.public || s.draft {
			continue
		}
		m, err := rehydrate(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func snapshot(m *entities.Memory) *storedMemory {
	return &storedMemory{
		id:          m.ID(),
		owner:       m.OwnerID(),
		title:       m.Title(),
		public:      m.IsPublic(),
		draft:       m.IsDraft(),
		readers:     m.Readers(),
		editors:     m.Editors(),
		fragmentIDs: m.FragmentIDs(),
		tags:        m.Tags(),
		pinnedBy:    m.PinnedBy(),
		createdAt:   timeTuple{m.CreatedAt(), m.UpdatedAt()},
		version:     m.Version(),
	}
}

func rehydrate(s *storedMemory) (*entities.Memory, error) {
	return entities.ReconstructMemory(
		s.id, s.owner, s.title,
		s.public, s.draft,
		s.readers, s.editors,
		s.fragmentIDs, s.tags, s.pinnedBy,
		s.createdAt.created, s.createdAt.updated, s.version,
	)
}
