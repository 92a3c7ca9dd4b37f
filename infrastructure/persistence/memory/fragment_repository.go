package memory

import (
	"context"
	"sync"
	"time"

	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	pkgerrors "keepsake-backend/pkg/errors"
)

type timeTuple struct {
	created time.Time
	updated time.Time
}

// FragmentRepository is a map-backed ports.FragmentRepository
type FragmentRepository struct {
	mu    sync.RWMutex
	items map[string]*storedFragment
}

type storedFragment struct {
	id       valueobjects.FragmentID
	memoryID valueobjects.MemoryID
	kind     entities.FragmentKind
	content  string
	file     *entities.FileInfo
	times    timeTuple
	version  int
}

// NewFragmentRepository creates an empty in-memory repository
func NewFragmentRepository() *FragmentRepository {
	return &FragmentRepository{items: make(map[string]*storedFragment)}
}

var _ ports.FragmentRepository = (*FragmentRepository)(nil)

// Load implements ports.FragmentRepository
func (r *FragmentRepository) Load(ctx context.Context, id valueobjects.FragmentID) (*entities.Fragment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("fragment")
	}
	return rehydrateFragment(s)
}

// Save implements ports.FragmentRepository
func (r *FragmentRepository) Save(ctx context.Context, f *entities.Fragment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[f.ID().String()] = snapshotFragment(f)
	return nil
}

// SaveAll implements ports.FragmentRepository. The write lock is held
// across the whole batch so composition moves land together.
func (r *FragmentRepository) SaveAll(ctx context.Context, fragments []*entities.Fragment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range fragments {
		r.items[f.ID().String()] = snapshotFragment(f)
	}
	return nil
}

// Delete implements ports.FragmentRepository
func (r *FragmentRepository) Delete(ctx context.Context, id valueobjects.FragmentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id.String()]; !ok {
		return pkgerrors.NewNotFoundError("fragment")
	}
	delete(r.items, id.String())
	return nil
}

// FindByMemory implements ports.FragmentRepository
func (r *FragmentRepository) FindByMemory(ctx context.Context, memoryID valueobjects.MemoryID) ([]*entities.Fragment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.Fragment
	for _, s := range r.items {
		if s.memoryID.Equals(memoryID) {
			f, err := rehydrateFragment(s)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func snapshotFragment(f *entities.Fragment) *storedFragment {
	return &storedFragment{
		id:       f.ID(),
		memoryID: f.MemoryID(),
		kind:     f.Kind(),
		content:  f.Content(),
		file:     f.File(),
		times:    timeTuple{f.CreatedAt(), f.UpdatedAt()},
		version:  f.Version(),
	}
}

func rehydrateFragment(s *storedFragment) (*entities.Fragment, error) {
	var file *entities.FileInfo
	if s.file != nil {
		fi := *s.file
		file = &fi
	}
	return entities.ReconstructFragment(
		s.id, s.memoryID, s.kind, s.content, file,
		s.times.created, s.times.updated, s.version,
	)
}
