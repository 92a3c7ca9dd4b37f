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

// AccountRepository is a map-backed ports.AccountRepository
type AccountRepository struct {
	mu    sync.RWMutex
	items map[string]*storedAccount
}

type storedAccount struct {
	id          valueobjects.AccountID
	email       string
	displayName string
	createdAt   time.Time
}

// NewAccountRepository creates an empty in-memory repository
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{items: make(map[string]*storedAccount)}
}

var _ ports.AccountRepository = (*AccountRepository)(nil)

// Load implements ports.AccountRepository
func (r *AccountRepository) Load(ctx context.Context, id valueobjects.AccountID) (*entities.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("account")
	}
	return entities.ReconstructAccount(s.id, s.email, s.displayName, s.createdAt), nil
}

// Save implements ports.AccountRepository
func (r *AccountRepository) Save(ctx context.Context, a *entities.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[a.ID().String()] = &storedAccount{
		id:          a.ID(),
		email:       a.Email(),
		displayName: a.DisplayName(),
		createdAt:   a.CreatedAt(),
	}
	return nil
}

// FindByEmail implements ports.AccountRepository
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*entities.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.items {
		if s.email == email {
			return entities.ReconstructAccount(s.id, s.email, s.displayName, s.createdAt), nil
		}
	}
	return nil, pkgerrors.NewNotFoundError("account")
}
