package queries

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"keepsake-backend/application/ports"
	"keepsake-backend/application/queries/bus"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/permissions"
	pkgerrors "keepsake-backend/pkg/errors"
)

// GetMemoryQuery fetches one memory with its fragments in order.
// PrincipalID may be empty for anonymous public reads.
type GetMemoryQuery struct {
	MemoryID    string `json:"memory_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"omitempty,uuid"`
}

// Validate implements bus.Query
func (q GetMemoryQuery) Validate() error {
	if q.MemoryID == "" {
		return errors.New("memory ID is required")
	}
	return nil
}

// GetMemoryHandler handles GetMemoryQuery
type GetMemoryHandler struct {
	memories  ports.MemoryRepository
	fragments ports.FragmentRepository
	logger    *zap.Logger
}

// NewGetMemoryHandler creates the handler
func NewGetMemoryHandler(memories ports.MemoryRepository, fragments ports.FragmentRepository, logger *zap.Logger) *GetMemoryHandler {
	return &GetMemoryHandler{memories: memories, fragments: fragments, logger: logger}
}

var _ bus.QueryHandler = (*GetMemoryHandler)(nil)

// Handle implements bus.QueryHandler
func (h *GetMemoryHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(GetMemoryQuery)
	if !ok {
		return nil, pkgerrors.NewInternalError("unexpected query type")
	}

	principal, err := parsePrincipal(query.PrincipalID)
	if err != nil {
		return nil, err
	}

	memory, err := authorizedRead(ctx, h.memories, query.MemoryID, principal)
	if err != nil {
		return nil, err
	}

	view, err := h.buildView(ctx, memory, principal)
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (h *GetMemoryHandler) buildView(ctx context.Context, memory *entities.Memory, viewer valueobjects.AccountID) (*MemoryView, error) {
	loaded, err := h.fragments.FindByMemory(ctx, memory.ID())
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*entities.Fragment, len(loaded))
	for _, f := range loaded {
		byID[f.ID().String()] = f
	}

	// Membership order lives on the memory, not the fragment rows.
	views := make([]FragmentView, 0, memory.FragmentCount())
	for _, fid := range memory.FragmentIDs() {
		f, ok := byID[fid.String()]
		if !ok {
			h.logger.Warn("fragment listed but not stored",
				zap.String("memory_id", memory.ID().String()),
				zap.String("fragment_id", fid.String()))
			continue
		}
		views = append(views, NewFragmentView(f))
	}

	return &MemoryView{
		ID:        memory.ID().String(),
		OwnerID:   memory.OwnerID().String(),
		Title:     memory.Title(),
		Public:    memory.IsPublic(),
		Draft:     memory.IsDraft(),
		Pinned:    !viewer.IsZero() && memory.IsPinnedBy(viewer),
		Tags:      memory.Tags(),
		Readers:   grantView(memory.Readers()),
		Editors:   grantView(memory.Editors()),
		Fragments: views,
		CreatedAt: memory.CreatedAt(),
		UpdatedAt: memory.UpdatedAt(),
	}, nil
}

// parsePrincipal accepts an empty id as the anonymous principal
func parsePrincipal(principalID string) (valueobjects.AccountID, error) {
	if principalID == "" {
		return valueobjects.AccountID{}, nil
	}
	principal, err := valueobjects.NewAccountIDFromString(principalID)
	if err != nil {
		return valueobjects.AccountID{}, pkgerrors.NewValidationError("invalid principal id")
	}
	return principal, nil
}

// authorizedRead loads a memory and gates it on read visibility. A
// missing memory is indistinguishable from a private one.
func authorizedRead(ctx context.Context, memories ports.MemoryRepository, memoryID string, principal valueobjects.AccountID) (*entities.Memory, error) {
	mid, err := valueobjects.NewMemoryIDFromString(memoryID)
	if err != nil {
		return nil, pkgerrors.NewValidationError("invalid memory id")
	}

	memory, err := memories.Load(ctx, mid)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewForbiddenError("")
		}
		return nil, err
	}

	if !permissions.Decide(principal, permissions.ActionReadMemory, permissions.ResourceFromMemory(memory)).Allowed() {
		return nil, pkgerrors.NewForbiddenError("")
	}
	return memory, nil
}
