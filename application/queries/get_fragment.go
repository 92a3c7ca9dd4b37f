package queries

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"keepsake-backend/application/ports"
	"keepsake-backend/application/queries/bus"
	"keepsake-backend/domain/core/valueobjects"
	pkgerrors "keepsake-backend/pkg/errors"
)

// GetFragmentQuery fetches one fragment through its owning memory
type GetFragmentQuery struct {
	MemoryID    string `json:"memory_id" validate:"required,uuid"`
	FragmentID  string `json:"fragment_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"omitempty,uuid"`
}

// Validate implements bus.Query
func (q GetFragmentQuery) Validate() error {
	if q.MemoryID == "" || q.FragmentID == "" {
		return errors.New("memory and fragment IDs are required")
	}
	return nil
}

// GetFragmentHandler handles GetFragmentQuery
type GetFragmentHandler struct {
	memories  ports.MemoryRepository
	fragments ports.FragmentRepository
	logger    *zap.Logger
}

// NewGetFragmentHandler creates the handler
func NewGetFragmentHandler(memories ports.MemoryRepository, fragments ports.FragmentRepository, logger *zap.Logger) *GetFragmentHandler {
	return &GetFragmentHandler{memories: memories, fragments: fragments, logger: logger}
}

var _ bus.QueryHandler = (*GetFragmentHandler)(nil)

// Handle implements bus.QueryHandler
func (h *GetFragmentHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(GetFragmentQuery)
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

	fragmentID, err := valueobjects.NewFragmentIDFromString(query.FragmentID)
	if err != nil {
		return nil, pkgerrors.NewValidationError("invalid fragment id")
	}

	// Once read visibility on the memory is established, a missing
	// fragment is safe to report as missing.
	if !memory.ContainsFragment(fragmentID) {
		return nil, pkgerrors.NewNotFoundError("fragment")
	}

	fragment, err := h.fragments.Load(ctx, fragmentID)
	if err != nil {
		return nil, err
	}

	view := NewFragmentView(fragment)
	return &view, nil
}
