package queries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"keepsake-backend/application/ports"
	"keepsake-backend/application/queries/bus"
	"keepsake-backend/domain/core/valueobjects"
	pkgerrors "keepsake-backend/pkg/errors"
)

// ListMemoriesQuery lists the memories the principal owns plus those
// shared with them. Pinned memories sort first, then most recent.
type ListMemoriesQuery struct {
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
}

// Validate implements bus.Query
func (q ListMemoriesQuery) Validate() error {
	if q.PrincipalID == "" {
		return errors.New("principal ID is required")
	}
	return nil
}

// ListPublicMemoriesQuery lists public, non-draft memories for the
// unauthenticated surface
type ListPublicMemoriesQuery struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=100"`
}

// Validate implements bus.Query
func (q ListPublicMemoriesQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	return nil
}

// ListMemoriesHandler handles both listing queries. The public listing
// is served through the cache; per-principal listings always hit the
// repository so fresh grants are visible immediately.
type ListMemoriesHandler struct {
	memories ports.MemoryRepository
	cache    ports.Cache
	logger   *zap.Logger
}

// NewListMemoriesHandler creates the handler. cache may be nil to
// disable public listing caching.
func NewListMemoriesHandler(memories ports.MemoryRepository, cache ports.Cache, logger *zap.Logger) *ListMemoriesHandler {
	return &ListMemoriesHandler{memories: memories, cache: cache, logger: logger}
}

var _ bus.QueryHandler = (*ListMemoriesHandler)(nil)

// Handle implements bus.QueryHandler
func (h *ListMemoriesHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	switch query := q.(type) {
	case ListMemoriesQuery:
		return h.listForPrincipal(ctx, query)
	case ListPublicMemoriesQuery:
		return h.listPublic(ctx, query)
	default:
		return nil, pkgerrors.NewInternalError("unexpected query type")
	}
}

func (h *ListMemoriesHandler) listForPrincipal(ctx context.Context, query ListMemoriesQuery) ([]MemorySummaryView, error) {
	principal, err := valueobjects.NewAccountIDFromString(query.PrincipalID)
	if err != nil {
		return nil, pkgerrors.NewValidationError("invalid principal id")
	}

	owned, err := h.memories.FindByOwner(ctx, principal)
	if err != nil {
		return nil, err
	}
	shared, err := h.memories.FindSharedWith(ctx, principal)
	if err != nil {
		return nil, err
	}

	all := append(owned, shared...)
	views := make([]MemorySummaryView, 0, len(all))
	for _, m := range all {
		views = append(views, NewMemorySummaryView(m, principal))
	}
	sortSummaries(views)
	return views, nil
}

func (h *ListMemoriesHandler) listPublic(ctx context.Context, query ListPublicMemoriesQuery) ([]MemorySummaryView, error) {
	limit := query.Limit
	if limit == 0 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("public-memories:%d", limit)
	if h.cache != nil {
		if data, ok := h.cache.Get(ctx, cacheKey); ok {
			var cached []MemorySummaryView
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
			h.logger.Warn("dropping undecodable cache entry", zap.String("key", cacheKey))
		}
	}

	found, err := h.memories.FindPublic(ctx, limit)
	if err != nil {
		return nil, err
	}

	views := make([]MemorySummaryView, 0, len(found))
	for _, m := range found {
		views = append(views, NewMemorySummaryView(m, valueobjects.AccountID{}))
	}
	sortSummaries(views)

	if h.cache != nil {
		if data, err := json.Marshal(views); err == nil {
			if err := h.cache.Set(ctx, cacheKey, data); err != nil {
				h.logger.Warn("public listing cache write failed", zap.Error(err))
			}
		}
	}
	return views, nil
}

func sortSummaries(views []MemorySummaryView) {
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Pinned != views[j].Pinned {
			return views[i].Pinned
		}
		return views[i].UpdatedAt.After(views[j].UpdatedAt)
	})
}
