package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"keepsake-backend/application/queries"
	querybus "keepsake-backend/application/queries/bus"
	"keepsake-backend/pkg/common"
)

// PublicHandler serves the anonymous browsing surface. Routes carry
// optional authentication, so a signed-in caller still sees memories
// shared with them through grants.
type PublicHandler struct {
	queryBus *querybus.QueryBus
	logger   *zap.Logger
}

// NewPublicHandler creates a new public handler
func NewPublicHandler(queryBus *querybus.QueryBus, logger *zap.Logger) *PublicHandler {
	return &PublicHandler{
		queryBus: queryBus,
		logger:   logger,
	}
}

// ListPublicMemories handles GET /public/memories
func (h *PublicHandler) ListPublicMemories(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.queryBus.Ask(r.Context(), queries.ListPublicMemoriesQuery{
		Limit: limit,
	})
	if err != nil {
		h.logger.Error("failed to list public memories", zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// GetPublicMemory handles GET /public/memories/{memoryID}
func (h *PublicHandler) GetPublicMemory(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetMemoryQuery{
		MemoryID:    memoryID,
		PrincipalID: principalID(r),
	})
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// GetPublicFragment handles GET /public/memories/{memoryID}/fragments/{fragmentID}
func (h *PublicHandler) GetPublicFragment(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}
	fragmentID, ok := pathID(w, r, "fragmentID")
	if !ok {
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetFragmentQuery{
		MemoryID:    memoryID,
		FragmentID:  fragmentID,
		PrincipalID: principalID(r),
	})
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}
