package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"keepsake-backend/application/commands"
	"keepsake-backend/application/commands/bus"
	"keepsake-backend/application/queries"
	querybus "keepsake-backend/application/queries/bus"
	"keepsake-backend/application/services"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/pkg/auth"
	"keepsake-backend/pkg/common"
	pkgerrors "keepsake-backend/pkg/errors"
	"keepsake-backend/pkg/utils"
)

const maxJSONBody = 1 << 20

// MemoryHandler handles memory-related HTTP requests. Composition
// endpoints call the service directly because they return the ids of
// memories created during the operation.
type MemoryHandler struct {
	commandBus  *bus.CommandBus
	queryBus    *querybus.QueryBus
	composition *services.CompositionService
	logger      *zap.Logger
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	composition *services.CompositionService,
	logger *zap.Logger,
) *MemoryHandler {
	return &MemoryHandler{
		commandBus:  commandBus,
		queryBus:    queryBus,
		composition: composition,
		logger:      logger,
	}
}

// CreateMemoryRequest represents the request body for creating a memory
type CreateMemoryRequest struct {
	Title string   `json:"title" validate:"required,min=1,max=200"`
	Draft bool     `json:"draft"`
	Tags  []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,min=1,max=50"`
}

// UpdateMemoryRequest represents the request body for updating memory metadata
type UpdateMemoryRequest struct {
	Title *string   `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Tags  *[]string `json:"tags,omitempty" validate:"omitempty,max=20,dive,min=1,max=50"`
	Draft *bool     `json:"draft,omitempty"`
	Order []string  `json:"order,omitempty" validate:"omitempty,dive,uuid"`
}

// CreateMemory handles POST /memories
func (h *MemoryHandler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	var req CreateMemoryRequest
	if err := common.ParseJSONBody(r, &req, maxJSONBody); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), err.Error())
		return
	}

	principal, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, string(pkgerrors.ErrorTypeUnauthorized), "unauthorized")
		return
	}

	memoryID := uuid.New().String()

	cmd := commands.CreateMemoryCommand{
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
		OwnerID:     principal.AccountID,
		Title:       req.Title,
		Draft:       req.Draft,
		Tags:        req.Tags,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.logger.Error("failed to create memory",
			zap.String("account_id", principal.AccountID),
			zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, map[string]string{
		"id":         memoryID,
		"created_at": utils.NowRFC3339(),
	})
}

// GetMemory handles GET /memories/{memoryID}
func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	query := queries.GetMemoryQuery{
		MemoryID:    memoryID,
		PrincipalID: principalID(r),
	}

	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// ListMemories handles GET /memories
func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, string(pkgerrors.ErrorTypeUnauthorized), "unauthorized")
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.ListMemoriesQuery{
		PrincipalID: principal.AccountID,
	})
	if err != nil {
		h.logger.Error("failed to list memories",
			zap.String("account_id", principal.AccountID),
			zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// UpdateMemory handles PATCH /memories/{memoryID}
func (h *MemoryHandler) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	var req UpdateMemoryRequest
	if err := common.ParseJSONBody(r, &req, maxJSONBody); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), err.Error())
		return
	}

	principal, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, string(pkgerrors.ErrorTypeUnauthorized), "unauthorized")
		return
	}

	cmd := commands.UpdateMemoryMetadataCommand{
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
		Title:       req.Title,
		Tags:        req.Tags,
		Draft:       req.Draft,
		Order:       req.Order,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"id": memoryID})
}

// DeleteMemory handles DELETE /memories/{memoryID}
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	principal, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, string(pkgerrors.ErrorTypeUnauthorized), "unauthorized")
		return
	}

	cmd := commands.DeleteMemoryCommand{
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.logger.Error("failed to delete memory",
			zap.String("memory_id", memoryID),
			zap.String("account_id", principal.AccountID),
			zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PinMemory handles PUT /memories/{memoryID}/pin
func (h *MemoryHandler) PinMemory(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	var req struct {
		Pinned bool `json:"pinned"`
	}
	if err := common.ParseJSONBody(r, &req, maxJSONBody); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}

	principal, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, string(pkgerrors.ErrorTypeUnauthorized), "unauthorized")
		return
	}

	cmd := commands.PinMemoryCommand{
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
		Pinned:      req.Pinned,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"id":     memoryID,
		"pinned": req.Pinned,
	})
}

// MergeMemories handles POST /memories/{memoryID}/merge
func (h *MemoryHandler) MergeMemories(w http.ResponseWriter, r *http.Request) {
	targetID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	var req struct {
		SourceID string `json:"source_id" validate:"required,uuid"`
	}
	if err := common.ParseJSONBody(r, &req, maxJSONBody); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), err.Error())
		return
	}

	principal, target, source, ok := h.compositionArgs(w, r, targetID, req.SourceID)
	if !ok {
		return
	}

	merged, err := h.composition.Merge(r.Context(), target, source, principal)
	if err != nil {
		h.logger.Warn("merge failed",
			zap.String("target_id", targetID),
			zap.String("source_id", req.SourceID),
			zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, queries.NewMemorySummaryView(merged, principal))
}

// SplitMemory handles POST /memories/{memoryID}/split
func (h *MemoryHandler) SplitMemory(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	var req struct {
		FragmentIDs []string `json:"fragment_ids" validate:"required,min=1,dive,uuid"`
	}
	if err := common.ParseJSONBody(r, &req, maxJSONBody); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), err.Error())
		return
	}

	principal, source, _, ok := h.compositionArgs(w, r, memoryID, "")
	if !ok {
		return
	}

	fragmentIDs := make([]valueobjects.FragmentID, 0, len(req.FragmentIDs))
	for _, raw := range req.FragmentIDs {
		fid, err := valueobjects.NewFragmentIDFromString(raw)
		if err != nil {
			common.RespondAppError(w, err)
			return
		}
		fragmentIDs = append(fragmentIDs, fid)
	}

	created, err := h.composition.Split(r.Context(), source, fragmentIDs, principal)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, queries.NewMemorySummaryView(created, principal))
}

// ShatterMemory handles POST /memories/{memoryID}/shatter
func (h *MemoryHandler) ShatterMemory(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	principal, source, _, ok := h.compositionArgs(w, r, memoryID, "")
	if !ok {
		return
	}

	created, err := h.composition.Shatter(r.Context(), source, principal)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	views := make([]queries.MemorySummaryView, 0, len(created))
	for _, m := range created {
		views = append(views, queries.NewMemorySummaryView(m, principal))
	}

	common.RespondJSON(w, http.StatusCreated, views)
}

// compositionArgs resolves the caller and the memory ids a composition
// endpoint needs. sourceRaw may be empty for single-memory operations.
func (h *MemoryHandler) compositionArgs(w http.ResponseWriter, r *http.Request, targetRaw, sourceRaw string) (valueobjects.AccountID, valueobjects.MemoryID, valueobjects.MemoryID, bool) {
	var zero valueobjects.MemoryID

	principal, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, string(pkgerrors.ErrorTypeUnauthorized), "unauthorized")
		return valueobjects.AccountID{}, zero, zero, false
	}

	accountID, err := valueobjects.NewAccountIDFromString(principal.AccountID)
	if err != nil {
		common.RespondAppError(w, err)
		return valueobjects.AccountID{}, zero, zero, false
	}

	target, err := valueobjects.NewMemoryIDFromString(targetRaw)
	if err != nil {
		common.RespondAppError(w, err)
		return valueobjects.AccountID{}, zero, zero, false
	}

	source := zero
	if sourceRaw != "" {
		source, err = valueobjects.NewMemoryIDFromString(sourceRaw)
		if err != nil {
			common.RespondAppError(w, err)
			return valueobjects.AccountID{}, zero, zero, false
		}
	}

	return accountID, target, source, true
}

// pathID extracts and validates a UUID path parameter
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if id == "" {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), name+" is required")
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), "invalid "+name+" format")
		return "", false
	}
	return id, true
}

// principalID returns the caller's account id or empty for anonymous
func principalID(r *http.Request) string {
	principal, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		return ""
	}
	return principal.AccountID
}
