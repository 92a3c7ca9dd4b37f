package handlers

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"keepsake-backend/application/commands"
	"keepsake-backend/application/commands/bus"
	"keepsake-backend/application/queries"
	querybus "keepsake-backend/application/queries/bus"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/pkg/auth"
	"keepsake-backend/pkg/common"
	pkgerrors "keepsake-backend/pkg/errors"
	"keepsake-backend/pkg/utils"
)

// FragmentHandler handles fragment-related HTTP requests
type FragmentHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	logger     *zap.Logger
}

// NewFragmentHandler creates a new fragment handler
func NewFragmentHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	logger *zap.Logger,
) *FragmentHandler {
	return &FragmentHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		logger:     logger,
	}
}

// AddTextFragmentRequest represents the request body for an inline fragment
type AddTextFragmentRequest struct {
	Kind    string `json:"kind" validate:"required,oneof=text rich_text"`
	Content string `json:"content" validate:"required"`
}

// UpdateFragmentRequest represents a content update
type UpdateFragmentRequest struct {
	Content string `json:"content" validate:"required"`
}

// DeleteFragmentsRequest lists fragments to delete from one memory
type DeleteFragmentsRequest struct {
	FragmentIDs []string `json:"fragment_ids" validate:"required,min=1,dive,uuid"`
}

// AddTextFragment handles POST /memories/{memoryID}/fragments
func (h *FragmentHandler) AddTextFragment(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	var req AddTextFragmentRequest
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

	fragmentID := uuid.New().String()

	cmd := commands.AddTextFragmentCommand{
		FragmentID:  fragmentID,
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
		Kind:        req.Kind,
		Content:     req.Content,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, map[string]string{
		"id":         fragmentID,
		"memory_id":  memoryID,
		"created_at": utils.NowRFC3339(),
	})
}

// AddFileFragment handles POST /memories/{memoryID}/fragments/file.
// The body is multipart form data with a "file" part and a "media_type"
// field. The fragment is created in pending state; the upload completes
// asynchronously.
func (h *FragmentHandler) AddFileFragment(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	principal, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, string(pkgerrors.ErrorTypeUnauthorized), "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, entities.MaxFileSizeBytes+maxJSONBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), "invalid multipart body: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), "file part is required")
		return
	}
	defer file.Close()

	if header.Size > entities.MaxFileSizeBytes {
		common.RespondAppError(w, pkgerrors.NewTooLargeError("file exceeds the 50MB limit"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, entities.MaxFileSizeBytes+1))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), "failed to read file: "+err.Error())
		return
	}
	if int64(len(data)) > entities.MaxFileSizeBytes {
		common.RespondAppError(w, pkgerrors.NewTooLargeError("file exceeds the 50MB limit"))
		return
	}

	mediaType := r.FormValue("media_type")
	if mediaType == "" {
		mediaType = "other"
	}

	fragmentID := uuid.New().String()

	cmd := commands.AddFileFragmentCommand{
		FragmentID:  fragmentID,
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
		FileName:    header.Filename,
		MediaType:   mediaType,
		Data:        data,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.logger.Error("failed to add file fragment",
			zap.String("memory_id", memoryID),
			zap.String("file_name", header.Filename),
			zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusAccepted, map[string]string{
		"id":        fragmentID,
		"memory_id": memoryID,
		"status":    string(entities.FileStatusPending),
	})
}

// GetFragment handles GET /memories/{memoryID}/fragments/{fragmentID}
func (h *FragmentHandler) GetFragment(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}
	fragmentID, ok := pathID(w, r, "fragmentID")
	if !ok {
		return
	}

	query := queries.GetFragmentQuery{
		MemoryID:    memoryID,
		FragmentID:  fragmentID,
		PrincipalID: principalID(r),
	}

	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// UpdateFragment handles PUT /fragments/{fragmentID}
func (h *FragmentHandler) UpdateFragment(w http.ResponseWriter, r *http.Request) {
	fragmentID, ok := pathID(w, r, "fragmentID")
	if !ok {
		return
	}

	var req UpdateFragmentRequest
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

	cmd := commands.UpdateFragmentContentCommand{
		FragmentID:  fragmentID,
		PrincipalID: principal.AccountID,
		Content:     req.Content,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"id": fragmentID})
}

// DeleteFragment handles DELETE /fragments/{fragmentID}
func (h *FragmentHandler) DeleteFragment(w http.ResponseWriter, r *http.Request) {
	fragmentID, ok := pathID(w, r, "fragmentID")
	if !ok {
		return
	}

	principal, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, string(pkgerrors.ErrorTypeUnauthorized), "unauthorized")
		return
	}

	cmd := commands.DeleteFragmentCommand{
		FragmentID:  fragmentID,
		PrincipalID: principal.AccountID,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteFragments handles POST /memories/{memoryID}/fragments/bulk-delete
func (h *FragmentHandler) DeleteFragments(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	var req DeleteFragmentsRequest
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

	cmd := commands.DeleteFragmentsCommand{
		MemoryID:    memoryID,
		FragmentIDs: req.FragmentIDs,
		PrincipalID: principal.AccountID,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
