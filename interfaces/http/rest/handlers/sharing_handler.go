package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"keepsake-backend/application/commands"
	"keepsake-backend/application/commands/bus"
	"keepsake-backend/pkg/auth"
	"keepsake-backend/pkg/common"
	pkgerrors "keepsake-backend/pkg/errors"
	"keepsake-backend/pkg/utils"
)

// SharingHandler handles grant and visibility endpoints
type SharingHandler struct {
	commandBus *bus.CommandBus
	logger     *zap.Logger
}

// NewSharingHandler creates a new sharing handler
func NewSharingHandler(commandBus *bus.CommandBus, logger *zap.Logger) *SharingHandler {
	return &SharingHandler{
		commandBus: commandBus,
		logger:     logger,
	}
}

// GrantRequest represents the request body for granting access
type GrantRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Role      string `json:"role" validate:"required,oneof=reader editor"`
}

// GrantAccess handles POST /memories/{memoryID}/grants
func (h *SharingHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	var req GrantRequest
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

	cmd := commands.GrantAccessCommand{
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
		AccountID:   req.AccountID,
		Role:        commands.GrantRole(req.Role),
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.logger.Warn("grant failed",
			zap.String("memory_id", memoryID),
			zap.String("grantee", req.AccountID),
			zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{
		"memory_id":  memoryID,
		"account_id": req.AccountID,
		"role":       req.Role,
	})
}

// RevokeAccess handles DELETE /memories/{memoryID}/grants/{accountID}.
// The role to revoke comes from the "role" query parameter.
func (h *SharingHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}

	role := r.URL.Query().Get("role")
	if role != string(commands.RoleReader) && role != string(commands.RoleEditor) {
		common.RespondError(w, http.StatusBadRequest, string(pkgerrors.ErrorTypeValidation), "role must be reader or editor")
		return
	}

	principal, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, string(pkgerrors.ErrorTypeUnauthorized), "unauthorized")
		return
	}

	cmd := commands.RevokeAccessCommand{
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
		AccountID:   accountID,
		Role:        commands.GrantRole(role),
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetEveryoneRead handles PUT /memories/{memoryID}/everyone-read
func (h *SharingHandler) SetEveryoneRead(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	var req struct {
		Open bool `json:"open"`
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

	cmd := commands.SetEveryoneReadCommand{
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
		Open:        req.Open,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"memory_id": memoryID,
		"open":      req.Open,
	})
}

// SetEveryoneEdit handles PUT /memories/{memoryID}/everyone-edit
func (h *SharingHandler) SetEveryoneEdit(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	var req struct {
		Open bool `json:"open"`
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

	cmd := commands.SetEveryoneEditCommand{
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
		Open:        req.Open,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"memory_id": memoryID,
		"open":      req.Open,
	})
}

// SetVisibility handles PUT /memories/{memoryID}/visibility
func (h *SharingHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	memoryID, ok := pathID(w, r, "memoryID")
	if !ok {
		return
	}

	var req struct {
		Public bool `json:"public"`
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

	cmd := commands.SetVisibilityCommand{
		MemoryID:    memoryID,
		PrincipalID: principal.AccountID,
		Public:      req.Public,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"memory_id": memoryID,
		"public":    req.Public,
	})
}
