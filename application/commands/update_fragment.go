package commands

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"keepsake-backend/application/commands/bus"
	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/permissions"
	pkgerrors "keepsake-backend/pkg/errors"
)

// UpdateFragmentContentCommand replaces the inline content of a text or
// rich text fragment
type UpdateFragmentContentCommand struct {
	FragmentID  string `json:"fragment_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
	Content     string `json:"content" validate:"required"`
}

// Validate implements bus.Command
func (cmd UpdateFragmentContentCommand) Validate() error {
	if cmd.FragmentID == "" || cmd.PrincipalID == "" {
		return errors.New("fragment and principal IDs are required")
	}
	if cmd.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// UpdateFragmentHandler handles UpdateFragmentContentCommand
type UpdateFragmentHandler struct {
	memories  ports.MemoryRepository
	fragments ports.FragmentRepository
	logger    *zap.Logger
}

// NewUpdateFragmentHandler creates the handler
func NewUpdateFragmentHandler(memories ports.MemoryRepository, fragments ports.FragmentRepository, logger *zap.Logger) *UpdateFragmentHandler {
	return &UpdateFragmentHandler{memories: memories, fragments: fragments, logger: logger}
}

var _ bus.CommandHandler = (*UpdateFragmentHandler)(nil)

// Handle implements bus.CommandHandler
func (h *UpdateFragmentHandler) Handle(ctx context.Context, c bus.Command) error {
	cmd, ok := c.(UpdateFragmentContentCommand)
	if !ok {
		return pkgerrors.NewInternalError("unexpected command type")
	}

	fragmentID, err := valueobjects.NewFragmentIDFromString(cmd.FragmentID)
	if err != nil {
		return pkgerrors.NewValidationError("invalid fragment id")
	}

	fragment, err := h.fragments.Load(ctx, fragmentID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return pkgerrors.NewForbiddenError("")
		}
		return err
	}

	// Fragment permissions resolve through the owning memory.
	if _, _, err := loadAuthorizedMemory(ctx, h.memories, fragment.MemoryID().String(), cmd.PrincipalID, permissions.ActionUpdateFragment); err != nil {
		return err
	}

	if err := fragment.UpdateContent(cmd.Content); err != nil {
		return err
	}

	return h.fragments.Save(ctx, fragment)
}
