// Package commands holds the write-side operations. Every handler
// authorizes through the permission engine before touching state; a
// missing resource is reported as forbidden unless the principal could
// already read it, so private memories stay unprobeable.
package commands

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"keepsake-backend/application/commands/bus"
	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/permissions"
	pkgerrors "keepsake-backend/pkg/errors"
)

// CreateMemoryCommand creates a new memory under the principal's account
type CreateMemoryCommand struct {
	MemoryID    string   `json:"memory_id" validate:"required,uuid"`
	PrincipalID string   `json:"principal_id" validate:"required,uuid"`
	OwnerID     string   `json:"owner_id" validate:"required,uuid"`
	Title       string   `json:"title" validate:"required,min=1,max=200"`
	Draft       bool     `json:"draft"`
	Tags        []string `json:"tags" validate:"max=20,dive,min=1,max=50"`
}

// Validate implements bus.Command
func (cmd CreateMemoryCommand) Validate() error {
	if cmd.MemoryID == "" {
		return errors.New("memory ID is required")
	}
	if cmd.PrincipalID == "" {
		return errors.New("principal ID is required")
	}
	if cmd.Title == "" {
		return errors.New("title is required")
	}
	return nil
}

// CreateMemoryHandler handles CreateMemoryCommand
type CreateMemoryHandler struct {
	memories  ports.MemoryRepository
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewCreateMemoryHandler creates the handler
func NewCreateMemoryHandler(memories ports.MemoryRepository, publisher ports.EventPublisher, logger *zap.Logger) *CreateMemoryHandler {
	return &CreateMemoryHandler{memories: memories, publisher: publisher, logger: logger}
}

var _ bus.CommandHandler = (*CreateMemoryHandler)(nil)

// Handle implements bus.CommandHandler
func (h *CreateMemoryHandler) Handle(ctx context.Context, c bus.Command) error {
	cmd, ok := c.(CreateMemoryCommand)
	if !ok {
		return pkgerrors.NewInternalError("unexpected command type")
	}

	memoryID, err := valueobjects.NewMemoryIDFromString(cmd.MemoryID)
	if err != nil {
		return pkgerrors.NewValidationError("invalid memory id")
	}
	principal, err := valueobjects.NewAccountIDFromString(cmd.PrincipalID)
	if err != nil {
		return pkgerrors.NewValidationError("invalid principal id")
	}
	owner, err := valueobjects.NewAccountIDFromString(cmd.OwnerID)
	if err != nil {
		return pkgerrors.NewValidationError("invalid owner id")
	}

	// No cross-account creation.
	if !permissions.Decide(principal, permissions.ActionCreateMemory, permissions.Resource{Owner: owner}).Allowed() {
		return pkgerrors.NewForbiddenError("memories can only be created under your own account")
	}

	memory, err := entities.NewMemoryWithID(memoryID, owner, cmd.Title)
	if err != nil {
		return err
	}
	memory.SetDraft(cmd.Draft)
	if len(cmd.Tags) > 0 {
		memory.SetTags(cmd.Tags)
	}

	if err := h.memories.Save(ctx, memory); err != nil {
		return err
	}

	if err := h.publisher.Publish(ctx, memory.GetUncommittedEvents()...); err != nil {
		h.logger.Warn("memory created event publish failed",
			zap.String("memory_id", memoryID.String()),
			zap.Error(err))
	}
	memory.MarkEventsAsCommitted()

	return nil
}
