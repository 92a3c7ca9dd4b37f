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

// UpdateMemoryMetadataCommand updates title, tags, draft flag and
// fragment order. Nil fields are left untouched.
type UpdateMemoryMetadataCommand struct {
	MemoryID    string    `json:"memory_id" validate:"required,uuid"`
	PrincipalID string    `json:"principal_id" validate:"required,uuid"`
	Title       *string   `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Tags        *[]string `json:"tags,omitempty" validate:"omitempty,max=20,dive,min=1,max=50"`
	Draft       *bool     `json:"draft,omitempty"`
	Order       []string  `json:"order,omitempty" validate:"omitempty,dive,uuid"`
}

// Validate implements bus.Command
func (cmd UpdateMemoryMetadataCommand) Validate() error {
	if cmd.MemoryID == "" || cmd.PrincipalID == "" {
		return errors.New("memory and principal IDs are required")
	}
	if cmd.Title == nil && cmd.Tags == nil && cmd.Draft == nil && cmd.Order == nil {
		return errors.New("nothing to update")
	}
	if cmd.Title != nil && *cmd.Title == "" {
		return errors.New("title cannot be empty")
	}
	return nil
}

// PinMemoryCommand pins or unpins a memory for the principal. Pinning
// needs read visibility only; it is the principal's own state.
type PinMemoryCommand struct {
	MemoryID    string `json:"memory_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
	Pinned      bool   `json:"pinned"`
}

// Validate implements bus.Command
func (cmd PinMemoryCommand) Validate() error {
	if cmd.MemoryID == "" || cmd.PrincipalID == "" {
		return errors.New("memory and principal IDs are required")
	}
	return nil
}

// UpdateMemoryHandler handles metadata and pin commands
type UpdateMemoryHandler struct {
	memories ports.MemoryRepository
	logger   *zap.Logger
}

// NewUpdateMemoryHandler creates the handler
func NewUpdateMemoryHandler(memories ports.MemoryRepository, logger *zap.Logger) *UpdateMemoryHandler {
	return &UpdateMemoryHandler{memories: memories, logger: logger}
}

var _ bus.CommandHandler = (*UpdateMemoryHandler)(nil)

// Handle implements bus.CommandHandler
func (h *UpdateMemoryHandler) Handle(ctx context.Context, c bus.Command) error {
	switch cmd := c.(type) {
	case UpdateMemoryMetadataCommand:
		return h.updateMetadata(ctx, cmd)
	case PinMemoryCommand:
		return h.pin(ctx, cmd)
	default:
		return pkgerrors.NewInternalError("unexpected command type")
	}
}

func (h *UpdateMemoryHandler) updateMetadata(ctx context.Context, cmd UpdateMemoryMetadataCommand) error {
	memory, _, err := loadAuthorizedMemory(ctx, h.memories, cmd.MemoryID, cmd.PrincipalID, permissions.ActionUpdateMemoryMetadata)
	if err != nil {
		return err
	}

	if cmd.Title != nil {
		if err := memory.SetTitle(*cmd.Title); err != nil {
			return err
		}
	}
	if cmd.Tags != nil {
		memory.SetTags(*cmd.Tags)
	}
	if cmd.Draft != nil {
		memory.SetDraft(*cmd.Draft)
	}
	if cmd.Order != nil {
		order := make([]valueobjects.FragmentID, 0, len(cmd.Order))
		for _, s := range cmd.Order {
			fid, err := valueobjects.NewFragmentIDFromString(s)
			if err != nil {
				return pkgerrors.NewValidationError("invalid fragment id in order")
			}
			order = append(order, fid)
		}
		if err := memory.Reorder(order); err != nil {
			return err
		}
	}

	return h.memories.Save(ctx, memory)
}

func (h *UpdateMemoryHandler) pin(ctx context.Context, cmd PinMemoryCommand) error {
	memory, principal, err := loadAuthorizedMemory(ctx, h.memories, cmd.MemoryID, cmd.PrincipalID, permissions.ActionReadMemory)
	if err != nil {
		return err
	}

	if cmd.Pinned {
		if err := memory.PinFor(principal); err != nil {
			return err
		}
	} else {
		memory.UnpinFor(principal)
	}

	return h.memories.Save(ctx, memory)
}
