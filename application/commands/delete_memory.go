package commands

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"keepsake-backend/application/commands/bus"
	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/events"
	"keepsake-backend/domain/permissions"
	pkgerrors "keepsake-backend/pkg/errors"
)

// DeleteMemoryCommand destroys a memory and every fragment it holds.
// Owner-only. Each fragment is deleted explicitly so the cascade stays
// auditable instead of hiding in the storage layer.
type DeleteMemoryCommand struct {
	MemoryID    string `json:"memory_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
}

// Validate implements bus.Command
func (cmd DeleteMemoryCommand) Validate() error {
	if cmd.MemoryID == "" || cmd.PrincipalID == "" {
		return errors.New("memory and principal IDs are required")
	}
	return nil
}

// DeleteMemoryHandler handles DeleteMemoryCommand
type DeleteMemoryHandler struct {
	memories  ports.MemoryRepository
	fragments ports.FragmentRepository
	storage   ports.FileStorage
	locker    ports.ResourceLocker
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewDeleteMemoryHandler creates the handler
func NewDeleteMemoryHandler(
	memories ports.MemoryRepository,
	fragments ports.FragmentRepository,
	storage ports.FileStorage,
	locker ports.ResourceLocker,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *DeleteMemoryHandler {
	return &DeleteMemoryHandler{
		memories:  memories,
		fragments: fragments,
		storage:   storage,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
	}
}

var _ bus.CommandHandler = (*DeleteMemoryHandler)(nil)

// Handle implements bus.CommandHandler
func (h *DeleteMemoryHandler) Handle(ctx context.Context, c bus.Command) error {
	cmd, ok := c.(DeleteMemoryCommand)
	if !ok {
		return pkgerrors.NewInternalError("unexpected command type")
	}

	mid, err := valueobjects.NewMemoryIDFromString(cmd.MemoryID)
	if err != nil {
		return pkgerrors.NewValidationError("invalid memory id")
	}

	unlock, err := h.locker.LockMemory(ctx, mid)
	if err != nil {
		return err
	}
	defer unlock()

	// Loaded under the lock: a composition committed in between would
	// have re-parented fragments, and cascading off an earlier snapshot
	// would destroy them under their new memory.
	memory, _, err := loadAuthorizedMemory(ctx, h.memories, cmd.MemoryID, cmd.PrincipalID, permissions.ActionDeleteMemory)
	if err != nil {
		return err
	}

	fragmentIDs := memory.FragmentIDs()
	for _, fid := range fragmentIDs {
		fragment, err := h.fragments.Load(ctx, fid)
		if err != nil {
			if pkgerrors.IsNotFound(err) {
				continue
			}
			return err
		}
		if err := h.fragments.Delete(ctx, fid); err != nil {
			return err
		}
		removeStoredFile(ctx, h.storage, fragment, h.logger)
	}

	if err := h.memories.Delete(ctx, memory.ID()); err != nil {
		return err
	}

	evt := events.NewMemoryDeleted(memory.ID(), memory.OwnerID(), fragmentIDs, time.Now())
	if err := h.publisher.Publish(ctx, evt); err != nil {
		h.logger.Warn("memory deleted event publish failed",
			zap.String("memory_id", memory.ID().String()),
			zap.Error(err))
	}

	h.logger.Info("memory deleted",
		zap.String("memory_id", memory.ID().String()),
		zap.Int("fragments", len(fragmentIDs)))

	return nil
}
