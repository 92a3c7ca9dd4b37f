package commands

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"keepsake-backend/application/commands/bus"
	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/events"
	"keepsake-backend/domain/permissions"
	pkgerrors "keepsake-backend/pkg/errors"
)

// DeleteFragmentCommand destroys a fragment and its stored file, if any.
// Owner-only; editors may never delete.
type DeleteFragmentCommand struct {
	FragmentID  string `json:"fragment_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
}

// Validate implements bus.Command
func (cmd DeleteFragmentCommand) Validate() error {
	if cmd.FragmentID == "" || cmd.PrincipalID == "" {
		return errors.New("fragment and principal IDs are required")
	}
	return nil
}

// DeleteFragmentsCommand destroys a set of fragments belonging to one
// memory. Authorization happens once against the memory; every listed
// fragment must be attached to it.
type DeleteFragmentsCommand struct {
	MemoryID    string   `json:"memory_id" validate:"required,uuid"`
	FragmentIDs []string `json:"fragment_ids" validate:"required,min=1,dive,uuid"`
	PrincipalID string   `json:"principal_id" validate:"required,uuid"`
}

// Validate implements bus.Command
func (cmd DeleteFragmentsCommand) Validate() error {
	if cmd.MemoryID == "" || cmd.PrincipalID == "" {
		return errors.New("memory and principal IDs are required")
	}
	if len(cmd.FragmentIDs) == 0 {
		return errors.New("at least one fragment ID is required")
	}
	return nil
}

// DeleteFragmentHandler handles both fragment-deletion commands.
// Detaching writes the memory's membership list, so deletes run under
// the same per-memory lock the composition service takes.
type DeleteFragmentHandler struct {
	memories  ports.MemoryRepository
	fragments ports.FragmentRepository
	storage   ports.FileStorage
	locker    ports.ResourceLocker
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewDeleteFragmentHandler creates the handler
func NewDeleteFragmentHandler(
	memories ports.MemoryRepository,
	fragments ports.FragmentRepository,
	storage ports.FileStorage,
	locker ports.ResourceLocker,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *DeleteFragmentHandler {
	return &DeleteFragmentHandler{
		memories:  memories,
		fragments: fragments,
		storage:   storage,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
	}
}

var _ bus.CommandHandler = (*DeleteFragmentHandler)(nil)

// Handle implements bus.CommandHandler
func (h *DeleteFragmentHandler) Handle(ctx context.Context, c bus.Command) error {
	switch cmd := c.(type) {
	case DeleteFragmentCommand:
		return h.deleteOne(ctx, cmd)
	case DeleteFragmentsCommand:
		return h.deleteMany(ctx, cmd)
	default:
		return pkgerrors.NewInternalError("unexpected command type")
	}
}

func (h *DeleteFragmentHandler) deleteOne(ctx context.Context, cmd DeleteFragmentCommand) error {
	fragmentID, err := valueobjects.NewFragmentIDFromString(cmd.FragmentID)
	if err != nil {
		return pkgerrors.NewValidationError("invalid fragment id")
	}

	// First load only finds the owning memory; the lock is keyed on it,
	// so membership is re-read once the lock is held.
	fragment, err := h.fragments.Load(ctx, fragmentID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return pkgerrors.NewForbiddenError("")
		}
		return err
	}
	lockedID := fragment.MemoryID()

	unlock, err := h.locker.LockMemory(ctx, lockedID)
	if err != nil {
		return err
	}
	defer unlock()

	fragment, err = h.fragments.Load(ctx, fragmentID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return pkgerrors.NewForbiddenError("")
		}
		return err
	}
	if !fragment.MemoryID().Equals(lockedID) {
		// A composition re-parented it between the peek and the lock.
		return pkgerrors.NewConflictError("fragment was moved concurrently, retry")
	}

	memory, _, err := loadAuthorizedMemory(ctx, h.memories, lockedID.String(), cmd.PrincipalID, permissions.ActionDeleteFragment)
	if err != nil {
		return err
	}

	if err := memory.DetachFragment(fragmentID); err != nil {
		return err
	}
	if err := h.fragments.Delete(ctx, fragmentID); err != nil {
		return err
	}
	if err := h.memories.Save(ctx, memory); err != nil {
		return err
	}

	// The record is gone; stored bytes are cleaned up best-effort.
	removeStoredFile(ctx, h.storage, fragment, h.logger)

	evt := events.NewFragmentDeleted(fragmentID, memory.ID(), time.Now())
	if err := h.publisher.Publish(ctx, evt); err != nil {
		h.logger.Warn("fragment deleted event publish failed",
			zap.String("fragment_id", fragmentID.String()),
			zap.Error(err))
	}

	return nil
}

func (h *DeleteFragmentHandler) deleteMany(ctx context.Context, cmd DeleteFragmentsCommand) error {
	mid, err := valueobjects.NewMemoryIDFromString(cmd.MemoryID)
	if err != nil {
		return pkgerrors.NewValidationError("invalid memory id")
	}

	unlock, err := h.locker.LockMemory(ctx, mid)
	if err != nil {
		return err
	}
	defer unlock()

	memory, _, err := loadAuthorizedMemory(ctx, h.memories, cmd.MemoryID, cmd.PrincipalID, permissions.ActionDeleteFragment)
	if err != nil {
		return err
	}

	// Resolve the whole batch before touching anything so a bad entry
	// rejects the request instead of leaving it half applied.
	ids := make([]valueobjects.FragmentID, 0, len(cmd.FragmentIDs))
	for _, raw := range cmd.FragmentIDs {
		fragmentID, err := valueobjects.NewFragmentIDFromString(raw)
		if err != nil {
			return pkgerrors.NewValidationError("invalid fragment id")
		}
		if !memory.ContainsFragment(fragmentID) {
			return pkgerrors.NewNotFoundError("fragment not found")
		}
		ids = append(ids, fragmentID)
	}

	fragments := make([]*entities.Fragment, 0, len(ids))
	for _, fragmentID := range ids {
		fragment, err := h.fragments.Load(ctx, fragmentID)
		if err != nil {
			return err
		}
		fragments = append(fragments, fragment)
	}

	for _, fragmentID := range ids {
		if err := memory.DetachFragment(fragmentID); err != nil {
			return err
		}
		if err := h.fragments.Delete(ctx, fragmentID); err != nil {
			return err
		}
	}
	if err := h.memories.Save(ctx, memory); err != nil {
		return err
	}

	now := time.Now()
	for _, fragment := range fragments {
		removeStoredFile(ctx, h.storage, fragment, h.logger)

		evt := events.NewFragmentDeleted(fragment.ID(), memory.ID(), now)
		if err := h.publisher.Publish(ctx, evt); err != nil {
			h.logger.Warn("fragment deleted event publish failed",
				zap.String("fragment_id", fragment.ID().String()),
				zap.Error(err))
		}
	}

	return nil
}

// removeStoredFile is shared with memory deletion, which destroys every
// fragment explicitly rather than relying on an implicit cascade.
func removeStoredFile(ctx context.Context, storage ports.FileStorage, fragment *entities.Fragment, logger *zap.Logger) {
	file := fragment.File()
	if file == nil {
		return
	}
	if err := storage.Remove(ctx, file.Key); err != nil {
		logger.Warn("stored file cleanup failed",
			zap.String("key", file.Key),
			zap.Error(err))
	}
}
