package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"keepsake-backend/application/commands/bus"
	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/permissions"
	pkgerrors "keepsake-backend/pkg/errors"
)

// AddTextFragmentCommand appends a text or rich text fragment to a memory
type AddTextFragmentCommand struct {
	FragmentID  string `json:"fragment_id" validate:"required,uuid"`
	MemoryID    string `json:"memory_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
	Kind        string `json:"kind" validate:"required,oneof=text rich_text"`
	Content     string `json:"content" validate:"required"`
}

// Validate implements bus.Command
func (cmd AddTextFragmentCommand) Validate() error {
	if cmd.FragmentID == "" || cmd.MemoryID == "" || cmd.PrincipalID == "" {
		return errors.New("fragment, memory and principal IDs are required")
	}
	if cmd.Kind != string(entities.KindText) && cmd.Kind != string(entities.KindRichText) {
		return errors.New("kind must be text or rich_text")
	}
	if cmd.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// AddFileFragmentCommand appends a file fragment in pending state and
// kicks off the background upload
type AddFileFragmentCommand struct {
	FragmentID  string `json:"fragment_id" validate:"required,uuid"`
	MemoryID    string `json:"memory_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
	FileName    string `json:"file_name" validate:"required,max=255"`
	MediaType   string `json:"media_type" validate:"required,oneof=audio image video other"`
	Data        []byte `json:"-"`
}

// Validate implements bus.Command
func (cmd AddFileFragmentCommand) Validate() error {
	if cmd.FragmentID == "" || cmd.MemoryID == "" || cmd.PrincipalID == "" {
		return errors.New("fragment, memory and principal IDs are required")
	}
	if cmd.FileName == "" {
		return errors.New("file name is required")
	}
	if len(cmd.Data) == 0 {
		return errors.New("file data is required")
	}
	if len(cmd.Data) > entities.MaxFileSizeBytes {
		return errors.New("file exceeds the 50MB upload limit")
	}
	return nil
}

// AddFragmentHandler handles both fragment-creation commands. Attaching
// writes the memory's membership list, so it joins the same per-memory
// lock discipline the composition service uses.
type AddFragmentHandler struct {
	memories  ports.MemoryRepository
	fragments ports.FragmentRepository
	storage   ports.FileStorage
	locker    ports.ResourceLocker
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewAddFragmentHandler creates the handler
func NewAddFragmentHandler(
	memories ports.MemoryRepository,
	fragments ports.FragmentRepository,
	storage ports.FileStorage,
	locker ports.ResourceLocker,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *AddFragmentHandler {
	return &AddFragmentHandler{
		memories:  memories,
		fragments: fragments,
		storage:   storage,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
	}
}

var _ bus.CommandHandler = (*AddFragmentHandler)(nil)

// Handle implements bus.CommandHandler
func (h *AddFragmentHandler) Handle(ctx context.Context, c bus.Command) error {
	switch cmd := c.(type) {
	case AddTextFragmentCommand:
		return h.addText(ctx, cmd)
	case AddFileFragmentCommand:
		return h.addFile(ctx, cmd)
	default:
		return pkgerrors.NewInternalError("unexpected command type")
	}
}

func (h *AddFragmentHandler) addText(ctx context.Context, cmd AddTextFragmentCommand) error {
	memory, unlock, err := h.lockAndAuthorize(ctx, cmd.MemoryID, cmd.PrincipalID)
	if err != nil {
		return err
	}
	defer unlock()

	fragmentID, err := valueobjects.NewFragmentIDFromString(cmd.FragmentID)
	if err != nil {
		return pkgerrors.NewValidationError("invalid fragment id")
	}

	fragment, err := entities.NewInlineFragmentWithID(fragmentID, memory.ID(), entities.FragmentKind(cmd.Kind), cmd.Content)
	if err != nil {
		return err
	}

	return h.attachAndSave(ctx, memory, fragment)
}

func (h *AddFragmentHandler) addFile(ctx context.Context, cmd AddFileFragmentCommand) error {
	memory, unlock, err := h.lockAndAuthorize(ctx, cmd.MemoryID, cmd.PrincipalID)
	if err != nil {
		return err
	}
	defer unlock()

	fragmentID, err := valueobjects.NewFragmentIDFromString(cmd.FragmentID)
	if err != nil {
		return pkgerrors.NewValidationError("invalid fragment id")
	}

	// Key and URL are fixed before any bytes move, so the fragment is
	// fully addressable while still pending.
	key := StorageKey(memory.ID(), fragmentID, cmd.FileName)
	url := h.storage.ObjectURL(key)

	fragment, err := entities.NewFileFragmentWithID(
		fragmentID, memory.ID(),
		cmd.FileName, cmd.MediaType,
		key, url, int64(len(cmd.Data)),
	)
	if err != nil {
		return err
	}

	if err := h.attachAndSave(ctx, memory, fragment); err != nil {
		return err
	}

	// Fire and forget; the outcome comes back through the event bus and
	// the upload lifecycle manager.
	if err := h.storage.BeginUpload(ctx, fragmentID, memory.ID(), key, bytes.NewReader(cmd.Data), int64(len(cmd.Data))); err != nil {
		h.logger.Error("failed to enqueue upload",
			zap.String("fragment_id", fragmentID.String()),
			zap.Error(err))
		return pkgerrors.Wrap(err, "enqueueing upload")
	}

	return nil
}

// lockAndAuthorize takes the per-memory lock, then loads and gates the
// memory under it. Membership must never be read before the lock: a
// composition committing in between moves fragments, and a save off the
// earlier snapshot would silently undo it.
func (h *AddFragmentHandler) lockAndAuthorize(ctx context.Context, memoryID, principalID string) (*entities.Memory, ports.UnlockFunc, error) {
	mid, err := valueobjects.NewMemoryIDFromString(memoryID)
	if err != nil {
		return nil, nil, pkgerrors.NewValidationError("invalid memory id")
	}

	unlock, err := h.locker.LockMemory(ctx, mid)
	if err != nil {
		return nil, nil, err
	}

	memory, _, err := loadAuthorizedMemory(ctx, h.memories, memoryID, principalID, permissions.ActionAddFragment)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return memory, unlock, nil
}

func (h *AddFragmentHandler) attachAndSave(ctx context.Context, memory *entities.Memory, fragment *entities.Fragment) error {
	if err := memory.AttachFragment(fragment.ID()); err != nil {
		return err
	}

	if err := h.fragments.Save(ctx, fragment); err != nil {
		return err
	}
	if err := h.memories.Save(ctx, memory); err != nil {
		return err
	}

	if err := h.publisher.Publish(ctx, fragment.GetUncommittedEvents()...); err != nil {
		h.logger.Warn("fragment added event publish failed",
			zap.String("fragment_id", fragment.ID().String()),
			zap.Error(err))
	}
	fragment.MarkEventsAsCommitted()
	memory.MarkEventsAsCommitted()

	return nil
}

// StorageKey derives the object storage key for a file fragment
func StorageKey(memoryID valueobjects.MemoryID, fragmentID valueobjects.FragmentID, fileName string) string {
	return fmt.Sprintf("%s/%s/%s", memoryID.String(), fragmentID.String(), fileName)
}
