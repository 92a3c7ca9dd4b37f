// Package services holds domain services that coordinate multiple
// aggregates. The composition service is where the fragment↔memory
// relation is allowed to change.
package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/events"
	"keepsake-backend/domain/permissions"
	pkgerrors "keepsake-backend/pkg/errors"
)

// CompositionService implements merge, split and shatter. Each
// operation validates completely before touching state, runs under
// per-memory locks, and publishes its outcome events after persisting.
type CompositionService struct {
	memories  ports.MemoryRepository
	fragments ports.FragmentRepository
	locker    ports.ResourceLocker
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewCompositionService creates a composition service
func NewCompositionService(
	memories ports.MemoryRepository,
	fragments ports.FragmentRepository,
	locker ports.ResourceLocker,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *CompositionService {
	return &CompositionService{
		memories:  memories,
		fragments: fragments,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
	}
}

// authorizedMemory loads a memory and checks the action against it.
// A missing memory is reported as forbidden, the same as a denied one,
// so callers cannot probe for the existence of private memories.
func (s *CompositionService) authorizedMemory(
	ctx context.Context,
	id valueobjects.MemoryID,
	principal valueobjects.AccountID,
	action permissions.Action,
) (*entities.Memory, error) {
	m, err := s.memories.Load(ctx, id)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewForbiddenError("")
		}
		return nil, err
	}

	if !permissions.Decide(principal, action, permissions.ResourceFromMemory(m)).Allowed() {
		return nil, pkgerrors.NewForbiddenError("")
	}
	return m, nil
}

// Merge reassigns every fragment of source to target, appended after
// target's existing fragments in their existing relative order, then
// deletes source. Requires editor or owner rights on both memories.
func (s *CompositionService) Merge(
	ctx context.Context,
	targetID, sourceID valueobjects.MemoryID,
	principal valueobjects.AccountID,
) (*entities.Memory, error) {
	if targetID.Equals(sourceID) {
		return nil, pkgerrors.NewValidationError("cannot merge a memory with itself")
	}

	unlock, err := s.locker.LockMemoryPair(ctx, targetID, sourceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	target, err := s.authorizedMemory(ctx, targetID, principal, permissions.ActionUpdateMemoryMetadata)
	if err != nil {
		return nil, err
	}
	source, err := s.authorizedMemory(ctx, sourceID, principal, permissions.ActionUpdateMemoryMetadata)
	if err != nil {
		return nil, err
	}

	movedIDs := source.FragmentIDs()
	moved := make([]*entities.Fragment, 0, len(movedIDs))
	for _, fid := range movedIDs {
		f, err := s.fragments.Load(ctx, fid)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "merge: loading source fragment")
		}
		moved = append(moved, f)
	}

	// Validation is done; mutate in memory, then persist.
	for _, f := range moved {
		if err := f.MoveTo(targetID); err != nil {
			return nil, err
		}
		if err := target.AttachFragment(f.ID()); err != nil {
			return nil, err
		}
	}

	if err := s.fragments.SaveAll(ctx, moved); err != nil {
		return nil, err
	}
	if err := s.memories.Save(ctx, target); err != nil {
		return nil, err
	}
	if err := s.memories.Delete(ctx, sourceID); err != nil {
		return nil, err
	}

	target.MarkEventsAsCommitted()

	evt := events.NewMemoriesMerged(targetID, sourceID, movedIDs, time.Now())
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("merge event publish failed",
			zap.String("target_id", targetID.String()),
			zap.Error(err))
	}

	s.logger.Info("memories merged",
		zap.String("target_id", targetID.String()),
		zap.String("source_id", sourceID.String()),
		zap.Int("moved_fragments", len(movedIDs)))

	return target, nil
}

// Split moves the chosen fragments out of source into a brand new
// memory. The new memory belongs to the source's owner and starts
// private with no grants and no tags, whoever the acting principal is.
func (s *CompositionService) Split(
	ctx context.Context,
	sourceID valueobjects.MemoryID,
	fragmentIDs []valueobjects.FragmentID,
	principal valueobjects.AccountID,
) (*entities.Memory, error) {
	if len(fragmentIDs) == 0 {
		return nil, pkgerrors.NewValidationError("split requires at least one fragment")
	}

	unlock, err := s.locker.LockMemory(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	source, err := s.authorizedMemory(ctx, sourceID, principal, permissions.ActionUpdateMemoryMetadata)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(fragmentIDs))
	for _, fid := range fragmentIDs {
		if seen[fid.String()] {
			return nil, pkgerrors.NewValidationError("split set contains duplicate fragments")
		}
		seen[fid.String()] = true
		if !source.ContainsFragment(fid) {
			return nil, pkgerrors.NewValidationError("split set references a fragment outside the memory")
		}
	}

	newMemory, fragments, err := s.carveOut(ctx, source, fragmentIDs)
	if err != nil {
		return nil, err
	}

	if err := s.persistSplit(ctx, source, []*entities.Memory{newMemory}, fragments); err != nil {
		return nil, err
	}

	evt := events.NewMemorySplit(sourceID, newMemory.ID(), fragmentIDs, time.Now())
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("split event publish failed",
			zap.String("source_id", sourceID.String()),
			zap.Error(err))
	}

	s.logger.Info("memory split",
		zap.String("source_id", sourceID.String()),
		zap.String("new_memory_id", newMemory.ID().String()),
		zap.Int("moved_fragments", len(fragmentIDs)))

	return newMemory, nil
}

// Shatter splits every fragment of the memory into its own singleton
// memory. Shattering an empty memory succeeds and produces nothing.
func (s *CompositionService) Shatter(
	ctx context.Context,
	sourceID valueobjects.MemoryID,
	principal valueobjects.AccountID,
) ([]*entities.Memory, error) {
	unlock, err := s.locker.LockMemory(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	source, err := s.authorizedMemory(ctx, sourceID, principal, permissions.ActionUpdateMemoryMetadata)
	if err != nil {
		return nil, err
	}

	fragmentIDs := source.FragmentIDs()
	if len(fragmentIDs) == 0 {
		return []*entities.Memory{}, nil
	}

	newMemories := make([]*entities.Memory, 0, len(fragmentIDs))
	var movedAll []*entities.Fragment
	newIDs := make([]valueobjects.MemoryID, 0, len(fragmentIDs))

	for _, fid := range fragmentIDs {
		m, moved, err := s.carveOut(ctx, source, []valueobjects.FragmentID{fid})
		if err != nil {
			return nil, err
		}
		newMemories = append(newMemories, m)
		movedAll = append(movedAll, moved...)
		newIDs = append(newIDs, m.ID())
	}

	if err := s.persistSplit(ctx, source, newMemories, movedAll); err != nil {
		return nil, err
	}

	evt := events.NewMemoryShattered(sourceID, newIDs, time.Now())
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("shatter event publish failed",
			zap.String("source_id", sourceID.String()),
			zap.Error(err))
	}

	s.logger.Info("memory shattered",
		zap.String("source_id", sourceID.String()),
		zap.Int("new_memories", len(newMemories)))

	return newMemories, nil
}

// carveOut builds a new private memory for the source's owner and moves
// the given fragments into it, mutating source and the fragments in
// memory only. Persisting is the caller's job.
func (s *CompositionService) carveOut(
	ctx context.Context,
	source *entities.Memory,
	fragmentIDs []valueobjects.FragmentID,
) (*entities.Memory, []*entities.Fragment, error) {
	newMemory, err := entities.NewMemory(source.OwnerID(), source.Title())
	if err != nil {
		return nil, nil, err
	}

	moved := make([]*entities.Fragment, 0, len(fragmentIDs))
	for _, fid := range fragmentIDs {
		f, err := s.fragments.Load(ctx, fid)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(err, "split: loading fragment")
		}
		if err := f.MoveTo(newMemory.ID()); err != nil {
			return nil, nil, err
		}
		if err := source.DetachFragment(fid); err != nil {
			return nil, nil, err
		}
		if err := newMemory.AttachFragment(fid); err != nil {
			return nil, nil, err
		}
		moved = append(moved, f)
	}

	return newMemory, moved, nil
}

func (s *CompositionService) persistSplit(
	ctx context.Context,
	source *entities.Memory,
	newMemories []*entities.Memory,
	fragments []*entities.Fragment,
) error {
	if err := s.fragments.SaveAll(ctx, fragments); err != nil {
		return err
	}
	for _, m := range newMemories {
		if err := s.memories.Save(ctx, m); err != nil {
			return err
		}
		m.MarkEventsAsCommitted()
	}
	if err := s.memories.Save(ctx, source); err != nil {
		return err
	}
	source.MarkEventsAsCommitted()
	return nil
}
