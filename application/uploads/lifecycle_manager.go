// Package uploads contains the consumer side of the file upload
// lifecycle. Fragments are created in pending state by a request
// handler; this package reacts to the storage sink's outcome events,
// arbitrarily later and on an unrelated goroutine.
package uploads

import (
	"context"

	"go.uber.org/zap"

	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/events"
	pkgerrors "keepsake-backend/pkg/errors"
)

// MetricsRecorder is the slice of the metrics surface this manager needs
type MetricsRecorder interface {
	RecordUploadOutcome(ctx context.Context, outcome string)
	RecordUploadAnomaly(ctx context.Context, fragmentID string)
}

// LifecycleManager applies upload outcome events to file fragments.
// Transitions run under a lock keyed to the fragment id alone, so
// unrelated uploads never serialize on each other. Duplicate deliveries
// are no-ops; a conflicting outcome after a terminal state is logged
// and counted but never overwrites the recorded result.
type LifecycleManager struct {
	fragments ports.FragmentRepository
	locker    ports.ResourceLocker
	metrics   MetricsRecorder
	logger    *zap.Logger
}

// NewLifecycleManager creates an upload lifecycle manager
func NewLifecycleManager(
	fragments ports.FragmentRepository,
	locker ports.ResourceLocker,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *LifecycleManager {
	return &LifecycleManager{
		fragments: fragments,
		locker:    locker,
		metrics:   metrics,
		logger:    logger,
	}
}

// EventTypes lists the event types this manager subscribes to
func (m *LifecycleManager) EventTypes() []string {
	return []string{events.TypeSaveStarted, events.TypeSaveSucceeded, events.TypeSaveFailed}
}

// HandleEvent implements ports.EventHandler
func (m *LifecycleManager) HandleEvent(ctx context.Context, event events.DomainEvent) error {
	switch e := event.(type) {
	case events.FragmentSaveStarted:
		return m.applyStarted(ctx, e.FragmentID)
	case events.FragmentSaveSucceeded:
		return m.apply(ctx, e.FragmentID, true, "")
	case events.FragmentSaveFailed:
		return m.apply(ctx, e.FragmentID, false, e.Cause)
	default:
		m.logger.Debug("ignoring event", zap.String("event_type", event.GetEventType()))
		return nil
	}
}

// applyStarted moves a pending fragment to uploading. A started marker
// arriving after the outcome, or for a deleted fragment, is dropped;
// terminal states stay untouched.
func (m *LifecycleManager) applyStarted(ctx context.Context, fragmentID valueobjects.FragmentID) error {
	unlock, err := m.locker.LockFragment(ctx, fragmentID)
	if err != nil {
		return err
	}
	defer unlock()

	fragment, err := m.fragments.Load(ctx, fragmentID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	changed, err := fragment.MarkUploading()
	if err != nil || !changed {
		return err
	}

	if err := m.fragments.Save(ctx, fragment); err != nil {
		return pkgerrors.Wrap(err, "persisting upload transition")
	}

	m.logger.Debug("upload started", zap.String("fragment_id", fragmentID.String()))
	return nil
}

func (m *LifecycleManager) apply(ctx context.Context, fragmentID valueobjects.FragmentID, success bool, cause string) error {
	unlock, err := m.locker.LockFragment(ctx, fragmentID)
	if err != nil {
		return err
	}
	defer unlock()

	fragment, err := m.fragments.Load(ctx, fragmentID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			// The fragment was deleted while its upload was in flight.
			m.logger.Info("upload outcome for missing fragment",
				zap.String("fragment_id", fragmentID.String()),
				zap.Bool("success", success))
			return nil
		}
		return err
	}

	var changed, anomaly bool
	outcome := "uploaded"
	if success {
		changed, anomaly = fragment.MarkUploaded()
	} else {
		changed, anomaly = fragment.MarkUploadFailed(cause)
		outcome = "error"
	}

	if anomaly {
		// Terminal states are sticky. A late conflicting report means
		// something upstream double-fired; record it and move on.
		m.logger.Warn("conflicting upload outcome after terminal state",
			zap.String("fragment_id", fragmentID.String()),
			zap.String("recorded_status", string(fragment.File().Status)),
			zap.String("late_outcome", outcome),
			zap.String("cause", cause))
		m.metrics.RecordUploadAnomaly(ctx, fragmentID.String())
		return nil
	}

	if !changed {
		// Duplicate delivery of the same outcome.
		return nil
	}

	if err := m.fragments.Save(ctx, fragment); err != nil {
		return pkgerrors.Wrap(err, "persisting upload transition")
	}

	m.metrics.RecordUploadOutcome(ctx, outcome)
	m.logger.Info("upload transition applied",
		zap.String("fragment_id", fragmentID.String()),
		zap.String("status", outcome))

	return nil
}
