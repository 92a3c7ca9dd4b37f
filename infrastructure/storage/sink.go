package storage

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/events"
)

// uploadTimeout bounds a single background transfer. A timeout surfaces
// as an ordinary save failure event.
const uploadTimeout = 5 * time.Minute

// Sink implements ports.FileStorage over any ObjectStore. BeginUpload
// returns as soon as the transfer is enqueued; the outcome reaches the
// upload lifecycle manager later as a save event on the bus.
type Sink struct {
	store     ObjectStore
	publisher ports.EventPublisher
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewSink creates an upload sink
func NewSink(store ObjectStore, publisher ports.EventPublisher, logger *zap.Logger) *Sink {
	return &Sink{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

var _ ports.FileStorage = (*Sink)(nil)

// BeginUpload implements ports.FileStorage. The data reader is consumed
// on a background goroutine; the caller must not reuse it.
func (s *Sink) BeginUpload(
	ctx context.Context,
	fragmentID valueobjects.FragmentID,
	memoryID valueobjects.MemoryID,
	key string,
	data io.Reader,
	size int64,
) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Detached from the request context on purpose: the upload
		// outlives the request that created the fragment.
		uploadCtx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		defer cancel()

		started := events.NewFragmentSaveStarted(fragmentID, memoryID, key, time.Now())
		if err := s.publisher.Publish(uploadCtx, started); err != nil {
			// The started marker is advisory; the transfer proceeds and
			// the terminal outcome still gets reported.
			s.logger.Warn("upload start publish failed",
				zap.String("fragment_id", fragmentID.String()),
				zap.Error(err))
		}

		var evt events.DomainEvent
		if err := s.store.Save(uploadCtx, key, data, size); err != nil {
			s.logger.Warn("upload failed",
				zap.String("fragment_id", fragmentID.String()),
				zap.String("key", key),
				zap.Error(err))
			evt = events.NewFragmentSaveFailed(fragmentID, memoryID, key, err.Error(), time.Now())
		} else {
			evt = events.NewFragmentSaveSucceeded(fragmentID, memoryID, key, time.Now())
		}

		if err := s.publisher.Publish(context.Background(), evt); err != nil {
			s.logger.Error("upload outcome publish failed",
				zap.String("fragment_id", fragmentID.String()),
				zap.Error(err))
		}
	}()
	return nil
}

// Remove implements ports.FileStorage. Removal outcomes are reported on
// the bus for audit but never fail the caller's delete.
func (s *Sink) Remove(ctx context.Context, key string) error {
	var evt events.DomainEvent
	if err := s.store.Remove(ctx, key); err != nil {
		s.logger.Warn("stored object removal failed",
			zap.String("key", key),
			zap.Error(err))
		evt = events.NewFileRemoveFailed(key, err.Error(), time.Now())
	} else {
		evt = events.NewFileRemoveSucceeded(key, time.Now())
	}

	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("removal outcome publish failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return nil
}

// ObjectURL implements ports.FileStorage
func (s *Sink) ObjectURL(key string) string {
	return s.store.ObjectURL(key)
}

// Wait blocks until all in-flight uploads have reported. Used in tests
// and during shutdown.
func (s *Sink) Wait() {
	s.wg.Wait()
}
