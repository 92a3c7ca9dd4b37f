package uploads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/events"
	memstore "keepsake-backend/infrastructure/persistence/memory"
)

type recordedMetrics struct {
	outcomes  []string
	anomalies []string
}

func (r *recordedMetrics) RecordUploadOutcome(_ context.Context, outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordedMetrics) RecordUploadAnomaly(_ context.Context, fragmentID string) {
	r.anomalies = append(r.anomalies, fragmentID)
}

func setup(t *testing.T) (*LifecycleManager, *memstore.FragmentRepository, *recordedMetrics, *entities.Fragment) {
	t.Helper()

	fragments := memstore.NewFragmentRepository()
	metrics := &recordedMetrics{}
	manager := NewLifecycleManager(fragments, memstore.NewKeyedLocker(), metrics, zap.NewNop())

	fragment, err := entities.NewFileFragment(
		valueobjects.NewMemoryID(), "photo.jpg", "image", "mid/fid/photo.jpg", "http://localhost/photo.jpg", 1024)
	require.NoError(t, err)
	require.NoError(t, fragments.Save(context.Background(), fragment))

	return manager, fragments, metrics, fragment
}

func succeeded(f *entities.Fragment) events.FragmentSaveSucceeded {
	return events.NewFragmentSaveSucceeded(f.ID(), f.MemoryID(), f.File().Key, time.Now())
}

func failed(f *entities.Fragment, cause string) events.FragmentSaveFailed {
	return events.NewFragmentSaveFailed(f.ID(), f.MemoryID(), f.File().Key, cause, time.Now())
}

func started(f *entities.Fragment) events.FragmentSaveStarted {
	return events.NewFragmentSaveStarted(f.ID(), f.MemoryID(), f.File().Key, time.Now())
}

func TestHandleEvent_StartedMovesPendingToUploading(t *testing.T) {
	manager, fragments, metrics, fragment := setup(t)
	ctx := context.Background()

	require.NoError(t, manager.HandleEvent(ctx, started(fragment)))

	stored, err := fragments.Load(ctx, fragment.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusUploading, stored.File().Status)
	assert.Empty(t, metrics.outcomes)

	require.NoError(t, manager.HandleEvent(ctx, succeeded(fragment)))
	stored, err = fragments.Load(ctx, fragment.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusUploaded, stored.File().Status)
}

func TestHandleEvent_LateStartedMarkerKeepsTerminalState(t *testing.T) {
	manager, fragments, metrics, fragment := setup(t)
	ctx := context.Background()

	require.NoError(t, manager.HandleEvent(ctx, succeeded(fragment)))
	require.NoError(t, manager.HandleEvent(ctx, started(fragment)))

	stored, err := fragments.Load(ctx, fragment.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusUploaded, stored.File().Status)
	assert.Empty(t, metrics.anomalies, "a late start marker is not a conflicting outcome")
}

func TestHandleEvent_Success(t *testing.T) {
	manager, fragments, metrics, fragment := setup(t)
	ctx := context.Background()

	require.NoError(t, manager.HandleEvent(ctx, succeeded(fragment)))

	stored, err := fragments.Load(ctx, fragment.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusUploaded, stored.File().Status)
	assert.Equal(t, []string{"uploaded"}, metrics.outcomes)
	assert.Empty(t, metrics.anomalies)
}

func TestHandleEvent_Failure(t *testing.T) {
	manager, fragments, metrics, fragment := setup(t)
	ctx := context.Background()

	require.NoError(t, manager.HandleEvent(ctx, failed(fragment, "bucket unreachable")))

	stored, err := fragments.Load(ctx, fragment.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusError, stored.File().Status)
	assert.Equal(t, "bucket unreachable", stored.File().FailCause)
	assert.Equal(t, []string{"error"}, metrics.outcomes)
}

func TestHandleEvent_DuplicateDeliveryIsNoOp(t *testing.T) {
	manager, fragments, metrics, fragment := setup(t)
	ctx := context.Background()

	require.NoError(t, manager.HandleEvent(ctx, succeeded(fragment)))
	before, err := fragments.Load(ctx, fragment.ID())
	require.NoError(t, err)

	require.NoError(t, manager.HandleEvent(ctx, succeeded(fragment)))

	after, err := fragments.Load(ctx, fragment.ID())
	require.NoError(t, err)
	assert.Equal(t, before.Version(), after.Version(), "duplicate must not touch the fragment")
	assert.Equal(t, []string{"uploaded"}, metrics.outcomes, "outcome counted once")
	assert.Empty(t, metrics.anomalies)
}

func TestHandleEvent_ConflictingOutcomeIsStickyAnomaly(t *testing.T) {
	manager, fragments, metrics, fragment := setup(t)
	ctx := context.Background()

	require.NoError(t, manager.HandleEvent(ctx, succeeded(fragment)))
	require.NoError(t, manager.HandleEvent(ctx, failed(fragment, "late failure report")))

	stored, err := fragments.Load(ctx, fragment.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusUploaded, stored.File().Status, "first terminal state wins")
	assert.Empty(t, stored.File().FailCause)
	assert.Equal(t, []string{fragment.ID().String()}, metrics.anomalies)
	assert.Equal(t, []string{"uploaded"}, metrics.outcomes)
}

func TestHandleEvent_FailureThenSuccessAnomaly(t *testing.T) {
	manager, fragments, metrics, fragment := setup(t)
	ctx := context.Background()

	require.NoError(t, manager.HandleEvent(ctx, failed(fragment, "timeout")))
	require.NoError(t, manager.HandleEvent(ctx, succeeded(fragment)))

	stored, err := fragments.Load(ctx, fragment.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusError, stored.File().Status)
	assert.Equal(t, "timeout", stored.File().FailCause)
	assert.Len(t, metrics.anomalies, 1)
}

func TestHandleEvent_MissingFragmentTolerated(t *testing.T) {
	manager, _, metrics, _ := setup(t)

	orphan, err := entities.NewFileFragment(
		valueobjects.NewMemoryID(), "gone.mp4", "video", "mid/fid/gone.mp4", "http://localhost/gone.mp4", 2048)
	require.NoError(t, err)

	// Never saved, so the repository reports it missing.
	assert.NoError(t, manager.HandleEvent(context.Background(), succeeded(orphan)))
	assert.Empty(t, metrics.outcomes)
	assert.Empty(t, metrics.anomalies)
}

func TestHandleEvent_IgnoresUnrelatedEvents(t *testing.T) {
	manager, _, metrics, _ := setup(t)

	evt := events.NewMemoryCreated(valueobjects.NewMemoryID(), valueobjects.NewAccountID(), "title", time.Now())
	assert.NoError(t, manager.HandleEvent(context.Background(), evt))
	assert.Empty(t, metrics.outcomes)
}
