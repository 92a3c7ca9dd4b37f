package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/events"
	pkgerrors "keepsake-backend/pkg/errors"
)

func newTestFileFragment(t *testing.T) *Fragment {
	t.Helper()
	f, err := NewFileFragment(
		valueobjects.NewMemoryID(),
		"beach.jpg", "image",
		"uploads/beach.jpg", "https://files.example.com/uploads/beach.jpg",
		1024,
	)
	require.NoError(t, err)
	return f
}

func TestNewTextFragment(t *testing.T) {
	memoryID := valueobjects.NewMemoryID()

	f, err := NewTextFragment(memoryID, "hello")
	require.NoError(t, err)

	assert.Equal(t, KindText, f.Kind())
	assert.Equal(t, "hello", f.Content())
	assert.True(t, f.MemoryID().Equals(memoryID))
	assert.Nil(t, f.File())

	evts := f.GetUncommittedEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, events.TypeFragmentAdded, evts[0].GetEventType())
}

func TestNewTextFragment_Validation(t *testing.T) {
	_, err := NewTextFragment(valueobjects.MemoryID{}, "hello")
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = NewTextFragment(valueobjects.NewMemoryID(), "")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestNewFileFragment(t *testing.T) {
	f := newTestFileFragment(t)

	assert.Equal(t, KindFile, f.Kind())
	require.NotNil(t, f.File())
	assert.Equal(t, FileStatusPending, f.File().Status)
	assert.Equal(t, "https://files.example.com/uploads/beach.jpg", f.File().URL)
}

func TestNewFileFragment_SizeCap(t *testing.T) {
	_, err := NewFileFragment(
		valueobjects.NewMemoryID(),
		"huge.mp4", "video", "uploads/huge.mp4", "https://files.example.com/uploads/huge.mp4",
		MaxFileSizeBytes+1,
	)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeTooLarge))
}

func TestFragment_UpdateContent(t *testing.T) {
	f, err := NewTextFragment(valueobjects.NewMemoryID(), "before")
	require.NoError(t, err)

	require.NoError(t, f.UpdateContent("after"))
	assert.Equal(t, "after", f.Content())

	assert.Error(t, f.UpdateContent(""))

	file := newTestFileFragment(t)
	err = file.UpdateContent("nope")
	assert.True(t, pkgerrors.IsValidation(err), "file fragments have no inline content")
}

func TestFragment_MoveTo(t *testing.T) {
	f, err := NewTextFragment(valueobjects.NewMemoryID(), "movable")
	require.NoError(t, err)

	target := valueobjects.NewMemoryID()
	require.NoError(t, f.MoveTo(target))
	assert.True(t, f.MemoryID().Equals(target))

	assert.Error(t, f.MoveTo(valueobjects.MemoryID{}))
}

func TestFragment_UploadLifecycle(t *testing.T) {
	f := newTestFileFragment(t)

	changed, err := f.MarkUploading()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, FileStatusUploading, f.File().Status)

	changed, err = f.MarkUploading()
	require.NoError(t, err)
	assert.False(t, changed, "repeat start marker must be a no-op")

	changed, anomaly := f.MarkUploaded()
	assert.True(t, changed)
	assert.False(t, anomaly)
	assert.Equal(t, FileStatusUploaded, f.File().Status)
}

func TestFragment_UploadSuccessIsIdempotent(t *testing.T) {
	f := newTestFileFragment(t)

	changed, anomaly := f.MarkUploaded()
	assert.True(t, changed)
	assert.False(t, anomaly)

	changed, anomaly = f.MarkUploaded()
	assert.False(t, changed, "duplicate delivery must be a no-op")
	assert.False(t, anomaly)
	assert.Equal(t, FileStatusUploaded, f.File().Status)
}

func TestFragment_TerminalStatesAreSticky(t *testing.T) {
	f := newTestFileFragment(t)

	_, _ = f.MarkUploaded()
	changed, anomaly := f.MarkUploadFailed("late error")
	assert.False(t, changed)
	assert.True(t, anomaly, "conflicting outcome after a terminal state is anomalous")
	assert.Equal(t, FileStatusUploaded, f.File().Status)

	g := newTestFileFragment(t)
	_, _ = g.MarkUploadFailed("disk full")
	assert.Equal(t, FileStatusError, g.File().Status)
	assert.Equal(t, "disk full", g.File().FailCause)

	changed, anomaly = g.MarkUploaded()
	assert.False(t, changed)
	assert.True(t, anomaly)
	assert.Equal(t, FileStatusError, g.File().Status)
}

func TestFragment_ErrorWithoutUploadingFirst(t *testing.T) {
	f := newTestFileFragment(t)

	// Outcome events can arrive before the uploading transition is seen.
	changed, anomaly := f.MarkUploadFailed("sink rejected")
	assert.True(t, changed)
	assert.False(t, anomaly)
	assert.Equal(t, FileStatusError, f.File().Status)
}

func TestReconstructFragment(t *testing.T) {
	f := newTestFileFragment(t)

	rebuilt, err := ReconstructFragment(
		f.ID(), f.MemoryID(), f.Kind(), f.Content(), f.File(),
		f.CreatedAt(), f.UpdatedAt(), f.Version(),
	)
	require.NoError(t, err)
	assert.True(t, rebuilt.ID().Equals(f.ID()))
	assert.Empty(t, rebuilt.GetUncommittedEvents())

	_, err = ReconstructFragment(
		valueobjects.NewFragmentID(), valueobjects.NewMemoryID(),
		KindFile, "", nil, f.CreatedAt(), f.UpdatedAt(), 1,
	)
	assert.True(t, pkgerrors.IsValidation(err))
}
