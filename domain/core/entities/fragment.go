package entities

import (
	"time"

	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/events"
	pkgerrors "keepsake-backend/pkg/errors"
)

// FragmentKind discriminates the fragment content variants
type FragmentKind string

const (
	KindText     FragmentKind = "text"
	KindRichText FragmentKind = "rich_text"
	KindFile     FragmentKind = "file"
)

// FileStatus tracks a file fragment through its upload lifecycle
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"
	FileStatusUploading FileStatus = "uploading"
	FileStatusUploaded  FileStatus = "uploaded"
	FileStatusError     FileStatus = "error"
)

// MaxFileSizeBytes caps uploaded file payloads at 50 MiB
const MaxFileSizeBytes = 50 << 20

// FileInfo holds the storage-facing details of a file fragment.
// URL is assigned at creation and stays stable across the upload.
type FileInfo struct {
	Name      string
	MediaType string
	Key       string
	URL       string
	Size      int64
	Status    FileStatus
	FailCause string
}

// Fragment is a single unit of content inside a memory. Text and rich
// text fragments carry their content inline; file fragments carry a
// FileInfo whose status advances asynchronously as bytes reach storage.
type Fragment struct {
	id        valueobjects.FragmentID
	memoryID  valueobjects.MemoryID
	kind      FragmentKind
	content   string
	file      *FileInfo
	createdAt time.Time
	updatedAt time.Time
	version   int

	events []events.DomainEvent
}

// NewTextFragment creates a plain text fragment attached to a memory
func NewTextFragment(memoryID valueobjects.MemoryID, content string) (*Fragment, error) {
	return newInlineFragment(valueobjects.NewFragmentID(), memoryID, KindText, content)
}

// NewRichTextFragment creates a rich text fragment attached to a memory
func NewRichTextFragment(memoryID valueobjects.MemoryID, content string) (*Fragment, error) {
	return newInlineFragment(valueobjects.NewFragmentID(), memoryID, KindRichText, content)
}

// NewInlineFragmentWithID creates a text or rich text fragment under a
// caller-supplied id
func NewInlineFragmentWithID(id valueobjects.FragmentID, memoryID valueobjects.MemoryID, kind FragmentKind, content string) (*Fragment, error) {
	if kind != KindText && kind != KindRichText {
		return nil, pkgerrors.NewValidationError("kind must be text or rich_text")
	}
	return newInlineFragment(id, memoryID, kind, content)
}

func newInlineFragment(id valueobjects.FragmentID, memoryID valueobjects.MemoryID, kind FragmentKind, content string) (*Fragment, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("fragmentID cannot be empty")
	}
	if memoryID.IsZero() {
		return nil, pkgerrors.NewValidationError("memoryID cannot be empty")
	}
	if content == "" {
		return nil, pkgerrors.NewValidationError("content cannot be empty")
	}

	now := time.Now()
	f := &Fragment{
		id:        id,
		memoryID:  memoryID,
		kind:      kind,
		content:   content,
		createdAt: now,
		updatedAt: now,
		version:   1,
		events:    []events.DomainEvent{},
	}

	f.addEvent(events.NewFragmentAdded(f.id, memoryID, string(kind), now))

	return f, nil
}

// NewFileFragment creates a file fragment in pending state. The object key
// and URL are fixed here, before any bytes move.
func NewFileFragment(memoryID valueobjects.MemoryID, name, mediaType, key, url string, size int64) (*Fragment, error) {
	return NewFileFragmentWithID(valueobjects.NewFragmentID(), memoryID, name, mediaType, key, url, size)
}

// NewFileFragmentWithID creates a file fragment under a caller-supplied
// id. The id is needed before construction because the storage key is
// derived from it.
func NewFileFragmentWithID(id valueobjects.FragmentID, memoryID valueobjects.MemoryID, name, mediaType, key, url string, size int64) (*Fragment, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("fragmentID cannot be empty")
	}
	if memoryID.IsZero() {
		return nil, pkgerrors.NewValidationError("memoryID cannot be empty")
	}
	if name == "" {
		return nil, pkgerrors.NewValidationError("file name cannot be empty")
	}
	if key == "" {
		return nil, pkgerrors.NewValidationError("storage key cannot be empty")
	}
	if size < 0 {
		return nil, pkgerrors.NewValidationError("file size cannot be negative")
	}
	if size > MaxFileSizeBytes {
		return nil, pkgerrors.NewTooLargeError("file exceeds the 50MB upload limit")
	}

	now := time.Now()
	f := &Fragment{
		id:       id,
		memoryID: memoryID,
		kind:     KindFile,
		file: &FileInfo{
			Name:      name,
			MediaType: mediaType,
			Key:       key,
			URL:       url,
			Size:      size,
			Status:    FileStatusPending,
		},
		createdAt: now,
		updatedAt: now,
		version:   1,
		events:    []events.DomainEvent{},
	}

	f.addEvent(events.NewFragmentAdded(f.id, memoryID, string(KindFile), now))

	return f, nil
}

// ReconstructFragment rebuilds a fragment from repository data
func ReconstructFragment(
	id valueobjects.FragmentID,
	memoryID valueobjects.MemoryID,
	kind FragmentKind,
	content string,
	file *FileInfo,
	createdAt, updatedAt time.Time,
	version int,
) (*Fragment, error) {
	if kind == KindFile && file == nil {
		return nil, pkgerrors.NewValidationError("file fragment requires file info")
	}
	if kind != KindFile && file != nil {
		return nil, pkgerrors.NewValidationError("inline fragment cannot carry file info")
	}

	return &Fragment{
		id:        id,
		memoryID:  memoryID,
		kind:      kind,
		content:   content,
		file:      file,
		createdAt: createdAt,
		updatedAt: updatedAt,
		version:   version,
		events:    []events.DomainEvent{},
	}, nil
}

// ID returns the fragment's unique identifier
func (f *Fragment) ID() valueobjects.FragmentID {
	return f.id
}

// MemoryID returns the memory this fragment belongs to
func (f *Fragment) MemoryID() valueobjects.MemoryID {
	return f.memoryID
}

// Kind returns the fragment's content variant
func (f *Fragment) Kind() FragmentKind {
	return f.kind
}

// Content returns the inline content, empty for file fragments
func (f *Fragment) Content() string {
	return f.content
}

// File returns a copy of the file info, nil for inline fragments
func (f *Fragment) File() *FileInfo {
	if f.file == nil {
		return nil
	}
	fi := *f.file
	return &fi
}

// Version returns the fragment's version for optimistic locking
func (f *Fragment) Version() int {
	return f.version
}

// CreatedAt returns when the fragment was created
func (f *Fragment) CreatedAt() time.Time {
	return f.createdAt
}

// UpdatedAt returns when the fragment was last updated
func (f *Fragment) UpdatedAt() time.Time {
	return f.updatedAt
}

// MoveTo reassigns the fragment to another memory. Used by merge and
// split; the caller is responsible for keeping both membership lists
// consistent within the same commit.
func (f *Fragment) MoveTo(memoryID valueobjects.MemoryID) error {
	if memoryID.IsZero() {
		return pkgerrors.NewValidationError("memoryID cannot be empty")
	}
	if memoryID.Equals(f.memoryID) {
		return nil
	}

	f.memoryID = memoryID
	f.updatedAt = time.Now()
	f.version++

	return nil
}

// UpdateContent replaces the inline content of a text fragment
func (f *Fragment) UpdateContent(content string) error {
	if f.kind == KindFile {
		return pkgerrors.NewValidationError("file fragments have no inline content")
	}
	if content == "" {
		return pkgerrors.NewValidationError("content cannot be empty")
	}
	if content == f.content {
		return nil
	}

	f.content = content
	f.updatedAt = time.Now()
	f.version++

	return nil
}

// MarkUploading moves a pending file fragment into the uploading state,
// reporting whether anything changed. Safe to call again while
// uploading; does nothing from a terminal state.
func (f *Fragment) MarkUploading() (changed bool, err error) {
	if f.kind != KindFile {
		return false, pkgerrors.NewValidationError("only file fragments have an upload lifecycle")
	}

	switch f.file.Status {
	case FileStatusPending:
		f.file.Status = FileStatusUploading
		f.updatedAt = time.Now()
		f.version++
		return true, nil
	case FileStatusUploading, FileStatusUploaded, FileStatusError:
		// terminal or already in flight, nothing to do
	}
	return false, nil
}

// MarkUploaded records a successful upload. Returns whether the state
// changed and whether the transition was anomalous (a success report
// arriving after the fragment already failed). Terminal states are
// sticky either way.
func (f *Fragment) MarkUploaded() (changed bool, anomaly bool) {
	if f.kind != KindFile {
		return false, false
	}

	switch f.file.Status {
	case FileStatusPending, FileStatusUploading:
		f.file.Status = FileStatusUploaded
		f.file.FailCause = ""
		f.updatedAt = time.Now()
		f.version++
		return true, false
	case FileStatusUploaded:
		return false, false
	case FileStatusError:
		return false, true
	}
	return false, false
}

// MarkUploadFailed records a failed upload with its cause. Same
// idempotency contract as MarkUploaded.
func (f *Fragment) MarkUploadFailed(cause string) (changed bool, anomaly bool) {
	if f.kind != KindFile {
		return false, false
	}

	switch f.file.Status {
	case FileStatusPending, FileStatusUploading:
		f.file.Status = FileStatusError
		f.file.FailCause = cause
		f.updatedAt = time.Now()
		f.version++
		return true, false
	case FileStatusError:
		return false, false
	case FileStatusUploaded:
		return false, true
	}
	return false, false
}

// GetUncommittedEvents returns all uncommitted domain events
func (f *Fragment) GetUncommittedEvents() []events.DomainEvent {
	return f.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (f *Fragment) MarkEventsAsCommitted() {
	f.events = []events.DomainEvent{}
}

func (f *Fragment) addEvent(event events.DomainEvent) {
	f.events = append(f.events, event)
}
