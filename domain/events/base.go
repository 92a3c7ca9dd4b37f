package events

import (
	"time"

	"keepsake-backend/domain/core/valueobjects"
)

// Event type names. The storage sink publishes the fragment save outcomes;
// everything else originates in command handlers.
const (
	TypeMemoryCreated   = "memory.created"
	TypeMemoryDeleted   = "memory.deleted"
	TypeMemoriesMerged  = "memories.merged"
	TypeMemorySplit     = "memory.split"
	TypeMemoryShattered = "memory.shattered"
	TypeMemoryShared    = "memory.shared"
	TypeFragmentAdded   = "fragment.added"
	TypeFragmentDeleted = "fragment.deleted"
	TypeSaveStarted     = "fragment.save_started"
	TypeSaveSucceeded   = "fragment.save_succeeded"
	TypeSaveFailed      = "fragment.save_failed"
	TypeRemoveSucceeded = "fragment.remove_succeeded"
	TypeRemoveFailed    = "fragment.remove_failed"
)

// SourceBackend identifies this service on the external event bus
const SourceBackend = "keepsake.backend"

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Memory events

// MemoryCreated is raised when a new memory is created
type MemoryCreated struct {
	BaseEvent
	MemoryID valueobjects.MemoryID  `json:"memory_id"`
	OwnerID  valueobjects.AccountID `json:"owner_id"`
	Title    string                 `json:"title"`
}

// NewMemoryCreated creates a MemoryCreated event
func NewMemoryCreated(memoryID valueobjects.MemoryID, ownerID valueobjects.AccountID, title string, timestamp time.Time) MemoryCreated {
	return MemoryCreated{
		BaseEvent: BaseEvent{
			AggregateID: memoryID.String(),
			EventType:   TypeMemoryCreated,
			Timestamp:   timestamp,
			Version:     1,
		},
		MemoryID: memoryID,
		OwnerID:  ownerID,
		Title:    title,
	}
}

// MemoryDeleted is raised when a memory is deleted along with its fragments
type MemoryDeleted struct {
	BaseEvent
	MemoryID    valueobjects.MemoryID     `json:"memory_id"`
	OwnerID     valueobjects.AccountID    `json:"owner_id"`
	FragmentIDs []valueobjects.FragmentID `json:"fragment_ids"`
}

// NewMemoryDeleted creates a MemoryDeleted event
func NewMemoryDeleted(memoryID valueobjects.MemoryID, ownerID valueobjects.AccountID, fragmentIDs []valueobjects.FragmentID, timestamp time.Time) MemoryDeleted {
	return MemoryDeleted{
		BaseEvent: BaseEvent{
			AggregateID: memoryID.String(),
			EventType:   TypeMemoryDeleted,
			Timestamp:   timestamp,
			Version:     1,
		},
		MemoryID:    memoryID,
		OwnerID:     ownerID,
		FragmentIDs: fragmentIDs,
	}
}

// MemoriesMerged is raised when a source memory's fragments are folded into a target
type MemoriesMerged struct {
	BaseEvent
	TargetID         valueobjects.MemoryID     `json:"target_id"`
	SourceID         valueobjects.MemoryID     `json:"source_id"`
	MovedFragmentIDs []valueobjects.FragmentID `json:"moved_fragment_ids"`
}

// NewMemoriesMerged creates a MemoriesMerged event
func NewMemoriesMerged(targetID, sourceID valueobjects.MemoryID, moved []valueobjects.FragmentID, timestamp time.Time) MemoriesMerged {
	return MemoriesMerged{
		BaseEvent: BaseEvent{
			AggregateID: targetID.String(),
			EventType:   TypeMemoriesMerged,
			Timestamp:   timestamp,
			Version:     1,
		},
		TargetID:         targetID,
		SourceID:         sourceID,
		MovedFragmentIDs: moved,
	}
}

// MemorySplit is raised when a subset of fragments is moved into a new memory
type MemorySplit struct {
	BaseEvent
	SourceID    valueobjects.MemoryID     `json:"source_id"`
	NewMemoryID valueobjects.MemoryID     `json:"new_memory_id"`
	FragmentIDs []valueobjects.FragmentID `json:"fragment_ids"`
}

// NewMemorySplit creates a MemorySplit event
func NewMemorySplit(sourceID, newMemoryID valueobjects.MemoryID, fragmentIDs []valueobjects.FragmentID, timestamp time.Time) MemorySplit {
	return MemorySplit{
		BaseEvent: BaseEvent{
			AggregateID: sourceID.String(),
			EventType:   TypeMemorySplit,
			Timestamp:   timestamp,
			Version:     1,
		},
		SourceID:    sourceID,
		NewMemoryID: newMemoryID,
		FragmentIDs: fragmentIDs,
	}
}

// MemoryShattered is raised when every fragment of a memory is split into a singleton
type MemoryShattered struct {
	BaseEvent
	SourceID     valueobjects.MemoryID   `json:"source_id"`
	NewMemoryIDs []valueobjects.MemoryID `json:"new_memory_ids"`
}

// NewMemoryShattered creates a MemoryShattered event
func NewMemoryShattered(sourceID valueobjects.MemoryID, newMemoryIDs []valueobjects.MemoryID, timestamp time.Time) MemoryShattered {
	return MemoryShattered{
		BaseEvent: BaseEvent{
			AggregateID: sourceID.String(),
			EventType:   TypeMemoryShattered,
			Timestamp:   timestamp,
			Version:     1,
		},
		SourceID:     sourceID,
		NewMemoryIDs: newMemoryIDs,
	}
}

// MemoryShared is raised when a memory's grants or visibility change
type MemoryShared struct {
	BaseEvent
	MemoryID valueobjects.MemoryID `json:"memory_id"`
	Change   string                `json:"change"`
}

// NewMemoryShared creates a MemoryShared event
func NewMemoryShared(memoryID valueobjects.MemoryID, change string, timestamp time.Time) MemoryShared {
	return MemoryShared{
		BaseEvent: BaseEvent{
			AggregateID: memoryID.String(),
			EventType:   TypeMemoryShared,
			Timestamp:   timestamp,
			Version:     1,
		},
		MemoryID: memoryID,
		Change:   change,
	}
}

// Fragment events

// FragmentAdded is raised when a fragment is attached to a memory
type FragmentAdded struct {
	BaseEvent
	FragmentID valueobjects.FragmentID `json:"fragment_id"`
	MemoryID   valueobjects.MemoryID   `json:"memory_id"`
	Kind       string                  `json:"kind"`
}

// NewFragmentAdded creates a FragmentAdded event
func NewFragmentAdded(fragmentID valueobjects.FragmentID, memoryID valueobjects.MemoryID, kind string, timestamp time.Time) FragmentAdded {
	return FragmentAdded{
		BaseEvent: BaseEvent{
			AggregateID: fragmentID.String(),
			EventType:   TypeFragmentAdded,
			Timestamp:   timestamp,
			Version:     1,
		},
		FragmentID: fragmentID,
		MemoryID:   memoryID,
		Kind:       kind,
	}
}

// FragmentDeleted is raised when a fragment is destroyed
type FragmentDeleted struct {
	BaseEvent
	FragmentID valueobjects.FragmentID `json:"fragment_id"`
	MemoryID   valueobjects.MemoryID   `json:"memory_id"`
}

// NewFragmentDeleted creates a FragmentDeleted event
func NewFragmentDeleted(fragmentID valueobjects.FragmentID, memoryID valueobjects.MemoryID, timestamp time.Time) FragmentDeleted {
	return FragmentDeleted{
		BaseEvent: BaseEvent{
			AggregateID: fragmentID.String(),
			EventType:   TypeFragmentDeleted,
			Timestamp:   timestamp,
			Version:     1,
		},
		FragmentID: fragmentID,
		MemoryID:   memoryID,
	}
}

// Storage sink lifecycle events. These arrive asynchronously, outside
// any request context, and drive the upload lifecycle state machine.

// FragmentSaveStarted reports that the sink began transmitting a file
// fragment's bytes
type FragmentSaveStarted struct {
	BaseEvent
	FragmentID valueobjects.FragmentID `json:"fragment_id"`
	MemoryID   valueobjects.MemoryID   `json:"memory_id"`
	Key        string                  `json:"key"`
}

// NewFragmentSaveStarted creates a FragmentSaveStarted event
func NewFragmentSaveStarted(fragmentID valueobjects.FragmentID, memoryID valueobjects.MemoryID, key string, timestamp time.Time) FragmentSaveStarted {
	return FragmentSaveStarted{
		BaseEvent: BaseEvent{
			AggregateID: fragmentID.String(),
			EventType:   TypeSaveStarted,
			Timestamp:   timestamp,
			Version:     1,
		},
		FragmentID: fragmentID,
		MemoryID:   memoryID,
		Key:        key,
	}
}

// FragmentSaveSucceeded reports that a file fragment's bytes reached storage
type FragmentSaveSucceeded struct {
	BaseEvent
	FragmentID valueobjects.FragmentID `json:"fragment_id"`
	MemoryID   valueobjects.MemoryID   `json:"memory_id"`
	Key        string                  `json:"key"`
}

// NewFragmentSaveSucceeded creates a FragmentSaveSucceeded event
func NewFragmentSaveSucceeded(fragmentID valueobjects.FragmentID, memoryID valueobjects.MemoryID, key string, timestamp time.Time) FragmentSaveSucceeded {
	return FragmentSaveSucceeded{
		BaseEvent: BaseEvent{
			AggregateID: fragmentID.String(),
			EventType:   TypeSaveSucceeded,
			Timestamp:   timestamp,
			Version:     1,
		},
		FragmentID: fragmentID,
		MemoryID:   memoryID,
		Key:        key,
	}
}

// FragmentSaveFailed reports that a file fragment's upload failed
type FragmentSaveFailed struct {
	BaseEvent
	FragmentID valueobjects.FragmentID `json:"fragment_id"`
	MemoryID   valueobjects.MemoryID   `json:"memory_id"`
	Key        string                  `json:"key"`
	Cause      string                  `json:"cause"`
}

// NewFragmentSaveFailed creates a FragmentSaveFailed event
func NewFragmentSaveFailed(fragmentID valueobjects.FragmentID, memoryID valueobjects.MemoryID, key, cause string, timestamp time.Time) FragmentSaveFailed {
	return FragmentSaveFailed{
		BaseEvent: BaseEvent{
			AggregateID: fragmentID.String(),
			EventType:   TypeSaveFailed,
			Timestamp:   timestamp,
			Version:     1,
		},
		FragmentID: fragmentID,
		MemoryID:   memoryID,
		Key:        key,
		Cause:      cause,
	}
}

// FileRemoveOutcome reports the result of deleting a stored object. Failures
// are logged, not surfaced; the fragment record is already gone.
type FileRemoveOutcome struct {
	BaseEvent
	Key   string `json:"key"`
	Cause string `json:"cause,omitempty"`
}

// NewFileRemoveSucceeded creates a successful FileRemoveOutcome event
func NewFileRemoveSucceeded(key string, timestamp time.Time) FileRemoveOutcome {
	return FileRemoveOutcome{
		BaseEvent: BaseEvent{
			AggregateID: key,
			EventType:   TypeRemoveSucceeded,
			Timestamp:   timestamp,
			Version:     1,
		},
		Key: key,
	}
}

// NewFileRemoveFailed creates a failed FileRemoveOutcome event
func NewFileRemoveFailed(key, cause string, timestamp time.Time) FileRemoveOutcome {
	return FileRemoveOutcome{
		BaseEvent: BaseEvent{
			AggregateID: key,
			EventType:   TypeRemoveFailed,
			Timestamp:   timestamp,
			Version:     1,
		},
		Key:   key,
		Cause: cause,
	}
}
