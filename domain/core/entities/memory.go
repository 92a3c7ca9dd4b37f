package entities

import (
	"time"

	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/events"
	pkgerrors "keepsake-backend/pkg/errors"
)

// MaxTitleLength bounds memory titles
const MaxTitleLength = 200

// Memory is the aggregate root for a collection of fragments. It owns
// the ordered membership list; fragments themselves live in their own
// repository and reference back via MemoryID.
//
// Invariant: fragmentIDs is duplicate-free and every listed fragment's
// MemoryID points here. Composition operations must keep both sides
// consistent within a single commit.
type Memory struct {
	id          valueobjects.MemoryID
	ownerID     valueobjects.AccountID
	title       string
	public      bool
	draft       bool
	readers     valueobjects.GrantSet
	editors     valueobjects.GrantSet
	fragmentIDs []valueobjects.FragmentID
	tags        []string
	pins        map[string]bool // keyed by AccountID string
	createdAt   time.Time
	updatedAt   time.Time
	version     int

	events []events.DomainEvent
}

// NewMemory creates a new private memory owned by the given account
func NewMemory(ownerID valueobjects.AccountID, title string) (*Memory, error) {
	return NewMemoryWithID(valueobjects.NewMemoryID(), ownerID, title)
}

// NewMemoryWithID creates a new private memory under a caller-supplied
// id. Request handlers generate the id up front so it can appear in the
// response without a read-back.
func NewMemoryWithID(id valueobjects.MemoryID, ownerID valueobjects.AccountID, title string) (*Memory, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("memoryID cannot be empty")
	}
	if ownerID.IsZero() {
		return nil, pkgerrors.NewValidationError("ownerID cannot be empty")
	}
	if err := validateTitle(title); err != nil {
		return nil, err
	}

	now := time.Now()
	m := &Memory{
		id:          id,
		ownerID:     ownerID,
		title:       title,
		readers:     valueobjects.NewGrantSet(),
		editors:     valueobjects.NewGrantSet(),
		fragmentIDs: []valueobjects.FragmentID{},
		tags:        []string{},
		pins:        map[string]bool{},
		createdAt:   now,
		updatedAt:   now,
		version:     1,
		events:      []events.DomainEvent{},
	}

	m.addEvent(events.NewMemoryCreated(m.id, ownerID, title, now))

	return m, nil
}

// ReconstructMemory rebuilds a memory from repository data
func ReconstructMemory(
	id valueobjects.MemoryID,
	ownerID valueobjects.AccountID,
	title string,
	public, draft bool,
	readers, editors valueobjects.GrantSet,
	fragmentIDs []valueobjects.FragmentID,
	tags []string,
	pinnedBy []valueobjects.AccountID,
	createdAt, updatedAt time.Time,
	version int,
) (*Memory, error) {
	if ownerID.IsZero() {
		return nil, pkgerrors.NewValidationError("ownerID cannot be empty")
	}

	ids := make([]valueobjects.FragmentID, len(fragmentIDs))
	copy(ids, fragmentIDs)

	pins := make(map[string]bool, len(pinnedBy))
	for _, a := range pinnedBy {
		pins[a.String()] = true
	}

	return &Memory{
		id:          id,
		ownerID:     ownerID,
		title:       title,
		public:      public,
		draft:       draft,
		readers:     readers,
		editors:     editors,
		fragmentIDs: ids,
		tags:        append([]string{}, tags...),
		pins:        pins,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		version:     version,
		events:      []events.DomainEvent{},
	}, nil
}

func validateTitle(title string) error {
	if title == "" {
		return pkgerrors.NewValidationError("title cannot be empty")
	}
	if len(title) > MaxTitleLength {
		return pkgerrors.NewValidationError("title is too long")
	}
	return nil
}

// ID returns the memory's unique identifier
func (m *Memory) ID() valueobjects.MemoryID {
	return m.id
}

// OwnerID returns the owning account
func (m *Memory) OwnerID() valueobjects.AccountID {
	return m.ownerID
}

// Title returns the memory's title
func (m *Memory) Title() string {
	return m.title
}

// IsPublic reports whether the memory is world-readable
func (m *Memory) IsPublic() bool {
	return m.public
}

// IsDraft reports whether the memory is still a draft
func (m *Memory) IsDraft() bool {
	return m.draft
}

// Readers returns the read grant set
func (m *Memory) Readers() valueobjects.GrantSet {
	return m.readers
}

// Editors returns the edit grant set
func (m *Memory) Editors() valueobjects.GrantSet {
	return m.editors
}

// Version returns the memory's version for optimistic locking
func (m *Memory) Version() int {
	return m.version
}

// CreatedAt returns when the memory was created
func (m *Memory) CreatedAt() time.Time {
	return m.createdAt
}

// UpdatedAt returns when the memory was last updated
func (m *Memory) UpdatedAt() time.Time {
	return m.updatedAt
}

// FragmentIDs returns the ordered fragment membership list
func (m *Memory) FragmentIDs() []valueobjects.FragmentID {
	ids := make([]valueobjects.FragmentID, len(m.fragmentIDs))
	copy(ids, m.fragmentIDs)
	return ids
}

// FragmentCount returns how many fragments the memory holds
func (m *Memory) FragmentCount() int {
	return len(m.fragmentIDs)
}

// ContainsFragment reports whether the fragment is a member
func (m *Memory) ContainsFragment(id valueobjects.FragmentID) bool {
	for _, fid := range m.fragmentIDs {
		if fid.Equals(id) {
			return true
		}
	}
	return false
}

// AttachFragment appends a fragment to the end of the membership list
func (m *Memory) AttachFragment(id valueobjects.FragmentID) error {
	if id.IsZero() {
		return pkgerrors.NewValidationError("fragmentID cannot be empty")
	}
	if m.ContainsFragment(id) {
		return pkgerrors.NewConflictError("fragment already belongs to this memory")
	}

	m.fragmentIDs = append(m.fragmentIDs, id)
	m.touch()

	return nil
}

// DetachFragment removes a fragment from the membership list
func (m *Memory) DetachFragment(id valueobjects.FragmentID) error {
	for i, fid := range m.fragmentIDs {
		if fid.Equals(id) {
			m.fragmentIDs = append(m.fragmentIDs[:i], m.fragmentIDs[i+1:]...)
			m.touch()
			return nil
		}
	}
	return pkgerrors.NewNotFoundError("fragment")
}

// Reorder replaces the membership order. The new order must be an exact
// permutation of the current membership.
func (m *Memory) Reorder(order []valueobjects.FragmentID) error {
	if len(order) != len(m.fragmentIDs) {
		return pkgerrors.NewValidationError("order must list every fragment exactly once")
	}

	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if seen[id.String()] {
			return pkgerrors.NewValidationError("order contains duplicate fragments")
		}
		if !m.ContainsFragment(id) {
			return pkgerrors.NewValidationError("order references a fragment not in this memory")
		}
		seen[id.String()] = true
	}

	ids := make([]valueobjects.FragmentID, len(order))
	copy(ids, order)
	m.fragmentIDs = ids
	m.touch()

	return nil
}

// SetTitle renames the memory
func (m *Memory) SetTitle(title string) error {
	if err := validateTitle(title); err != nil {
		return err
	}
	if title == m.title {
		return nil
	}

	m.title = title
	m.touch()

	return nil
}

// MakePublic opens the memory to unauthenticated readers
func (m *Memory) MakePublic() {
	if m.public {
		return
	}
	m.public = true
	m.touch()
	m.addEvent(events.NewMemoryShared(m.id, "public", m.updatedAt))
}

// MakePrivate closes public access. Explicit reader grants survive.
func (m *Memory) MakePrivate() {
	if !m.public {
		return
	}
	m.public = false
	m.touch()
	m.addEvent(events.NewMemoryShared(m.id, "private", m.updatedAt))
}

// SetDraft toggles the draft flag
func (m *Memory) SetDraft(draft bool) {
	if m.draft == draft {
		return
	}
	m.draft = draft
	m.touch()
}

// AddReader grants read access to an account
func (m *Memory) AddReader(id valueobjects.AccountID) error {
	if id.IsZero() {
		return pkgerrors.NewValidationError("accountID cannot be empty")
	}
	if id.Equals(m.ownerID) {
		return pkgerrors.NewValidationError("owner already has full access")
	}
	if m.readers.Contains(id) {
		return nil
	}

	m.readers = m.readers.Add(id)
	m.touch()
	m.addEvent(events.NewMemoryShared(m.id, "reader_added", m.updatedAt))

	return nil
}

// RemoveReader revokes an account's read grant
func (m *Memory) RemoveReader(id valueobjects.AccountID) error {
	if m.readers.IsEveryone() {
		return pkgerrors.NewConflictError("cannot remove a reader while shared with everyone")
	}
	if !m.readers.Contains(id) {
		return pkgerrors.NewNotFoundError("reader grant")
	}

	m.readers = m.readers.Remove(id)
	m.touch()
	m.addEvent(events.NewMemoryShared(m.id, "reader_removed", m.updatedAt))

	return nil
}

// ShareReadWithEveryone replaces the reader grants with the everyone grant
func (m *Memory) ShareReadWithEveryone() {
	if m.readers.IsEveryone() {
		return
	}
	m.readers = valueobjects.EveryoneGrant()
	m.touch()
	m.addEvent(events.NewMemoryShared(m.id, "readers_everyone", m.updatedAt))
}

// RevokeEveryoneRead drops the everyone grant, leaving no readers
func (m *Memory) RevokeEveryoneRead() {
	if !m.readers.IsEveryone() {
		return
	}
	m.readers = valueobjects.NewGrantSet()
	m.touch()
	m.addEvent(events.NewMemoryShared(m.id, "readers_restricted", m.updatedAt))
}

// AddEditor grants edit access to an account. Editing implies reading,
// which the permission engine accounts for; the reader set is not touched.
func (m *Memory) AddEditor(id valueobjects.AccountID) error {
	if id.IsZero() {
		return pkgerrors.NewValidationError("accountID cannot be empty")
	}
	if id.Equals(m.ownerID) {
		return pkgerrors.NewValidationError("owner already has full access")
	}
	if m.editors.Contains(id) {
		return nil
	}

	m.editors = m.editors.Add(id)
	m.touch()
	m.addEvent(events.NewMemoryShared(m.id, "editor_added", m.updatedAt))

	return nil
}

// ShareEditWithEveryone replaces the editor grants with the everyone grant
func (m *Memory) ShareEditWithEveryone() {
	if m.editors.IsEveryone() {
		return
	}
	m.editors = valueobjects.EveryoneGrant()
	m.touch()
	m.addEvent(events.NewMemoryShared(m.id, "editors_everyone", m.updatedAt))
}

// RevokeEveryoneEdit drops the everyone grant, leaving no editors
func (m *Memory) RevokeEveryoneEdit() {
	if !m.editors.IsEveryone() {
		return
	}
	m.editors = valueobjects.NewGrantSet()
	m.touch()
	m.addEvent(events.NewMemoryShared(m.id, "editors_restricted", m.updatedAt))
}

// RemoveEditor revokes an account's edit grant. The owner's authority
// does not come from the editor set and cannot be revoked here.
func (m *Memory) RemoveEditor(id valueobjects.AccountID) error {
	if id.Equals(m.ownerID) {
		return pkgerrors.NewValidationError("owner access cannot be revoked")
	}
	if m.editors.IsEveryone() {
		return pkgerrors.NewConflictError("cannot remove an editor while shared with everyone")
	}
	if !m.editors.Contains(id) {
		return pkgerrors.NewNotFoundError("editor grant")
	}

	m.editors = m.editors.Remove(id)
	m.touch()
	m.addEvent(events.NewMemoryShared(m.id, "editor_removed", m.updatedAt))

	return nil
}

// Tags returns a copy of the memory's tags
func (m *Memory) Tags() []string {
	return append([]string{}, m.tags...)
}

// SetTags replaces the tag list, dropping duplicates and empty entries
func (m *Memory) SetTags(tags []string) {
	seen := make(map[string]bool, len(tags))
	cleaned := []string{}
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		cleaned = append(cleaned, t)
	}

	m.tags = cleaned
	m.touch()
}

// IsPinnedBy reports whether the account has pinned this memory
func (m *Memory) IsPinnedBy(id valueobjects.AccountID) bool {
	return m.pins[id.String()]
}

// PinFor pins the memory for an account. Pins are per-account state,
// not shared metadata.
func (m *Memory) PinFor(id valueobjects.AccountID) error {
	if id.IsZero() {
		return pkgerrors.NewValidationError("accountID cannot be empty")
	}
	if m.pins[id.String()] {
		return nil
	}
	m.pins[id.String()] = true
	m.touch()
	return nil
}

// UnpinFor removes an account's pin
func (m *Memory) UnpinFor(id valueobjects.AccountID) {
	if !m.pins[id.String()] {
		return
	}
	delete(m.pins, id.String())
	m.touch()
}

// PinnedBy returns the accounts that pinned this memory
func (m *Memory) PinnedBy() []valueobjects.AccountID {
	out := make([]valueobjects.AccountID, 0, len(m.pins))
	for s := range m.pins {
		id, err := valueobjects.NewAccountIDFromString(s)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// GetUncommittedEvents returns all uncommitted domain events
func (m *Memory) GetUncommittedEvents() []events.DomainEvent {
	return m.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (m *Memory) MarkEventsAsCommitted() {
	m.events = []events.DomainEvent{}
}

func (m *Memory) addEvent(event events.DomainEvent) {
	m.events = append(m.events, event)
}

func (m *Memory) touch() {
	m.updatedAt = time.Now()
	m.version++
}
