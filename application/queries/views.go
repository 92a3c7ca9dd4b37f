// Package queries holds the read side: query types, their handlers and
// the transport-neutral view structs they return.
package queries

import (
	"time"

	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
)

// GrantView renders a grant set: either the everyone marker or the
// concrete account ids
type GrantView struct {
	Everyone bool     `json:"everyone"`
	Accounts []string `json:"accounts,omitempty"`
}

func grantView(g valueobjects.GrantSet) GrantView {
	v := GrantView{Everyone: g.IsEveryone()}
	for _, a := range g.Accounts() {
		v.Accounts = append(v.Accounts, a.String())
	}
	return v
}

// FileView is the transport shape of a file fragment's payload
type FileView struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	FailCause string `json:"fail_cause,omitempty"`
}

// FragmentView is the transport shape of a fragment
type FragmentView struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content,omitempty"`
	File      *FileView `json:"file,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFragmentView projects a fragment entity
func NewFragmentView(f *entities.Fragment) FragmentView {
	v := FragmentView{
		ID:        f.ID().String(),
		MemoryID:  f.MemoryID().String(),
		Kind:      string(f.Kind()),
		Content:   f.Content(),
		CreatedAt: f.CreatedAt(),
		UpdatedAt: f.UpdatedAt(),
	}
	if file := f.File(); file != nil {
		v.File = &FileView{
			Name:      file.Name,
			MediaType: file.MediaType,
			URL:       file.URL,
			Status:    string(file.Status),
			FailCause: file.FailCause,
		}
	}
	return v
}

// MemoryView is the full transport shape of a memory with its fragments
type MemoryView struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Title     string         `json:"title"`
	Public    bool           `json:"public"`
	Draft     bool           `json:"draft"`
	Pinned    bool           `json:"pinned"`
	Tags      []string       `json:"tags"`
	Readers   GrantView      `json:"readers"`
	Editors   GrantView      `json:"editors"`
	Fragments []FragmentView `json:"fragments"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MemorySummaryView is the list-item shape of a memory, without fragments
type MemorySummaryView struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Title         string    `json:"title"`
	Public        bool      `json:"public"`
	Draft         bool      `json:"draft"`
	Pinned        bool      `json:"pinned"`
	Tags          []string  `json:"tags"`
	FragmentCount int       `json:"fragment_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewMemorySummaryView projects a memory for the given viewer
func NewMemorySummaryView(m *entities.Memory, viewer valueobjects.AccountID) MemorySummaryView {
	return MemorySummaryView{
		ID:            m.ID().String(),
		OwnerID:       m.OwnerID().String(),
		Title:         m.Title(),
		Public:        m.IsPublic(),
		Draft:         m.IsDraft(),
		Pinned:        !viewer.IsZero() && m.IsPinnedBy(viewer),
		Tags:          m.Tags(),
		FragmentCount: m.FragmentCount(),
		UpdatedAt:     m.UpdatedAt(),
	}
}
