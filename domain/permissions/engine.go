// Package permissions holds the access decision engine. It is pure:
// Decide never touches I/O, never returns an error, and treats anything
// it does not recognize as a denial.
package permissions

import (
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
)

// Action names a single authorizable operation
type Action string

const (
	ActionCreateMemory         Action = "create_memory"
	ActionReadMemory           Action = "read_memory"
	ActionUpdateMemoryMetadata Action = "update_memory_metadata"
	ActionDeleteMemory         Action = "delete_memory"
	ActionAddFragment          Action = "add_fragment"
	ActionReadFragment         Action = "read_fragment"
	ActionUpdateFragment       Action = "update_fragment_content"
	ActionDeleteFragment       Action = "delete_fragment"
)

// Decision is the outcome of an authorization check
type Decision int

const (
	Deny Decision = iota
	Allow
)

// Allowed reports whether the decision permits the action
func (d Decision) Allowed() bool {
	return d == Allow
}

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Resource is the permission-relevant view of a memory. Fragment checks
// use the owning memory's resource view; fragments carry no permission
// state of their own.
type Resource struct {
	Owner   valueobjects.AccountID
	Public  bool
	Readers valueobjects.GrantSet
	Editors valueobjects.GrantSet
}

// ResourceFromMemory projects a memory into its permission view
func ResourceFromMemory(m *entities.Memory) Resource {
	return Resource{
		Owner:   m.OwnerID(),
		Public:  m.IsPublic(),
		Readers: m.Readers(),
		Editors: m.Editors(),
	}
}

// Decide evaluates whether the principal may perform the action on the
// resource. Rules are checked in precedence order; the first match wins
// and everything unmatched is a denial. A zero principal is an anonymous
// caller and can only pass the public-read rule.
func Decide(principal valueobjects.AccountID, action Action, resource Resource) Decision {
	// Owner supremacy: the owner may do anything, regardless of grants.
	if !principal.IsZero() && principal.Equals(resource.Owner) {
		return Allow
	}

	switch action {
	case ActionCreateMemory:
		// Creation is only ever under the principal's own account.
		// The owner check above is the whole rule.
		return Deny

	case ActionReadMemory, ActionReadFragment:
		if resource.Public {
			return Allow
		}
		// The everyone sentinel covers signed-in accounts, not anonymous
		// callers; only the public flag opens a memory to those.
		if !principal.IsZero() &&
			(resource.Readers.IsEveryone() || resource.Readers.Contains(principal)) {
			return Allow
		}
		return Deny

	case ActionUpdateMemoryMetadata, ActionAddFragment, ActionUpdateFragment:
		if !principal.IsZero() &&
			(resource.Editors.IsEveryone() || resource.Editors.Contains(principal)) {
			return Allow
		}
		return Deny

	case ActionDeleteMemory, ActionDeleteFragment:
		// Owner-only. Editors may never delete.
		return Deny
	}

	// Unrecognized action.
	return Deny
}
