package valueobjects

import "sort"

// GrantSet is the reader/editor grant list of a memory. It is either the
// sentinel "everyone" or a concrete set of account ids. The sentinel is a
// tagged state, not a magic id, so it can never collide with a real account.
type GrantSet struct {
	everyone bool
	ids      map[string]AccountID
}

// NewGrantSet creates an empty grant set
func NewGrantSet() GrantSet {
	return GrantSet{ids: map[string]AccountID{}}
}

// GrantSetOf creates a grant set containing the given account ids
func GrantSetOf(accounts ...AccountID) GrantSet {
	g := NewGrantSet()
	for _, a := range accounts {
		g.ids[a.String()] = a
	}
	return g
}

// EveryoneGrant creates the open grant set
func EveryoneGrant() GrantSet {
	return GrantSet{everyone: true}
}

// IsEveryone reports whether the set is the open sentinel
func (g GrantSet) IsEveryone() bool {
	return g.everyone
}

// Contains reports whether the account is granted
func (g GrantSet) Contains(account AccountID) bool {
	if g.everyone {
		return true
	}
	_, ok := g.ids[account.String()]
	return ok
}

// Add returns a new set with the account granted. Adding to the open set is a no-op.
func (g GrantSet) Add(account AccountID) GrantSet {
	if g.everyone {
		return g
	}
	out := g.clone()
	out.ids[account.String()] = account
	return out
}

// Remove returns a new set with the account revoked. Removing from the open
// set is a no-op; closing the set is a separate, explicit operation.
func (g GrantSet) Remove(account AccountID) GrantSet {
	if g.everyone {
		return g
	}
	out := g.clone()
	delete(out.ids, account.String())
	return out
}

// Len returns the number of concrete grants; zero for the open set
func (g GrantSet) Len() int {
	return len(g.ids)
}

// IsEmpty reports whether no one is granted (the open set is never empty)
func (g GrantSet) IsEmpty() bool {
	return !g.everyone && len(g.ids) == 0
}

// Accounts returns the concrete grants in a stable order; nil for the open set
func (g GrantSet) Accounts() []AccountID {
	if g.everyone {
		return nil
	}
	keys := make([]string, 0, len(g.ids))
	for k := range g.ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]AccountID, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.ids[k])
	}
	return out
}

func (g GrantSet) clone() GrantSet {
	out := GrantSet{everyone: g.everyone, ids: make(map[string]AccountID, len(g.ids))}
	for k, v := range g.ids {
		out.ids[k] = v
	}
	return out
}
