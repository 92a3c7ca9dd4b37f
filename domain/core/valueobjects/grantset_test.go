package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrantSet_ConcreteGrants(t *testing.T) {
	a := NewAccountID()
	b := NewAccountID()

	g := GrantSetOf(a)
	assert.True(t, g.Contains(a))
	assert.False(t, g.Contains(b))
	assert.False(t, g.IsEveryone())
	assert.Equal(t, 1, g.Len())

	g2 := g.Add(b)
	assert.True(t, g2.Contains(b))
	assert.False(t, g.Contains(b), "Add must not mutate the receiver")

	g3 := g2.Remove(a)
	assert.False(t, g3.Contains(a))
	assert.True(t, g2.Contains(a), "Remove must not mutate the receiver")
}

func TestGrantSet_Everyone(t *testing.T) {
	g := EveryoneGrant()

	assert.True(t, g.IsEveryone())
	assert.True(t, g.Contains(NewAccountID()), "the open set contains every account")
	assert.False(t, g.IsEmpty())
	assert.Nil(t, g.Accounts())

	// Add and Remove are no-ops on the open set.
	assert.True(t, g.Add(NewAccountID()).IsEveryone())
	assert.True(t, g.Remove(NewAccountID()).IsEveryone())
}

func TestGrantSet_AccountsOrderIsStable(t *testing.T) {
	a := NewAccountID()
	b := NewAccountID()
	c := NewAccountID()

	g := GrantSetOf(a, b, c)
	first := g.Accounts()
	second := g.Accounts()
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestGrantSet_Empty(t *testing.T) {
	g := NewGrantSet()
	assert.True(t, g.IsEmpty())
	assert.False(t, g.Contains(NewAccountID()))
}
