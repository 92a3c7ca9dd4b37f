package valueobjects

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryID_RoundTrip(t *testing.T) {
	id := NewMemoryID()

	parsed, err := NewMemoryIDFromString(id.String())
	require.NoError(t, err)
	assert.True(t, id.Equals(parsed))

	_, err = NewMemoryIDFromString("not-a-uuid")
	assert.Error(t, err)
}

func TestMemoryID_Less(t *testing.T) {
	a := NewMemoryID()
	b := NewMemoryID()

	if a.String() < b.String() {
		assert.True(t, a.Less(b))
		assert.False(t, b.Less(a))
	} else {
		assert.True(t, b.Less(a))
		assert.False(t, a.Less(b))
	}
	assert.False(t, a.Less(a))
}

func TestIDs_JSON(t *testing.T) {
	id := NewFragmentID()

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded FragmentID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, id.Equals(decoded))
}

func TestIDs_Zero(t *testing.T) {
	assert.True(t, MemoryID{}.IsZero())
	assert.True(t, FragmentID{}.IsZero())
	assert.True(t, AccountID{}.IsZero())
	assert.False(t, NewAccountID().IsZero())
}
