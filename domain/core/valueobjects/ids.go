package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// MemoryID is a value object representing a unique memory identifier
// Value objects are immutable and have no identity beyond their value
type MemoryID struct {
	value string
}

// NewMemoryID creates a new random MemoryID
func NewMemoryID() MemoryID {
	return MemoryID{value: uuid.New().String()}
}

// NewMemoryIDFromString creates a MemoryID from an existing string
func NewMemoryIDFromString(id string) (MemoryID, error) {
	if id == "" {
		return MemoryID{}, errors.New("memory ID cannot be empty")
	}
	if !isValidUUID(id) {
		return MemoryID{}, errors.New("memory ID must be a valid UUID")
	}
	return MemoryID{value: id}, nil
}

// String returns the string representation of the MemoryID
func (id MemoryID) String() string {
	return id.value
}

// Equals checks if two MemoryIDs are equal
func (id MemoryID) Equals(other MemoryID) bool {
	return id.value == other.value
}

// Less orders two MemoryIDs lexicographically, used for deadlock-free pair locking
func (id MemoryID) Less(other MemoryID) bool {
	return id.value < other.value
}

// IsZero checks if the MemoryID is the zero value
func (id MemoryID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id MemoryID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *MemoryID) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return err
	}
	id.value = s
	return nil
}

// FragmentID is a value object representing a unique fragment identifier
type FragmentID struct {
	value string
}

// NewFragmentID creates a new random FragmentID
func NewFragmentID() FragmentID {
	return FragmentID{value: uuid.New().String()}
}

// NewFragmentIDFromString creates a FragmentID from an existing string
func NewFragmentIDFromString(id string) (FragmentID, error) {
	if id == "" {
		return FragmentID{}, errors.New("fragment ID cannot be empty")
	}
	if !isValidUUID(id) {
		return FragmentID{}, errors.New("fragment ID must be a valid UUID")
	}
	return FragmentID{value: id}, nil
}

// String returns the string representation of the FragmentID
func (id FragmentID) String() string {
	return id.value
}

// Equals checks if two FragmentIDs are equal
func (id FragmentID) Equals(other FragmentID) bool {
	return id.value == other.value
}

// IsZero checks if the FragmentID is the zero value
func (id FragmentID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id FragmentID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *FragmentID) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return err
	}
	id.value = s
	return nil
}

// AccountID is a value object identifying a user account (the principal type)
type AccountID struct {
	value string
}

// NewAccountID creates a new random AccountID
func NewAccountID() AccountID {
	return AccountID{value: uuid.New().String()}
}

// NewAccountIDFromString creates an AccountID from an existing string
func NewAccountIDFromString(id string) (AccountID, error) {
	if id == "" {
		return AccountID{}, errors.New("account ID cannot be empty")
	}
	if !isValidUUID(id) {
		return AccountID{}, errors.New("account ID must be a valid UUID")
	}
	return AccountID{value: id}, nil
}

// String returns the string representation of the AccountID
func (id AccountID) String() string {
	return id.value
}

// Equals checks if two AccountIDs are equal
func (id AccountID) Equals(other AccountID) bool {
	return id.value == other.value
}

// IsZero checks if the AccountID is the zero value
func (id AccountID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id AccountID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *AccountID) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return err
	}
	id.value = s
	return nil
}

func unquote(data []byte) (string, error) {
	if string(data) == "null" {
		return "", nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return "", errors.New("id must be a string")
	}
	return string(data[1 : len(data)-1]), nil
}

// isValidUUID validates if a string is a valid UUID
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
