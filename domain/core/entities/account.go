package entities

import (
	"strings"
	"time"

	"keepsake-backend/domain/core/valueobjects"
	pkgerrors "keepsake-backend/pkg/errors"
)

// Account is a registered user of the service. Deliberately thin:
// authorization decisions key off the AccountID alone.
type Account struct {
	id          valueobjects.AccountID
	email       string
	displayName string
	createdAt   time.Time
}

// NewAccount creates a new account
func NewAccount(email, displayName string) (*Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.NewValidationError("email is invalid")
	}
	if displayName == "" {
		return nil, pkgerrors.NewValidationError("display name cannot be empty")
	}

	return &Account{
		id:          valueobjects.NewAccountID(),
		email:       email,
		displayName: displayName,
		createdAt:   time.Now(),
	}, nil
}

// ReconstructAccount rebuilds an account from repository data
func ReconstructAccount(id valueobjects.AccountID, email, displayName string, createdAt time.Time) *Account {
	return &Account{
		id:          id,
		email:       email,
		displayName: displayName,
		createdAt:   createdAt,
	}
}

// ID returns the account's unique identifier
func (a *Account) ID() valueobjects.AccountID {
	return a.id
}

// Email returns the account's email address
func (a *Account) Email() string {
	return a.email
}

// DisplayName returns the account's display name
func (a *Account) DisplayName() string {
	return a.displayName
}

// CreatedAt returns when the account was created
func (a *Account) CreatedAt() time.Time {
	return a.createdAt
}

// Rename changes the account's display name
func (a *Account) Rename(displayName string) error {
	if displayName == "" {
		return pkgerrors.NewValidationError("display name cannot be empty")
	}
	a.displayName = displayName
	return nil
}
