package commands

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"keepsake-backend/application/commands/bus"
	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/permissions"
	pkgerrors "keepsake-backend/pkg/errors"
)

// GrantRole selects which grant set a sharing command touches
type GrantRole string

const (
	RoleReader GrantRole = "reader"
	RoleEditor GrantRole = "editor"
)

// GrantAccessCommand adds an account to a memory's reader or editor set
type GrantAccessCommand struct {
	MemoryID    string    `json:"memory_id" validate:"required,uuid"`
	PrincipalID string    `json:"principal_id" validate:"required,uuid"`
	AccountID   string    `json:"account_id" validate:"required,uuid"`
	Role        GrantRole `json:"role" validate:"required,oneof=reader editor"`
}

// Validate implements bus.Command
func (cmd GrantAccessCommand) Validate() error {
	return validateGrantFields(cmd.MemoryID, cmd.PrincipalID, cmd.AccountID, cmd.Role)
}

// RevokeAccessCommand removes an account from a grant set
type RevokeAccessCommand struct {
	MemoryID    string    `json:"memory_id" validate:"required,uuid"`
	PrincipalID string    `json:"principal_id" validate:"required,uuid"`
	AccountID   string    `json:"account_id" validate:"required,uuid"`
	Role        GrantRole `json:"role" validate:"required,oneof=reader editor"`
}

// Validate implements bus.Command
func (cmd RevokeAccessCommand) Validate() error {
	return validateGrantFields(cmd.MemoryID, cmd.PrincipalID, cmd.AccountID, cmd.Role)
}

// SetEveryoneReadCommand opens or closes the everyone read grant
type SetEveryoneReadCommand struct {
	MemoryID    string `json:"memory_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
	Open        bool   `json:"open"`
}

// Validate implements bus.Command
func (cmd SetEveryoneReadCommand) Validate() error {
	if cmd.MemoryID == "" || cmd.PrincipalID == "" {
		return errors.New("memory and principal IDs are required")
	}
	return nil
}

// SetEveryoneEditCommand opens or closes the everyone edit grant
type SetEveryoneEditCommand struct {
	MemoryID    string `json:"memory_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
	Open        bool   `json:"open"`
}

// Validate implements bus.Command
func (cmd SetEveryoneEditCommand) Validate() error {
	if cmd.MemoryID == "" || cmd.PrincipalID == "" {
		return errors.New("memory and principal IDs are required")
	}
	return nil
}

// SetVisibilityCommand toggles the public flag
type SetVisibilityCommand struct {
	MemoryID    string `json:"memory_id" validate:"required,uuid"`
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
	Public      bool   `json:"public"`
}

// Validate implements bus.Command
func (cmd SetVisibilityCommand) Validate() error {
	if cmd.MemoryID == "" || cmd.PrincipalID == "" {
		return errors.New("memory and principal IDs are required")
	}
	return nil
}

func validateGrantFields(memoryID, principalID, accountID string, role GrantRole) error {
	if memoryID == "" || principalID == "" || accountID == "" {
		return errors.New("memory, principal and account IDs are required")
	}
	if role != RoleReader && role != RoleEditor {
		return errors.New("role must be reader or editor")
	}
	return nil
}

// SharingHandler handles every grant and visibility command. Changing
// who can see a memory is metadata-level write access.
type SharingHandler struct {
	memories ports.MemoryRepository
	accounts ports.AccountRepository
	logger   *zap.Logger
}

// NewSharingHandler creates the handler
func NewSharingHandler(memories ports.MemoryRepository, accounts ports.AccountRepository, logger *zap.Logger) *SharingHandler {
	return &SharingHandler{memories: memories, accounts: accounts, logger: logger}
}

var _ bus.CommandHandler = (*SharingHandler)(nil)

// Handle implements bus.CommandHandler
func (h *SharingHandler) Handle(ctx context.Context, c bus.Command) error {
	switch cmd := c.(type) {
	case GrantAccessCommand:
		return h.mutateGrants(ctx, cmd.MemoryID, cmd.PrincipalID, func(m *entities.Memory) error {
			account, err := h.resolveAccount(ctx, cmd.AccountID)
			if err != nil {
				return err
			}
			if cmd.Role == RoleEditor {
				return m.AddEditor(account)
			}
			return m.AddReader(account)
		})
	case RevokeAccessCommand:
		return h.mutateGrants(ctx, cmd.MemoryID, cmd.PrincipalID, func(m *entities.Memory) error {
			account, err := valueobjects.NewAccountIDFromString(cmd.AccountID)
			if err != nil {
				return pkgerrors.NewValidationError("invalid account id")
			}
			if cmd.Role == RoleEditor {
				return m.RemoveEditor(account)
			}
			return m.RemoveReader(account)
		})
	case SetEveryoneReadCommand:
		return h.mutateGrants(ctx, cmd.MemoryID, cmd.PrincipalID, func(m *entities.Memory) error {
			if cmd.Open {
				m.ShareReadWithEveryone()
			} else {
				m.RevokeEveryoneRead()
			}
			return nil
		})
	case SetEveryoneEditCommand:
		return h.mutateGrants(ctx, cmd.MemoryID, cmd.PrincipalID, func(m *entities.Memory) error {
			if cmd.Open {
				m.ShareEditWithEveryone()
			} else {
				m.RevokeEveryoneEdit()
			}
			return nil
		})
	case SetVisibilityCommand:
		return h.mutateGrants(ctx, cmd.MemoryID, cmd.PrincipalID, func(m *entities.Memory) error {
			if cmd.Public {
				m.MakePublic()
			} else {
				m.MakePrivate()
			}
			return nil
		})
	default:
		return pkgerrors.NewInternalError("unexpected command type")
	}
}

// resolveAccount checks the grantee actually exists before granting
func (h *SharingHandler) resolveAccount(ctx context.Context, accountID string) (valueobjects.AccountID, error) {
	id, err := valueobjects.NewAccountIDFromString(accountID)
	if err != nil {
		return valueobjects.AccountID{}, pkgerrors.NewValidationError("invalid account id")
	}
	if _, err := h.accounts.Load(ctx, id); err != nil {
		if pkgerrors.IsNotFound(err) {
			return valueobjects.AccountID{}, pkgerrors.NewNotFoundError("account")
		}
		return valueobjects.AccountID{}, err
	}
	return id, nil
}

func (h *SharingHandler) mutateGrants(ctx context.Context, memoryID, principalID string, mutate func(*entities.Memory) error) error {
	memory, _, err := loadAuthorizedMemory(ctx, h.memories, memoryID, principalID, permissions.ActionUpdateMemoryMetadata)
	if err != nil {
		return err
	}

	if err := mutate(memory); err != nil {
		return err
	}

	if err := h.memories.Save(ctx, memory); err != nil {
		return err
	}
	memory.MarkEventsAsCommitted()
	return nil
}
