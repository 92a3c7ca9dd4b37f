package commands

import (
	"context"

	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/domain/permissions"
	pkgerrors "keepsake-backend/pkg/errors"
)

// loadAuthorizedMemory parses the ids, loads the memory and gates the
// action through the permission engine. A missing memory comes back as
// forbidden, indistinguishable from a denied one, unless the principal
// could read it (nothing to read means nothing to reveal either).
func loadAuthorizedMemory(
	ctx context.Context,
	memories ports.MemoryRepository,
	memoryID, principalID string,
	action permissions.Action,
) (*entities.Memory, valueobjects.AccountID, error) {
	mid, err := valueobjects.NewMemoryIDFromString(memoryID)
	if err != nil {
		return nil, valueobjects.AccountID{}, pkgerrors.NewValidationError("invalid memory id")
	}
	principal, err := valueobjects.NewAccountIDFromString(principalID)
	if err != nil {
		return nil, valueobjects.AccountID{}, pkgerrors.NewValidationError("invalid principal id")
	}

	memory, err := memories.Load(ctx, mid)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, principal, pkgerrors.NewForbiddenError("")
		}
		return nil, principal, err
	}

	resource := permissions.ResourceFromMemory(memory)
	if !permissions.Decide(principal, action, resource).Allowed() {
		// If the principal can at least read the memory, the denial may
		// say the memory exists; otherwise it must not.
		if permissions.Decide(principal, permissions.ActionReadMemory, resource).Allowed() {
			return nil, principal, pkgerrors.NewForbiddenError("insufficient rights for this operation")
		}
		return nil, principal, pkgerrors.NewForbiddenError("")
	}

	return memory, principal, nil
}
