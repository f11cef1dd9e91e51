// Package auth turns credentials into an Identity and checks roles.
package auth

import (
	"github.com/TNEM22/synera-app-backend/internal/apperror"
	"github.com/TNEM22/synera-app-backend/internal/models"

	"github.com/gofrs/uuid"
)

// Identity is the authenticated caller. Services receive it explicitly.
type Identity struct {
	UserID uuid.UUID
	Role   models.Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// CanAccess reports whether the caller may touch a resource owned by ownerID.
func (i Identity) CanAccess(ownerID uuid.UUID) bool {
	return i.IsAdmin() || (i.UserID != uuid.Nil && i.UserID == ownerID)
}

// RequireRole succeeds when the identity holds one of roles. Admin always
// passes.
func RequireRole(id Identity, roles ...models.Role) error {
	if id.UserID == uuid.Nil {
		return apperror.Unauthorized("You are not logged in! Please log in to get access.")
	}
	if id.IsAdmin() {
		return nil
	}
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return apperror.Forbidden("You do not have permission to perform this action.")
}
