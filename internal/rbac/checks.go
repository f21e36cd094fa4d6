package rbac

import (
	"github.com/Elvismn/Scholalink3.0/internal/models"
	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
)

// CheckRole fails with ErrUnauthenticated when there is no identity and with a
// ForbiddenRole error naming the allowed roles when the caller's role is not listed.
func CheckRole(identity *models.User, allowed ...models.UserRole) error {
	if identity == nil {
		return appErrors.ErrUnauthenticated
	}
	for _, role := range allowed {
		if identity.Role == role {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, role := range allowed {
		names[i] = string(role)
	}
	return appErrors.ForbiddenRole(names)
}

// CheckPermission fails when the caller's role does not grant permission.
func CheckPermission(identity *models.User, permission models.Permission) error {
	if identity == nil {
		return appErrors.ErrUnauthenticated
	}
	if !HasPermission(string(identity.Role), permission) {
		return appErrors.ForbiddenPermission(string(permission))
	}
	return nil
}

// EnsureNotSelf rejects actions an actor attempts on their own account. message
// overrides the default when non-empty.
func EnsureNotSelf(actorID, targetID, message string) error {
	if actorID != "" && actorID == targetID {
		return appErrors.Clone(appErrors.ErrSelfModification, message)
	}
	return nil
}
