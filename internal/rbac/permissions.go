// Package rbac holds the role to permission table and the pure predicates the
// HTTP gates are built from. Nothing here performs I/O.
package rbac

import (
	"github.com/Elvismn/Scholalink3.0/internal/models"
)

var rolePermissions = map[models.UserRole]models.PermissionSet{
	models.RoleSuperAdmin: {
		CanManageUsers:     true,
		CanManageStudents:  true,
		CanManageStaff:     true,
		CanManageInventory: true,
		CanViewAnalytics:   true,
	},
	models.RoleAdmin: {
		CanManageUsers:     true,
		CanManageStudents:  true,
		CanManageStaff:     true,
		CanManageInventory: true,
		CanViewAnalytics:   true,
	},
	models.RoleStaff: {
		CanManageInventory: true,
	},
	models.RoleTeacher: {
		CanManageStudents: true,
	},
	models.RoleParent: {},
}

// PermissionsForRole returns the permission set for an exact role match and the
// parent (least privilege) set for anything unrecognised.
func PermissionsForRole(role string) models.PermissionSet {
	if perms, ok := rolePermissions[models.UserRole(role)]; ok {
		return perms
	}
	return rolePermissions[models.RoleParent]
}

// HasPermission reports whether the role grants the named permission.
func HasPermission(role string, permission models.Permission) bool {
	return PermissionsForRole(role).Has(permission)
}

// PublicView projects a user into its client-safe shape with derived permissions.
func PublicView(u *models.User) models.PublicUser {
	return models.PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		Profile:     u.Profile,
		Permissions: PermissionsForRole(string(u.Role)),
		IsActive:    u.IsActive,
		LastLogin:   u.LastLogin,
		LoginCount:  u.LoginCount,
		CreatedAt:   u.CreatedAt,
	}
}

// PublicViews maps PublicView over a slice.
func PublicViews(users []models.User) []models.PublicUser {
	out := make([]models.PublicUser, 0, len(users))
	for i := range users {
		out = append(out, PublicView(&users[i]))
	}
	return out
}
