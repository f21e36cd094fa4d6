package models

// Permission names a capability derived from a role.
type Permission string

const (
	PermManageUsers     Permission = "canManageUsers"
	PermManageStudents  Permission = "canManageStudents"
	PermManageStaff     Permission = "canManageStaff"
	PermManageInventory Permission = "canManageInventory"
	PermViewAnalytics   Permission = "canViewAnalytics"
)

// PermissionSet is the fixed set of capabilities granted to a role.
type PermissionSet struct {
	CanManageUsers     bool `json:"canManageUsers"`
	CanManageStudents  bool `json:"canManageStudents"`
	CanManageStaff     bool `json:"canManageStaff"`
	CanManageInventory bool `json:"canManageInventory"`
	CanViewAnalytics   bool `json:"canViewAnalytics"`
}

// Has looks a permission up by name. Unknown names are never granted.
func (p PermissionSet) Has(name Permission) bool {
	switch name {
	case PermManageUsers:
		return p.CanManageUsers
	case PermManageStudents:
		return p.CanManageStudents
	case PermManageStaff:
		return p.CanManageStaff
	case PermManageInventory:
		return p.CanManageInventory
	case PermViewAnalytics:
		return p.CanViewAnalytics
	}
	return false
}
