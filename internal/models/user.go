package models

import "time"

// UserRole represents the closed set of roles known to the access layer.
type UserRole string

const (
	RoleSuperAdmin UserRole = "super_admin"
	RoleAdmin      UserRole = "admin"
	RoleStaff      UserRole = "staff"
	RoleTeacher    UserRole = "teacher"
	RoleParent     UserRole = "parent"
)

// Roles lists every valid role, most privileged first.
var Roles = []UserRole{RoleSuperAdmin, RoleAdmin, RoleStaff, RoleTeacher, RoleParent}

// Valid reports whether r is one of the enumerated roles.
func (r UserRole) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Profile carries display details that the access layer passes through untouched.
type Profile struct {
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Phone     string `db:"phone" json:"phone,omitempty"`
	Avatar    string `db:"avatar" json:"avatar,omitempty"`
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// User represents an account stored in the users table.
type User struct {
	ID           string   `db:"id" json:"id"`
	Email        string   `db:"email" json:"email"`
	PasswordHash string   `db:"password_hash" json:"-"`
	Role         UserRole `db:"role" json:"role"`
	Profile      `json:"profile"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	LoginCount   int        `db:"login_count" json:"login_count"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// PublicUser is the client-safe projection of a User, with permissions derived
// from the role at read time.
type PublicUser struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	Role        UserRole      `json:"role"`
	Profile     Profile       `json:"profile"`
	Permissions PermissionSet `json:"permissions"`
	IsActive    bool          `json:"is_active"`
	LastLogin   *time.Time    `json:"last_login,omitempty"`
	LoginCount  int           `json:"login_count"`
	CreatedAt   time.Time     `json:"created_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Search    string
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	CurrentPage int  `json:"current_page"`
	Limit       int  `json:"limit"`
	TotalPages  int  `json:"total_pages"`
	TotalUsers  int  `json:"total_users"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

// NewPagination derives page metadata from the requested page, page size and total.
func NewPagination(page, limit, total int) *Pagination {
	if limit <= 0 {
		limit = 1
	}
	totalPages := (total + limit - 1) / limit
	return &Pagination{
		CurrentPage: page,
		Limit:       limit,
		TotalPages:  totalPages,
		TotalUsers:  total,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}
