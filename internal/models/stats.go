package models

import "time"

// UserStats summarises the user base for the admin dashboard.
type UserStats struct {
	TotalUsers   int            `json:"total_users"`
	RoleCounts   map[string]int `json:"role_counts"`
	NewThisMonth int            `json:"new_this_month"`
	ActiveUsers  int            `json:"active_users"`
}

// RoleCount is one row of the role distribution.
type RoleCount struct {
	Role   UserRole `db:"role" json:"role"`
	Count  int      `db:"count" json:"count"`
	Active int      `db:"active" json:"active"`
}

// LoginActivity describes a recent sign-in.
type LoginActivity struct {
	ID         string     `db:"id" json:"id"`
	Email      string     `db:"email" json:"email"`
	Role       UserRole   `db:"role" json:"role"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	LastLogin  *time.Time `db:"last_login" json:"last_login,omitempty"`
	LoginCount int        `db:"login_count" json:"login_count"`
}

// UserAnalytics backs the super-admin analytics view.
type UserAnalytics struct {
	RoleDistribution    []RoleCount     `json:"role_distribution"`
	RecentLogins        []LoginActivity `json:"recent_logins"`
	RecentRegistrations []PublicUser    `json:"recent_registrations"`
}

// SystemStats is the super-admin system overview.
type SystemStats struct {
	TotalUsers   int            `json:"total_users"`
	ActiveUsers  int            `json:"active_users"`
	RecentLogins int            `json:"recent_logins"`
	RoleCounts   map[string]int `json:"role_counts"`
}

// UserCounts aggregates the headline counters in a single pass over users.
type UserCounts struct {
	Total         int `db:"total"`
	Active        int `db:"active"`
	CreatedSince  int `db:"created_since"`
	LoggedInSince int `db:"logged_in_since"`
}
