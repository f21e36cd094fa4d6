package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest is the public self-registration payload. The role is not
// accepted from clients.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RequestMeta carries caller network details for the audit trail.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// AuthResult is returned by register and login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      PublicUser
}

// TokenClaims is the session token payload: the user id and the registered
// time claims, nothing else.
type TokenClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}
