package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so cloned or wrapped instances still compare equal
// to the predefined sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Authentication and authorization failures. Messages are part of the client
// contract and must not reveal which check failed.
var (
	ErrMissingToken          = New("MISSING_TOKEN", http.StatusUnauthorized, "Access denied. No token provided.")
	ErrInvalidToken          = New("INVALID_TOKEN", http.StatusUnauthorized, "Token is not valid.")
	ErrInactiveOrUnknownUser = New("INACTIVE_OR_UNKNOWN_USER", http.StatusUnauthorized, "Token is not valid or user is inactive.")
	ErrInvalidCredentials    = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "Invalid credentials.")
	ErrUnauthenticated       = New("UNAUTHENTICATED", http.StatusUnauthorized, "Authentication required.")
	ErrForbiddenRole         = New("FORBIDDEN_ROLE", http.StatusForbidden, "Access denied.")
	ErrForbiddenPermission   = New("FORBIDDEN_PERMISSION", http.StatusForbidden, "Insufficient permissions.")
	ErrSelfModification      = New("SELF_MODIFICATION", http.StatusBadRequest, "Cannot modify your own account")
)

// Predefined errors for common scenarios.
var (
	ErrDuplicateEmail = New("DUPLICATE_EMAIL", http.StatusBadRequest, "User already exists with this email.")
	ErrNotFound       = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation     = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal       = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss      = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// ForbiddenRole builds the 403 returned when the caller's role is outside the allowed list.
func ForbiddenRole(roles []string) *Error {
	return Clone(ErrForbiddenRole, "Access denied. Required roles: "+strings.Join(roles, ", "))
}

// ForbiddenPermission builds the 403 returned when the caller lacks a named permission.
func ForbiddenPermission(permission string) *Error {
	return Clone(ErrForbiddenPermission, "Insufficient permissions. Required: "+permission)
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
