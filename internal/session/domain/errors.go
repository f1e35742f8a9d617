package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session does not exist or does not belong to the caller.
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned when a create violates a uniqueness constraint.
	ErrConflict = errors.New("session conflict")
	// ErrSessionRevoked is returned when a refresh token belongs to a revoked session.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired is returned when a refresh token belongs to an expired session.
	ErrSessionExpired = errors.New("session expired")
)

// Unique fields that can conflict on create.
const (
	FieldSessionToken   = "session_token"
	FieldRefreshTokenID = "refresh_token_id"
	FieldID             = "id"
)

// ConflictError names the unique field a create collided on. It matches ErrConflict with errors.Is.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s already exists", ErrConflict, e.Field)
}

// Is makes errors.Is(err, ErrConflict) true.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ConflictField returns the conflicting field of err, or "" if err is not a conflict.
func ConflictField(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}
