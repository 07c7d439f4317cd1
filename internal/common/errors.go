// Package common defines shared constants and sentinel errors used across
// the vault server layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")

	// Auth errors (missing, malformed or expired session).
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")

	// Access-control errors.
	ErrForbidden = errors.New("forbidden")

	// Input errors. Use ValidationError to attach a user-facing message.
	ErrValidation = errors.New("validation error")

	// Stored ciphertext could not be authenticated while projecting a record.
	ErrDataIntegrity = errors.New("data integrity error")

	// Storage errors. ErrStorageTimeout is retryable by the caller.
	ErrStorage        = errors.New("storage error")
	ErrStorageTimeout = errors.New("storage timeout")
)

// Validation error kinds, returned to clients as machine-readable codes.
const (
	KindFileTypeNotAllowed = "FILE_TYPE_NOT_ALLOWED"
	KindFileTooLarge       = "FILE_TOO_LARGE"
	KindFileEmpty          = "FILE_EMPTY"
	KindInvalidField       = "INVALID_FIELD"
	KindInvalidInput       = "INVALID_INPUT"
	KindWeakPassword       = "WEAK_PASSWORD"
)

// ValidationError describes rejected input. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Kind    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError of the given kind.
func NewValidationError(kind, format string, args ...any) error {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
