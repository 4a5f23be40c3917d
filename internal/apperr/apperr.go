// Package apperr holds the error kinds shared by the portal core. Every public
// operation returns one of these (possibly wrapped) for expected conditions.
package apperr

import "errors"

var (
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrSlotConflict        = errors.New("slot is not available")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrStorageCorruption   = errors.New("stored document is corrupt")
)

// Kind returns a stable snake_case name for the kind err wraps, or "internal_error".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAuthorizationDenied):
		return "authorization_denied"
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStorageCorruption):
		return "storage_corruption"
	default:
		return "internal_error"
	}
}
