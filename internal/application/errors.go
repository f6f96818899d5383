package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when no valid identity accompanies a request.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrForbidden is returned when the acting principal lacks the role for an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a write collides with an existing record.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidCredentials is returned when a username and password do not match.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrTokenInvalid is returned for malformed, expired, revoked or mistyped tokens.
	ErrTokenInvalid = errors.New("application: token invalid")
)

var (
	// ErrSessionNotFound reports a missing class session.
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)
	// ErrUserNotFound reports a missing user account.
	ErrUserNotFound = fmt.Errorf("%w: user", ErrNotFound)
	// ErrAttendanceNotFound reports a missing attendance record for a session.
	ErrAttendanceNotFound = fmt.Errorf("%w: attendance record", ErrNotFound)
	// ErrNoteNotFound reports a missing note, or one owned by someone else.
	ErrNoteNotFound = fmt.Errorf("%w: note", ErrNotFound)
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}
