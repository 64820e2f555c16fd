package model

import (
	"errors"
	"fmt"
)

// Common errors used across the application
var (
	// Lookup errors
	ErrNotFound            = errors.New("not found")
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("session %w", ErrNotFound)
	ErrCollectibleNotFound = fmt.Errorf("collectible %w", ErrNotFound)

	// Account errors
	ErrUsernameExists = errors.New("username already exists")

	// Presence errors
	ErrConnectionGone = errors.New("connection is no longer registered")
	ErrUnknownAvatar  = errors.New("unknown dragon")

	// ErrTransport is wrapped when a message cannot be handed to a connection
	ErrTransport = errors.New("transport error")
)

// AuthErrorKind classifies authentication and authorization failures
type AuthErrorKind string

const (
	AuthInvalidCredentials AuthErrorKind = "invalid_credentials"
	AuthExpired            AuthErrorKind = "expired"
	AuthInvalid            AuthErrorKind = "invalid"
	AuthForbidden          AuthErrorKind = "forbidden"
)

// AuthError is returned for every authentication or authorization failure.
// Callers must treat Expired and Invalid alike and re-authenticate.
type AuthError struct {
	Kind AuthErrorKind
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case AuthInvalidCredentials:
		return "invalid credentials"
	case AuthExpired:
		return "session expired"
	case AuthInvalid:
		return "invalid session"
	case AuthForbidden:
		return "forbidden"
	default:
		return "authentication failed"
	}
}

// Is matches any AuthError of the same kind
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// Auth error sentinels
var (
	ErrInvalidCredentials = &AuthError{Kind: AuthInvalidCredentials}
	ErrSessionExpired     = &AuthError{Kind: AuthExpired}
	ErrSessionInvalid     = &AuthError{Kind: AuthInvalid}
	ErrForbidden          = &AuthError{Kind: AuthForbidden}
)

// ValidationErrorKind classifies rejected input
type ValidationErrorKind string

const (
	ValidationOutOfRange ValidationErrorKind = "out_of_range"
	ValidationMalformed  ValidationErrorKind = "malformed"
)

// ValidationError rejects a single operation because one field broke a constraint
type ValidationError struct {
	Kind    ValidationErrorKind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches a ValidationError of the same kind. A target with a Field set
// must also match the field.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok || t.Kind != e.Kind {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

// Validation error sentinels for errors.Is
var (
	ErrOutOfRange = &ValidationError{Kind: ValidationOutOfRange, Message: "value out of range"}
	ErrMalformed  = &ValidationError{Kind: ValidationMalformed, Message: "malformed value"}
)

// OutOfRange creates an out-of-range validation error for a field
func OutOfRange(field, message string) *ValidationError {
	return &ValidationError{Kind: ValidationOutOfRange, Field: field, Message: message}
}

// Malformed creates a malformed-input validation error for a field
func Malformed(field, message string) *ValidationError {
	return &ValidationError{Kind: ValidationMalformed, Field: field, Message: message}
}
