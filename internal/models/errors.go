package models

import "errors"

// Error taxonomy shared by every component. Callers classify results with
// errors.Is; anything that matches none of these is a storage fault.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionInvalid     = errors.New("session invalid")
	ErrCSRFMismatch       = errors.New("csrf token mismatch")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ValidationError reports a missing, malformed or duplicate field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid returns a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

var (
	ErrDuplicateEmail    error = &ValidationError{Field: "email", Message: "email already exists"}
	ErrDuplicateUsername error = &ValidationError{Field: "username", Message: "username already exists"}
)
