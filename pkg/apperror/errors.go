package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services and repositories.
var (
	// ErrNotFound signals that a referenced aggregate does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNotConfigured signals that a required backing service (database,
	// blob store) is missing its configuration. Callers fail fast rather
	// than silently no-op.
	ErrNotConfigured = errors.New("backing store not configured")
)

// ValidationError carries the offending field so handlers can surface
// field-specific feedback. Raised synchronously before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Message)
}

// NewValidation builds a ValidationError for a single field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExternalServiceError is returned for non-2xx responses from collaborator
// HTTP services. It keeps the raw body so operators can see what the
// upstream actually said.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}
