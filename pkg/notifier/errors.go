package notifier

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by every persistence backend when a record is absent.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when a requester tries to change content it does not own.
	ErrUnauthorized = errors.New("not authorized")
)

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
