package core

// errors.go defines the error taxonomy shared by all core services:
//
//  1. Not-found: an id does not resolve, or an entity does not belong to
//     the expected parent. Always checked before any other validation.
//  2. State errors: an operation conflicts with the current lifecycle
//     state (invalid approval transition, deleting an approved version,
//     restoring over an approved baseline, CSV column mismatch).
//  3. Validation errors: malformed CSV input. Collected as a list and
//     never partially applied.
//
// Anything else is an unexpected storage failure and is propagated
// wrapped, rolling back the enclosing transaction.

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that an entity id did not resolve or did not
// belong to the expected parent. Wrap with context: fmt.Errorf("version
// %s: %w", id, ErrNotFound).
var ErrNotFound = errors.New("not found")

// StateError reports an operation that conflicts with the current
// lifecycle state. It is caller-recoverable and carries a message
// suitable for end users.
type StateError struct {
	Message string
}

func (e *StateError) Error() string {
	return e.Message
}

// NewStateError formats a StateError.
func NewStateError(format string, args ...any) *StateError {
	return &StateError{Message: fmt.Sprintf(format, args...)}
}

// CellError is a single CSV validation failure with enough context to
// locate and fix the offending value.
type CellError struct {
	Row      int      `json:"row"`      // 1-indexed content row, +1 for the header line
	Column   string   `json:"column"`   // column name
	Expected DataType `json:"expected"` // the type the value failed against
	Value    string   `json:"value"`    // the offending value
	Message  string   `json:"message"`  // human-readable fix suggestion
}

func (e CellError) Error() string {
	return fmt.Sprintf("row %d, column %q: %s", e.Row, e.Column, e.Message)
}

// ValidationError is the aggregate CSV validation failure. Errors holds
// at most MaxValidationErrors entries; Truncated reports whether more
// failures exist beyond the cap.
type ValidationError struct {
	Errors    []CellError `json:"errors"`
	Truncated bool        `json:"truncated"`
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Errors) == 0:
		return "validation failed"
	case e.Truncated:
		return fmt.Sprintf("found more than %d validation errors (showing first %d); first error at %s",
			MaxValidationErrors, MaxValidationErrors, e.Errors[0].Error())
	case len(e.Errors) == 1:
		return fmt.Sprintf("validation error at %s", e.Errors[0].Error())
	default:
		return fmt.Sprintf("found %d validation errors; first error at %s", len(e.Errors), e.Errors[0].Error())
	}
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStateError reports whether err is a lifecycle-state conflict.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// IsValidationError reports whether err is a CSV validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
