package actions

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or invalid field in a request or payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedTypeError is returned for an action type with no registered handler.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported action type %q", e.Type)
}

// ExecutionError wraps a handler failure for one action.
type ExecutionError struct {
	ActionID string
	Kind     Kind
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing %s action %s: %v", e.Kind, e.ActionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnsupported reports whether err is, or wraps, an UnsupportedTypeError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedTypeError
	return errors.As(err, &ue)
}
