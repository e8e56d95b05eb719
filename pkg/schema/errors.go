package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUnknownKind     = "UNKNOWN_KIND"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeReadOnly        = "READ_ONLY"
	ErrCodeCorruptSnapshot = "CORRUPT_SNAPSHOT"
	ErrCodeScript          = "SCRIPT_ERROR"
	ErrCodeExpression      = "EXPRESSION_ERROR"
	ErrCodeStore           = "STORE_ERROR"
	ErrCodeIO              = "IO_ERROR"
)

// DiagramError is the structured error type for all diagram operations.
type DiagramError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	ItemID  string         `json:"item_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *DiagramError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("[%s] item %s: %s", e.Code, e.ItemID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DiagramError) Unwrap() error {
	return e.Cause
}

// NewError creates a new DiagramError.
func NewError(code, message string) *DiagramError {
	return &DiagramError{Code: code, Message: message}
}

// NewErrorf creates a new DiagramError with a formatted message.
func NewErrorf(code, format string, args ...any) *DiagramError {
	return &DiagramError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithItem attaches an item ID to the error.
func (e *DiagramError) WithItem(itemID string) *DiagramError {
	e.ItemID = itemID
	return e
}

// WithCause attaches an underlying cause.
func (e *DiagramError) WithCause(err error) *DiagramError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *DiagramError) WithDetails(details map[string]any) *DiagramError {
	e.Details = details
	return e
}

// HasCode reports whether err (or anything it wraps) is a DiagramError with the given code.
func HasCode(err error, code string) bool {
	var de *DiagramError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}
