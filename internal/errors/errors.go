// Package errors defines the error taxonomy shared by the storage, cache and
// HTTP layers. Callers branch on the error type rather than on messages, which
// is how the fail-open cache managers decide between falling back to a direct
// read and surfacing the failure.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	// ErrorTypeNotFound means the requested resource does not exist.
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeParse means data on disk could not be decoded. It always
	// indicates corruption and is never converted into a default value.
	ErrorTypeParse ErrorType = "PARSE"

	// ErrorTypeIO covers read/write/stat failures of the backing store.
	ErrorTypeIO ErrorType = "IO"

	// ErrorTypeCache is a fault inside the cache subsystem itself.
	ErrorTypeCache ErrorType = "CACHE"

	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

// AppError is the custom error type for the application
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error type onto a response status.
func (e *AppError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NewParse creates a parse error for corrupt data.
func NewParse(message string, err error) error {
	return &AppError{Type: ErrorTypeParse, Message: message, Err: err}
}

// NewIO creates an I/O error.
func NewIO(message string, err error) error {
	return &AppError{Type: ErrorTypeIO, Message: message, Err: err}
}

// NewCacheFault creates an error for an internal cache failure.
func NewCacheFault(message string, err error) error {
	return &AppError{Type: ErrorTypeCache, Message: message, Err: err}
}

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the type of the first AppError in err's chain, or
// ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// HTTPStatus returns the status code for any error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Type checking functions

func is(err error, t ErrorType) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Type == t
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool { return is(err, ErrorTypeNotFound) }

// IsParse checks if an error is a parse error
func IsParse(err error) bool { return is(err, ErrorTypeParse) }

// IsIO checks if an error is an I/O error
func IsIO(err error) bool { return is(err, ErrorTypeIO) }

// IsCacheFault checks if an error originated inside the cache subsystem
func IsCacheFault(err error) bool { return is(err, ErrorTypeCache) }

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool { return is(err, ErrorTypeValidation) }

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool { return is(err, ErrorTypeInternal) }
