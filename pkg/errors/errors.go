package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable failure identifier.
type Code string

const (
	CodeDuplicateEmail Code = "DUPLICATE_EMAIL"
	CodeNotFound       Code = "NOT_FOUND"
	CodeUpdateFailed   Code = "UPDATE_FAILED"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Common application errors
var (
	ErrInvalidArgument = NewValidationError("", "invalid argument")
	ErrInternal        = NewInternalError("internal server error", nil)
)

// BusinessError is a business-rule violation returned as a value.
type BusinessError struct {
	Code    Code
	Message string
}

// NewDuplicateEmailError reports that another record already holds email.
func NewDuplicateEmailError(email string) *BusinessError {
	return &BusinessError{
		Code:    CodeDuplicateEmail,
		Message: fmt.Sprintf("a user with email %q already exists", email),
	}
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resource, id string) *BusinessError {
	return &BusinessError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}
}

// NewUpdateFailedError reports that the store refused an update.
func NewUpdateFailedError(resource, id string) *BusinessError {
	return &BusinessError{
		Code:    CodeUpdateFailed,
		Message: fmt.Sprintf("failed to update %s %s", resource, id),
	}
}

// Error implements the error interface
func (e *BusinessError) Error() string {
	return e.Message
}

// HTTPStatus returns the HTTP status for this error
func (e *BusinessError) HTTPStatus() int {
	switch e.Code {
	case CodeDuplicateEmail:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError represents a validation failure with field-level details
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// HTTPStatus returns the HTTP status for this error
func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

// InternalError represents an internal server error with context
type InternalError struct {
	Message string
	Err     error
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *InternalError {
	return &InternalError{
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface
func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *InternalError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status for this error
func (e *InternalError) HTTPStatus() int {
	return http.StatusInternalServerError
}

// HTTPStatuser is implemented by errors that map to an HTTP status
type HTTPStatuser interface {
	HTTPStatus() int
}

// CodeOf returns the failure code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return CodeValidation
	}
	return CodeInternal
}

// HTTPStatusOf returns the HTTP status for err, defaulting to 500.
func HTTPStatusOf(err error) int {
	var hs HTTPStatuser
	if errors.As(err, &hs) {
		return hs.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
