package errors

import (
	"errors"
	"net/http"
)

// Standard error types
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrInternal            = errors.New("internal server error")
)

// Machine-readable error codes returned to callers
const (
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodePreconditionFailed  = "PRECONDITION_FAILED"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeInternal            = "INTERNAL"
)

// AppError represents a structured application error with context
type AppError struct {
	Err        error
	Code       string
	StatusCode int
	Message    string
	Retryable  bool
	Context    map[string]interface{}
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new AppError with the given parameters
func NewAppError(err error, code, message string, statusCode int, retryable bool) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Context:    make(map[string]interface{}),
	}
}

// IsRetryable checks if the error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError

	if errors.As(err, &appErr) {
		return appErr.Retryable
	}

	return errors.Is(err, ErrConcurrencyConflict)
}

// As is re-exported so callers importing this package under the name errors keep access to it.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is re-exported for the same reason as As.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// FromError returns the AppError carried by err, or wraps it as an internal error.
func FromError(err error) *AppError {
	var appErr *AppError

	if errors.As(err, &appErr) {
		return appErr
	}

	return NewInternalError(err.Error())
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrNotFound, CodeNotFound, message, http.StatusNotFound, false)
}

// NewInvalidInputError creates an invalid input error
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrInvalidInput, CodeInvalidInput, message, http.StatusBadRequest, false)
}

// NewUnauthorizedError creates an error for a caller with no relationship to the resource
func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrUnauthorized, CodeUnauthorized, message, http.StatusForbidden, false)
}

// NewUnauthenticatedError creates an error for a request whose caller could not be resolved
func NewUnauthenticatedError(message string) *AppError {
	return NewAppError(ErrUnauthorized, CodeUnauthorized, message, http.StatusUnauthorized, false)
}

// NewInvalidTransitionError creates an error for a status edge the caller may not traverse
func NewInvalidTransitionError(message string) *AppError {
	return NewAppError(ErrInvalidTransition, CodeInvalidTransition, message, http.StatusUnprocessableEntity, false)
}

// NewPreconditionFailedError creates an error for a role-specific rule violation
func NewPreconditionFailedError(message string) *AppError {
	return NewAppError(ErrPreconditionFailed, CodePreconditionFailed, message, http.StatusPreconditionFailed, false)
}

// NewInsufficientStockError creates an error for a reservation that cannot be satisfied
func NewInsufficientStockError(message string) *AppError {
	return NewAppError(ErrInsufficientStock, CodeInsufficientStock, message, http.StatusConflict, false)
}

// NewConcurrencyConflictError creates a retryable optimistic-locking error
func NewConcurrencyConflictError(message string) *AppError {
	return NewAppError(ErrConcurrencyConflict, CodeConcurrencyConflict, message, http.StatusConflict, true)
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrInternal, CodeInternal, message, http.StatusInternalServerError, false)
}
