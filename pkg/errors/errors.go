package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code to a response status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrInvalidState, ErrCapacityExceeded, ErrConflict:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Slug is the client-facing error code.
func (e *AppError) Slug() string {
	switch e.Code {
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrValidation:
		return "VALIDATION_ERROR"
	case ErrUnauthenticated:
		return "UNAUTHENTICATED"
	case ErrUnauthorized:
		return "UNAUTHORIZED"
	case ErrInvalidState:
		return "INVALID_STATE"
	case ErrCapacityExceeded:
		return "CAPACITY_EXCEEDED"
	case ErrConflict:
		return "CONFLICT"
	case ErrRateLimited:
		return "RATE_LIMITED"
	case ErrTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		return "INTERNAL"
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidation
	ErrUnauthenticated
	ErrUnauthorized
	ErrInternal
	ErrInvalidState
	ErrCapacityExceeded
	ErrConflict
	ErrRateLimited
	ErrTooLarge
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func Validation(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

func InvalidState(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    ErrInvalidState,
		Message: fmt.Sprintf(format, args...),
	}
}

func CapacityExceeded(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    ErrCapacityExceeded,
		Message: fmt.Sprintf(format, args...),
	}
}

func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

// Unauthorized means the actor is known but lacks the role or relationship for the action.
func Unauthorized(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: fmt.Sprintf(format, args...),
	}
}

func Unauthenticated(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthenticated,
		Message: "unauthenticated",
		Err:     err,
	}
}

func RateLimited() *AppError {
	return &AppError{
		Code:    ErrRateLimited,
		Message: "rate limit exceeded",
	}
}

func TooLarge(limit int64) *AppError {
	return &AppError{
		Code:    ErrTooLarge,
		Message: fmt.Sprintf("request body exceeds %d bytes", limit),
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool {
	return IsCode(err, ErrNotFound)
}
