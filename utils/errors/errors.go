package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a custom error type for API responses
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

// Error returns the error message
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code, message string, status int, details ...string) *APIError {
	err := &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

var (
	ErrUnauthenticated    = NewAPIError("UNAUTHENTICATED", "Authentication required", http.StatusUnauthorized)
	ErrUnauthorized       = NewAPIError("UNAUTHORIZED", "Caller may not act as this principal", http.StatusForbidden)
	ErrInvalidArgument    = NewAPIError("INVALID_ARGUMENT", "Invalid request data", http.StatusBadRequest)
	ErrNotFound           = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrAlreadyExists      = NewAPIError("ALREADY_EXISTS", "Resource already exists", http.StatusConflict)
	ErrFailedPrecondition = NewAPIError("FAILED_PRECONDITION", "Session lacks data needed to proceed", http.StatusPreconditionFailed)
	ErrInternal           = NewAPIError("INTERNAL", "Internal server error", http.StatusInternalServerError)
	ErrPermissionDenied   = NewAPIError("PERMISSION_DENIED", "Admin privileges required", http.StatusForbidden)
)

func Wrap(err error, code, message string, status int) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewAPIError(code, message, status, err.Error())
}

// CodeOf returns the taxonomy code of err, or "INTERNAL" for anything
// that is not an APIError.
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternal.Code
}

// IsNotFound reports whether err carries the NOT_FOUND code. Request
// resolution races surface as NOT_FOUND and callers are expected to
// swallow them, so this check comes up a lot.
func IsNotFound(err error) bool {
	return err != nil && CodeOf(err) == ErrNotFound.Code
}
