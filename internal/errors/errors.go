package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a write collided with existing data.
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnauthenticated indicates no usable session accompanied the request.
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	// ErrCodeForbidden indicates the caller's role does not permit the operation.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeUpstream indicates the HR backend or identity provider failed.
	ErrCodeUpstream ErrorCode = "upstream"
	ErrCodeTimeout  ErrorCode = "timeout"
	ErrCodeCanceled ErrorCode = "canceled"
	// ErrCodeMisconfigured indicates wiring the portal cannot recover from at request time.
	ErrCodeMisconfigured ErrorCode = "misconfigured"
	ErrCodeInternal      ErrorCode = "internal"
)

// statusClientClosedRequest is the de facto status for a caller that hung up.
const statusClientClosedRequest = 499

// Messages shown to users when the HR backend fails. Backend detail is logged, never shown.
const (
	msgBackendRefused     = "The HR service refused this request."
	msgBackendNotFound    = "Not found."
	msgBackendTimeout     = "The HR service took too long to respond."
	msgBackendUnavailable = "The HR service is unavailable right now."
)

// AppError is an error with a code the HTTP layer can report.
// It supports errors.Is and errors.As through Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	// Field names the offending input for validation errors.
	Field string
	Cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError without a cause.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidationField creates a validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

// Unauthenticated creates an unauthenticated error.
func Unauthenticated(message string) *AppError {
	return New(ErrCodeUnauthenticated, message)
}

// Misconfigured wraps a wiring fault.
func Misconfigured(cause error) *AppError {
	return &AppError{Code: ErrCodeMisconfigured, Message: "portal is misconfigured", Cause: cause}
}

// Wrap wraps err with a code and message. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// FromBackendStatus classifies a failed HR backend call by the status it returned.
// A status of 0 means no response arrived. The backend's refusals and misses pass
// through; everything else is the backend's fault, not the caller's.
func FromBackendStatus(status int, cause error) *AppError {
	switch {
	case errors.Is(cause, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: cause}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AppError{Code: ErrCodeForbidden, Message: msgBackendRefused, Cause: cause}
	case status == http.StatusNotFound:
		return &AppError{Code: ErrCodeNotFound, Message: msgBackendNotFound, Cause: cause}
	case status == http.StatusGatewayTimeout || errors.Is(cause, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: msgBackendTimeout, Cause: cause}
	default:
		return &AppError{Code: ErrCodeUpstream, Message: msgBackendUnavailable, Cause: cause}
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps an error to the HTTP status it should be reported with.
// Errors that are not AppErrors map to 500.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUpstream:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
