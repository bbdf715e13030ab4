// Package apperr provides structured application errors with a closed code set.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeAuthorizationFailed  = "AUTHORIZATION_FAILED"

	// Transport errors
	CodeNetworkError    = "NETWORK_ERROR"
	CodeRateLimited     = "RATE_LIMITED"
	CodeServerError     = "SERVER_ERROR"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeTimeout         = "TIMEOUT"

	// Request errors
	CodeNotFound   = "NOT_FOUND"
	CodeBadRequest = "BAD_REQUEST"

	// Local errors
	CodeConfigError   = "CONFIG_ERROR"
	CodeCalendarError = "CALENDAR_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
)

// AppError represents a structured application error.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// IsRetryable reports whether the failure is transient. Auth, validation and
// configuration failures need operator action and are never retried.
func (e *AppError) IsRetryable() bool {
	switch e.Code {
	case CodeNetworkError, CodeRateLimited, CodeServerError, CodeTimeout:
		return true
	default:
		return false
	}
}

// Constructor functions
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func AuthenticationFailed(message string) *AppError {
	if message == "" {
		message = "authentication failed"
	}
	return &AppError{Code: CodeAuthenticationFailed, Message: message}
}

func AuthorizationFailed(message string) *AppError {
	return &AppError{Code: CodeAuthorizationFailed, Message: message}
}

func Network(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeNetworkError,
		Message: fmt.Sprintf("network error: %s", operation),
		Err:     err,
	}
}

func RateLimited(message string) *AppError {
	if message == "" {
		message = "too many requests"
	}
	return &AppError{Code: CodeRateLimited, Message: message}
}

func ServerError(message string) *AppError {
	return &AppError{Code: CodeServerError, Message: message}
}

func InvalidResponse(message string) *AppError {
	return &AppError{Code: CodeInvalidResponse, Message: message}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func BadRequest(message string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message}
}

func ConfigError(message string) *AppError {
	return &AppError{Code: CodeConfigError, Message: message}
}

func CalendarError(message string) *AppError {
	return &AppError{Code: CodeCalendarError, Message: message}
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal error"
	}
	return &AppError{Code: CodeInternalError, Message: message}
}

func InternalWithError(err error) *AppError {
	return &AppError{Code: CodeInternalError, Message: "internal error", Err: err}
}

// FromHTTPStatus maps a provider HTTP status to the error taxonomy.
func FromHTTPStatus(status int, body string) *AppError {
	msg := fmt.Sprintf("HTTP %d", status)
	if body != "" {
		msg = fmt.Sprintf("HTTP %d: %s", status, body)
	}
	switch {
	case status == http.StatusUnauthorized:
		return AuthenticationFailed(msg)
	case status == http.StatusForbidden:
		return AuthorizationFailed(msg)
	case status == http.StatusNotFound:
		return &AppError{Code: CodeNotFound, Message: msg}
	case status == http.StatusTooManyRequests:
		return RateLimited(msg)
	case status >= 500:
		return ServerError(msg)
	default:
		return InvalidResponse(msg)
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.IsRetryable()
	}
	return false
}
