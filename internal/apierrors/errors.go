// Package apierrors provides a standardized error shape for the
// coordinator's HTTP API: a machine-readable code, a human-readable
// message, and the HTTP status code it maps to.
package apierrors

import (
	"fmt"
	"net/http"
)

// AppError is a structured error carrying both a JSON-friendly form and
// the status code the coordinator should reply with.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the JSON body returned for a failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes used across the coordinator and presence-node HTTP surfaces.
const (
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

	// ErrCodeNodeUnknown is returned by /nodes/unregister when the given
	// node id currently owns no vnodes.
	ErrCodeNodeUnknown = "NODE_UNKNOWN"

	// ErrCodeRingExhausted is returned when register's weight request
	// cannot be satisfied because the ring has no free vnodes left.
	ErrCodeRingExhausted = "RING_EXHAUSTED"

	// ErrCodeUserUnrouted is returned by /route when no instance owns the
	// vnode a user hashes to (directory and ring both came up empty).
	ErrCodeUserUnrouted = "USER_UNROUTED"

	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeDirectoryError     = "DIRECTORY_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusFor(code)}
}

func NewWithDetails(code, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details, StatusCode: statusFor(code)}
}

func Wrap(code, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewWithDetails(code, message, details)
}

func statusFor(code string) int {
	switch code {
	case ErrCodeBadRequest, ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeNodeUnknown, ErrCodeUserUnrouted:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeRingExhausted:
		return http.StatusConflict
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeInternalServer, ErrCodeDirectoryError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Code, Message: e.Message, Code: e.Code, Details: e.Details}
}

func BadRequest(message string) *AppError       { return New(ErrCodeBadRequest, message) }
func Unauthorized(message string) *AppError     { return New(ErrCodeUnauthorized, message) }
func Forbidden(message string) *AppError        { return New(ErrCodeForbidden, message) }
func ValidationFailed(message string) *AppError { return New(ErrCodeValidationFailed, message) }

func NodeUnknown(nodeID string) *AppError {
	return New(ErrCodeNodeUnknown, fmt.Sprintf("node %s is not registered", nodeID))
}

func RingExhausted(nodeID string, desired, free int) *AppError {
	return NewWithDetails(ErrCodeRingExhausted,
		fmt.Sprintf("cannot register node %s", nodeID),
		fmt.Sprintf("wanted %d vnodes, only %d free", desired, free))
}

func UserUnrouted(userID string) *AppError {
	return New(ErrCodeUserUnrouted, fmt.Sprintf("no instance currently owns user %s", userID))
}

func InternalServer(message string) *AppError { return New(ErrCodeInternalServer, message) }

func DirectoryError(err error) *AppError {
	return Wrap(ErrCodeDirectoryError, "directory operation failed", err)
}

func ServiceUnavailable(service string) *AppError {
	return New(ErrCodeServiceUnavailable, fmt.Sprintf("%s is currently unavailable", service))
}
