package core

import (
	"fmt"
)

// Error is the canonical error type for the client core.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrConnection     ErrorType = "connection_error"
	ErrProtocol       ErrorType = "protocol_error"
	ErrSend           ErrorType = "send_error"
	ErrResource       ErrorType = "resource_error"
	ErrTimeout        ErrorType = "timeout_error"
	ErrAPI            ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewAuthenticationError creates an authentication error.
// Authentication errors are terminal: the caller must re-authenticate.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewConnectionError creates a transient connection error.
func NewConnectionError(message string) *Error {
	return &Error{
		Type:    ErrConnection,
		Message: message,
	}
}

// NewProtocolError creates an error for a malformed or unexpected frame.
func NewProtocolError(message string) *Error {
	return &Error{
		Type:    ErrProtocol,
		Message: message,
	}
}

// NewSendError creates an error for a write attempted on a closed channel.
func NewSendError(message string) *Error {
	return &Error{
		Type:    ErrSend,
		Message: message,
	}
}

// NewResourceError creates an error for a missing local resource, such as a
// denied microphone permission.
func NewResourceError(message string) *Error {
	return &Error{
		Type:    ErrResource,
		Message: message,
	}
}

// NewTimeoutError creates an error for a bounded wait that expired.
func NewTimeoutError(message string) *Error {
	return &Error{
		Type:    ErrTimeout,
		Message: message,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewLockedError creates an authentication error for a locked device,
// carrying the remaining lockout duration in seconds.
func NewLockedError(message string, remainingSeconds int) *Error {
	return &Error{
		Type:       ErrAuthentication,
		Message:    message,
		Code:       "device_locked",
		RetryAfter: &remainingSeconds,
	}
}

// IsRetryable returns true if the operation that produced the error may be
// retried without user intervention.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrConnection, ErrTimeout, ErrAPI:
		return true
	default:
		return false
	}
}
