package core

import (
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "unknown agent id",
	}

	expected := "invalid_request_error: unknown agent id"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrAuthentication,
		Message: "device locked",
		Code:    "device_locked",
	}

	expected := "authentication_error: device locked (code: device_locked)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("bad request")
	if err.Type != ErrInvalidRequest {
		t.Errorf("Type = %v, want %v", err.Type, ErrInvalidRequest)
	}
	if err.Message != "bad request" {
		t.Errorf("Message = %q, want %q", err.Message, "bad request")
	}
}

func TestNewAuthenticationError(t *testing.T) {
	err := NewAuthenticationError("invalid token")
	if err.Type != ErrAuthentication {
		t.Errorf("Type = %v, want %v", err.Type, ErrAuthentication)
	}
}

func TestNewLockedError(t *testing.T) {
	err := NewLockedError("device locked", 120)
	if err.Type != ErrAuthentication {
		t.Errorf("Type = %v, want %v", err.Type, ErrAuthentication)
	}
	if err.Code != "device_locked" {
		t.Errorf("Code = %q, want device_locked", err.Code)
	}
	if err.RetryAfter == nil || *err.RetryAfter != 120 {
		t.Errorf("RetryAfter = %v, want 120", err.RetryAfter)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"connection", NewConnectionError("drop"), true},
		{"timeout", NewTimeoutError("playback"), true},
		{"api", NewAPIError("upstream"), true},
		{"authentication", NewAuthenticationError("revoked"), false},
		{"invalid request", NewInvalidRequestError("bad"), false},
		{"send", NewSendError("closed"), false},
		{"resource", NewResourceError("no mic"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
