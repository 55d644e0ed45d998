package lockerd

import (
	"errors"
	"fmt"
)

// Error represents a locker-domain error with a stable machine-readable code
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeNotFound          = "not_found"
	ErrCodeConflict          = "conflict"
	ErrCodeInvalidSignature  = "invalid_signature"
	ErrCodeStaleSession      = "stale_session"
	ErrCodeWalletUnavailable = "wallet_unavailable"
	ErrCodeWalletError       = "wallet_error"
)

// NewError creates a new domain error
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Errorf creates a new domain error with a formatted message
func Errorf(code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the domain code carried by err, or "" when err is not a
// domain error. Works through wrapped errors.
func CodeOf(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}
