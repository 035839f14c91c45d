package gateway

import (
	"errors"
	"fmt"
)

// ErrorClass is the normalized classification every gateway error carries.
// Agents and the executor branch on the class, never on provider-specific
// error strings.
type ErrorClass string

const (
	// ErrorClassAuth means the credentials were rejected. Not retryable.
	ErrorClassAuth ErrorClass = "auth"
	// ErrorClassPermission means the credentials are valid but lack the
	// right to perform the operation. Not retryable.
	ErrorClassPermission ErrorClass = "permission"
	// ErrorClassRateLimit means the provider throttled the call. Retryable
	// after backing off.
	ErrorClassRateLimit ErrorClass = "rate_limit"
	// ErrorClassConnection means the provider could not be reached or
	// answered with a transient failure. Retryable.
	ErrorClassConnection ErrorClass = "connection"
	// ErrorClassUnknown is everything the adapter could not classify.
	ErrorClassUnknown ErrorClass = "unknown"
)

// Error is a classified failure from a provider call
type Error struct {
	Class    ErrorClass
	Provider string
	Op       string
	Err      error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Class, e.Err)
}

// Unwrap returns the underlying provider error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps a provider error with its classification
func NewError(class ErrorClass, provider, op string, err error) *Error {
	return &Error{Class: class, Provider: provider, Op: op, Err: err}
}

// RateLimited wraps err as a rate-limit failure
func RateLimited(provider, op string, err error) *Error {
	return NewError(ErrorClassRateLimit, provider, op, err)
}

// AuthFailed wraps err as an authentication failure
func AuthFailed(provider, op string, err error) *Error {
	return NewError(ErrorClassAuth, provider, op, err)
}

// Denied wraps err as a permission failure
func Denied(provider, op string, err error) *Error {
	return NewError(ErrorClassPermission, provider, op, err)
}

// ConnectionFailed wraps err as a transient connectivity failure
func ConnectionFailed(provider, op string, err error) *Error {
	return NewError(ErrorClassConnection, provider, op, err)
}

// Classify returns the class of err, or ErrorClassUnknown when err does not
// carry one
func Classify(err error) ErrorClass {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Class
	}
	return ErrorClassUnknown
}

// IsRetryable reports whether err is worth retrying after a backoff
func IsRetryable(err error) bool {
	switch Classify(err) {
	case ErrorClassRateLimit, ErrorClassConnection:
		return true
	default:
		return false
	}
}

// UnavailableError is returned by the Unavailable gateway variants. It marks
// an operation that reached a gateway family no provider was configured for,
// which aborts the plan instead of silently producing empty data.
type UnavailableError struct {
	Family   Family
	Provider string
	Op       string
}

// Error implements the error interface
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s gateway %q is not configured: %s refused", e.Family, e.Provider, e.Op)
}

// IsUnavailable reports whether err came from an unconfigured gateway
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
