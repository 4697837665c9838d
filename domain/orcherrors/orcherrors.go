// Package orcherrors defines the error taxonomy used across the
// orchestration core. Errors are kinds, not a hierarchy of types: a single
// Error struct carries a Kind plus a message and optional cause,
// preserving chains for errors.Is/As, covering the handful of kinds the
// HTTP and strategy boundaries need to distinguish.
package orcherrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure. HTTP handlers map Kind to a status
// code; strategies map it to a terminal ExecutionResult.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindNotFound           Kind = "NotFound"
	KindConflict           Kind = "ConflictError"
	KindServiceUnavailable Kind = "ServiceUnavailable"
	KindTimeout            Kind = "Timeout"
	KindTransport          Kind = "TransportError"
	KindCancelled          Kind = "Cancelled"
	KindInternal           Kind = "InternalError"
)

// Error is the structured error type every package in this module returns
// for anticipated failure modes. It preserves an optional cause so callers
// can still use errors.Is/errors.As against the wrapped error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, orcherrors.New(orcherrors.KindNotFound, "")) style
// checks, or more commonly use KindOf below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err is
// not an *Error (or is nil, in which case it reports "" and ok=false).
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindInternal, false
}

// HTTPStatus maps a Kind to the HTTP status code the API surfaces it as.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindServiceUnavailable, KindTransport:
		return http.StatusServiceUnavailable
	case KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Validation is a convenience constructor for a KindValidation error.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// NotFound is a convenience constructor for a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// Conflict is a convenience constructor for a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

// Internal is a convenience constructor for a KindInternal error.
func Internal(format string, args ...any) *Error {
	return New(KindInternal, fmt.Sprintf(format, args...))
}
