// Package errs defines the error taxonomy shared by every component.
// Callers switch on Kind rather than matching strings, and every
// constructor wraps an underlying cause so the chain survives fmt.Errorf("%w").
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the categories the engine and its
// callers (schedulers, HTTP handlers, CLI commands) need to branch on.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindAlreadyExists  Kind = "already_exists"
	KindInvalidInput   Kind = "invalid_input"
	KindUnauthorized   Kind = "unauthorized"
	KindTransientRPC   Kind = "transient_rpc"
	KindStrategyError  Kind = "strategy_error"
	KindPersistence    Kind = "persistence_error"
	KindFatal          Kind = "fatal"
)

// Error is the concrete error type the constructors below return. Wrap
// with fmt.Errorf("...: %w", err) freely; Kind survives.
type Error struct {
	Kind    Kind
	Op      string
	Cause   error
	Message string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Cause: cause}
}

func NotFound(op, msg string, cause error) error      { return new(KindNotFound, op, msg, cause) }
func AlreadyExists(op, msg string, cause error) error { return new(KindAlreadyExists, op, msg, cause) }
func InvalidInput(op, msg string, cause error) error  { return new(KindInvalidInput, op, msg, cause) }
func Unauthorized(op, msg string, cause error) error  { return new(KindUnauthorized, op, msg, cause) }
func TransientRPC(op, msg string, cause error) error  { return new(KindTransientRPC, op, msg, cause) }
func Strategy(op, msg string, cause error) error      { return new(KindStrategyError, op, msg, cause) }
func Persistence(op, msg string, cause error) error   { return new(KindPersistence, op, msg, cause) }
func Fatal(op, msg string, cause error) error         { return new(KindFatal, op, msg, cause) }

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err does not wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the caller should back off and try again
// rather than surface the error to the user immediately.
func Retryable(err error) bool {
	return Is(err, KindTransientRPC)
}
