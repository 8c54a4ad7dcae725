package driver

import (
	"errors"
)

// Error kinds. Every *Error wraps exactly one of these, so callers can branch
// with errors.Is while the message stays the engine's own text.
var (
	// ErrInvalidInput: a path or query cannot be passed to the engine
	// (it contains a NUL byte).
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoConnection: the operation needs an open database.
	ErrNoConnection = errors.New("no connection")
	// ErrOpenFailure: the engine returned no database handle.
	ErrOpenFailure = errors.New("open failure")
	// ErrExecutionFailure: the engine produced a cursor that reports failure
	// (syntax or runtime error in the query).
	ErrExecutionFailure = errors.New("execution failure")
	// ErrSystemFailure: the engine returned no cursor at all.
	ErrSystemFailure = errors.New("system failure")
	// ErrLockFailure: the shared connection slot is poisoned. Not retryable.
	ErrLockFailure = errors.New("lock failure")
)

// Caller-facing texts for failures that do not originate in the engine.
const (
	MsgInvalidPath  = "Invalid path string"
	MsgInvalidQuery = "Invalid query string (contains null byte)"
	MsgNoConnection = "No database is currently open."
	MsgLockFailure  = "Failed to acquire db lock"
)

// Error is a driver failure carrying caller-facing text.
//
// Error() returns Message unchanged: at the boundary the text a user sees is
// exactly what the engine said. Use errors.Is(err, ErrExecutionFailure) and
// friends to recover the kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// NoConnection returns the canonical ErrNoConnection failure.
func NoConnection() *Error { return newError(ErrNoConnection, MsgNoConnection) }

// LockFailure returns the canonical ErrLockFailure failure.
func LockFailure() *Error { return newError(ErrLockFailure, MsgLockFailure) }

// KindOf returns the kind sentinel wrapped by err, or nil if err is not a
// driver error.
func KindOf(err error) error {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return nil
}

// KindName returns a short stable name for err's kind, for logs and audit
// records. Unknown errors report "internal".
func KindName(err error) string {
	switch KindOf(err) {
	case ErrInvalidInput:
		return "invalid_input"
	case ErrNoConnection:
		return "no_connection"
	case ErrOpenFailure:
		return "open_failure"
	case ErrExecutionFailure:
		return "execution_failure"
	case ErrSystemFailure:
		return "system_failure"
	case ErrLockFailure:
		return "lock_failure"
	}
	return "internal"
}
