// Package errs defines the engine-wide error taxonomy described in the
// design's error handling section: callers switch on these sentinel
// kinds rather than matching error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error so callers can decide whether to
// retry, surface to an API caller, or just log and continue.
type Kind int

const (
	// KindInvalidArguments is a caller-visible precondition failure:
	// unknown parameter, missing required parameter, unknown object id,
	// self-parenting a monitor group. Never retried.
	KindInvalidArguments Kind = iota
	// KindPluginNotFound means the check executable does not exist on disk.
	KindPluginNotFound
	// KindPluginFailed is a normal DOWN signal (exit 2), not an engine error.
	KindPluginFailed
	// KindPluginIOError covers spawn/IO failures and timeouts (UNKNOWN).
	KindPluginIOError
	// KindPersistence is a database connectivity or constraint failure.
	KindPersistence
	// KindGeneric is the catch-all for unexpected conditions.
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArguments:
		return "invalid_arguments"
	case KindPluginNotFound:
		return "plugin_not_found"
	case KindPluginFailed:
		return "plugin_failed"
	case KindPluginIOError:
		return "plugin_io_error"
	case KindPersistence:
		return "persistence_error"
	default:
		return "generic_error"
	}
}

// Error is the concrete error type carried through the engine. SQL text
// is preserved (not swallowed) so operators can correlate a logged
// PersistenceError with the statement that triggered it.
type Error struct {
	Kind    Kind
	Message string
	SQL     string
	Err     error
}

func (e *Error) Error() string {
	if e.SQL != "" {
		return fmt.Sprintf("%s: %s (sql: %s)", e.Kind, e.Message, e.SQL)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WrapSQL wraps a persistence failure, preserving the statement text for
// logging per the Persistence Gateway's failure-mode contract.
func WrapSQL(message, sql string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: message, SQL: sql, Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
