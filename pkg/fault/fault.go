// Package fault defines the error taxonomy shared by all MezzoFS
// components.
//
// Commands and handlers tag errors with a Kind so the HTTP layer can map
// them to status codes without string matching, and with a stable Code so
// clients and logs can distinguish individual failures within a kind.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy and HTTP mapping.
type Kind int

const (
	// KindInternal is the default for untagged failures (storage I/O, DB, unknown).
	KindInternal Kind = iota

	// KindValidation covers bad names, paths, sizes and enum values.
	KindValidation

	// KindNotFound covers missing entities, parents, sessions and events.
	KindNotFound

	// KindConflict covers duplicate names, circular moves, already-trashed
	// targets, sync-in-progress, non-empty folders and files in use.
	KindConflict

	// KindPrecondition covers entities in the wrong state for an operation.
	KindPrecondition

	// KindCapacity covers admission-control rejections.
	KindCapacity

	// KindUnavailable covers the NAS traffic gate.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindPrecondition:
		return "PRECONDITION"
	case KindCapacity:
		return "CAPACITY"
	case KindUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// Error is a tagged error carrying a Kind, a stable machine-readable Code
// and an optional wrapped cause.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports equality by Kind and Code so sentinel instances can be used
// with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// New creates a tagged error.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Newf creates a tagged error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error. A nil cause yields nil.
func Wrap(err error, kind Kind, code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Untagged errors are
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the stable code from an error chain, or "INTERNAL" for
// untagged errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// Chain renders the full cause chain of err, outermost first, for
// alert-grade log lines.
func Chain(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return s
		}
		err = next
		s += " <- " + err.Error()
	}
}
