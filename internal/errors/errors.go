// Package errors holds the service error taxonomy and its transport mappings.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller should react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindForbidden
	KindConflict
	KindTransient
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// Error is a classified service error. Msg is safe to show to clients; Err is
// the underlying cause and is only logged.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrForbidden) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrTransient       = &Error{Kind: KindTransient}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
)

// KindOf reports the kind of err, KindInternal when it is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// InvalidArgument is a caller error; retrying will not help.
func InvalidArgument(msg string) error {
	return &Error{Kind: KindInvalidArgument, Msg: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// Forbidden is a policy violation such as a block or missing membership.
func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

func Unauthenticated(msg string) error {
	return &Error{Kind: KindUnauthenticated, Msg: msg}
}

// Transient wraps a persistence or broadcast failure. Operations are atomic or
// idempotent, so the whole call is safe to retry.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindTransient, Msg: op + " failed, retry later", Err: err}
}
