// Package apperr defines the kind-tagged errors returned by stores and services.
// Handlers branch on the Kind, never on the message text.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic callers.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
	KindAuthorization Kind = "AUTHORIZATION"
	KindStorage       Kind = "STORAGE"
)

// Codes that callers may want to match more precisely than the Kind.
const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeForbidden         = "FORBIDDEN"
	CodeSessionNotOpen    = "SESSION_NOT_OPEN"
	CodeSessionOpen       = "SESSION_ALREADY_OPEN"
	CodeDuplicate         = "DUPLICATE"
	CodeLimitExceeded     = "LIMIT_EXCEEDED"
	CodeRegisterLive      = "REGISTER_LIVE"
	CodeNoSequenceBinding = "NO_SEQUENCE_BINDING"
	CodeTimeout           = "TIMEOUT"
)

// Error is the canonical application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithCode returns a copy of e carrying code.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

func newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, string(KindValidation), format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, string(KindNotFound), format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, string(KindConflict), format, args...)
}

// Forbidden is an authorization failure for an identified caller (403).
func Forbidden(format string, args ...any) *Error {
	return newf(KindAuthorization, CodeForbidden, format, args...)
}

// Unauthenticated is an authorization failure with no valid identity (401).
func Unauthenticated(format string, args ...any) *Error {
	return newf(KindAuthorization, CodeUnauthenticated, format, args...)
}

// Storage wraps a persistence failure. Deadline expiry is tagged CodeTimeout.
func Storage(err error, format string, args ...any) *Error {
	e := newf(KindStorage, string(KindStorage), format, args...)
	e.Err = err
	if errors.Is(err, context.DeadlineExceeded) {
		e.Code = CodeTimeout
	}
	return e
}

// KindOf returns the Kind of err, or KindStorage for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// CodeOf returns the code of err, or "" for untagged errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
