// Package apperr defines the error taxonomy shared by the resolver, the
// experiment engine, the storage layer, and the HTTP handlers.
//
// Every error surfaced across a package boundary is an *Error carrying one
// of the Kinds below, or wraps one via %w; KindOf reads the Kind with
// errors.As, so a single switch at the HTTP edge can map any error to a
// status code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP status mapping and client handling.
type Kind int

const (
	// KindUnexpected covers programmer-error paths (broken invariants).
	KindUnexpected Kind = iota
	// KindBadArgument covers validation failures: schema, overlap, malformed
	// JSON-logic, missing keys. Reported to the caller verbatim.
	KindBadArgument
	// KindNotFound covers a missing primary key.
	KindNotFound
	// KindUnauthorized covers a missing or mismatched bearer token.
	KindUnauthorized
	// KindDbError covers a persistence failure; the caller sees an opaque
	// message while the detail is logged server-side.
	KindDbError
)

// Error is an apperr-classified error. Message is the caller-facing text;
// Detail, when set, is the underlying cause meant for server-side logs only.
type Error struct {
	Kind    Kind
	Message string
	Detail  error
}

func (e *Error) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Detail)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Detail }

// BadArgument builds a KindBadArgument error with a formatted message.
func BadArgument(format string, args ...any) error {
	return &Error{Kind: KindBadArgument, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(message string) error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// DbError wraps a persistence failure with an opaque caller-facing message.
func DbError(message string, cause error) error {
	return &Error{Kind: KindDbError, Message: message, Detail: cause}
}

// Unexpected wraps a broken-invariant error.
func Unexpected(message string, cause error) error {
	return &Error{Kind: KindUnexpected, Message: message, Detail: cause}
}

// KindOf extracts the Kind from err, defaulting to KindUnexpected when err
// is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
