package apierr

import (
	"errors"
	"fmt"
)

// Kind partitions service failures for transport-level mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindState
	KindStorage
)

// Error is the service error. Field names the offending input when one
// exists; Err carries the underlying cause for logs.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

func NotFound(field, msg string) *Error {
	return &Error{Kind: KindNotFound, Field: field, Msg: msg}
}

func Conflict(field, msg string, err error) *Error {
	return &Error{Kind: KindConflict, Field: field, Msg: msg, Err: err}
}

func State(msg string) *Error {
	return &Error{Kind: KindState, Msg: msg}
}

func Storage(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Msg: msg, Err: err}
}

// KindOf extracts the Kind from anywhere in the error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
