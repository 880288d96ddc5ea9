package kv

import (
	"errors"
	"strings"
)

// Error kinds. Backend failures surface as an *Error whose Kind is one of
// these, so callers match them with errors.Is.
var (
	ErrNotSupported = errors.New("kv: backend not supported")
	ErrConnection   = errors.New("kv: connection failed")
	ErrEncoding     = errors.New("kv: cannot encode value")
	ErrDecoding     = errors.New("kv: cannot decode value")
	ErrBackend      = errors.New("kv: backend operation failed")
)

// Argument and lifecycle errors.
var (
	ErrInvalidKey     = errors.New("kv: key must not be empty")
	ErrInvalidTimeout = errors.New("kv: timeout must not be negative")
	ErrClosed         = errors.New("kv: store is closed")
	ErrNilContext     = errors.New("kv: context must not be nil")
)

// Error carries the operation context of a failed call. Kind is one of the
// package error kinds; Err is the underlying cause.
type Error struct {
	Op      string
	Backend string
	Key     string
	Kind    error
	Err     error
}

// NewError classifies err under kind. A nil err yields nil, and an err that is
// already an *Error is returned unchanged so kinds are never re-labelled on
// the way up.
func NewError(op, backend, key string, kind, err error) error {
	if err == nil {
		return nil
	}
	var kvErr *Error
	if errors.As(err, &kvErr) {
		return err
	}
	return &Error{Op: op, Backend: backend, Key: key, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("kv: error")
	}
	if e.Backend != "" {
		b.WriteString(" [")
		b.WriteString(e.Backend)
		b.WriteString("]")
	}
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Key != "" {
		b.WriteString(" ")
		b.WriteString(e.Key)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// backendErr wraps a raw primitive failure as ErrBackend.
func backendErr(op, backend, key string, err error) error {
	return NewError(op, backend, key, ErrBackend, err)
}
