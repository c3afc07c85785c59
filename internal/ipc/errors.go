package ipc

import (
	"errors"
	"fmt"
)

// Kind classifies where in the socket or connection lifecycle a failure happened.
type Kind string

const (
	KindCreation Kind = "creation"
	KindAccept   Kind = "accept"
	KindRead     Kind = "read"
	KindDecode   Kind = "decode"
	KindEncode   Kind = "encode"
	KindWrite    Kind = "write"
)

// Kind sentinels for errors.Is matching against *Error values.
var (
	ErrCreation = &Error{Kind: KindCreation}
	ErrAccept   = &Error{Kind: KindAccept}
	ErrRead     = &Error{Kind: KindRead}
	ErrDecode   = &Error{Kind: KindDecode}
	ErrEncode   = &Error{Kind: KindEncode}
	ErrWrite    = &Error{Kind: KindWrite}
)

var (
	ErrAlreadyRunning = errors.New("rstd server already running")
	ErrWouldBlock     = errors.New("no pending connection")
)

// Error is one classified endpoint or protocol failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the classified kind of err, or "" when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ConnectionScoped reports failures caused by a single client exchange.
func ConnectionScoped(err error) bool {
	switch KindOf(err) {
	case KindRead, KindDecode, KindEncode, KindWrite:
		return true
	default:
		return false
	}
}
