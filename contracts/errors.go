package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrNilCallback is returned when a call is issued without an invocable
	// continuation. The request is rejected before anything is sent.
	ErrNilCallback = errors.New("callback cannot be nil")

	// ErrCancelled is returned to waiters that were unblocked by endpoint
	// teardown rather than by a genuine reply.
	ErrCancelled = errors.New("call cancelled by endpoint teardown")

	// ErrClosed is returned when an operation is attempted on an endpoint
	// that has already been closed.
	ErrClosed = errors.New("endpoint is closed")
)

// TypeMismatchError reports an inbound message whose declared type does not
// match the type the endpoint was constructed with. It is local to the single
// delivery that triggered it.
type TypeMismatchError struct {
	Tag  string
	Want string
	Got  string
}

// Error implements the error interface
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("tag %s: unexpected message type %s, want %s", e.Tag, e.Got, e.Want)
}

// IsTypeMismatch reports whether err is a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var tm *TypeMismatchError
	return errors.As(err, &tm)
}
