package room

import (
	"errors"
	"fmt"
)

// Error kinds, matchable with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

// opError carries a message that is safe to show the client and, for
// internal failures, the cause that is only logged.
type opError struct {
	kind error
	msg  string
	err  error
}

func (e *opError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *opError) Is(target error) bool { return target == e.kind }

func (e *opError) Unwrap() error { return e.err }

func validation(msg string) error { return &opError{kind: ErrValidation, msg: msg} }
func notFound(msg string) error   { return &opError{kind: ErrNotFound, msg: msg} }
func conflict(msg string) error   { return &opError{kind: ErrConflict, msg: msg} }

func internal(msg string, err error) error {
	return &opError{kind: ErrInternal, msg: msg, err: err}
}

// Message returns the client-facing text for err.
func Message(err error) string {
	var oe *opError
	if errors.As(err, &oe) {
		return oe.msg
	}
	return "Internal server error"
}
