package docstore

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (stable for errors.Is).
var (
	ErrNotFound      = errors.New("not_found")
	ErrAlreadyExists = errors.New("already_exists")
	ErrInvalidQuery  = errors.New("invalid_query")
	ErrInvalidInput  = errors.New("invalid_input")
	ErrClosed        = errors.New("closed")
)

// OpError is a typed store error with a stable Op + Kind contract for callers/tests.
// Kind is one of the sentinel kinds above; Msg carries human-readable context.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

func opErr(op string, kind error, msg string) error {
	return OpError{Op: op, Kind: kind, Msg: msg}
}

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAlreadyExists reports whether err represents ErrAlreadyExists.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
