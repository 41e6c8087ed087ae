package messaging

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrEmptyText            = errors.New("empty message text")
	ErrTextTooLong          = errors.New("message text too long")
	ErrNotFound             = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("not a participant")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrSessionClosed        = errors.New("session closed")
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Kind is one of the sentinel errors above; Msg never carries message text.
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

// IsValidation reports whether err was raised before any store call was made.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrTextTooLong)
}
