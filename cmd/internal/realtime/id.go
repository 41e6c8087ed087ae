package realtime

import (
	"time"

	"github.com/raj783e/campus/cmd/identity/ids"
)

// NewSessionID returns a ULID identifying one websocket connection in logs and in
// hello.ack.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as a server envelope id, so envelope ids sort
// in send order.
func NewEnvelopeID(now time.Time) string {
	return ids.MustULID(now)
}
