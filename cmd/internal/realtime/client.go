package realtime

import (
	"sync"

	v1 "github.com/raj783e/campus/shared/contracts/portal/v1"
)

// Client is the outbound half of one websocket connection.
//
// Send is never closed: session renders race with shutdown and a send on a closed
// channel would panic. done tells the writer and the renders to stop.
type Client struct {
	SessionID string
	Send      chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = wsMinSendQueueSize
	}
	return &Client{
		SessionID: sessionID,
		Send:      make(chan v1.Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close is idempotent and does not close Send.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// TrySend queues env without blocking. It fails when the client is closed or the
// queue is full.
func (c *Client) TrySend(env v1.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
