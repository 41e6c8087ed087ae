package realtime

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raj783e/campus/cmd/internal/messaging"
	v1 "github.com/raj783e/campus/shared/contracts/portal/v1"
)

func TestSessionView_RendersEnvelopes(t *testing.T) {
	t.Parallel()

	c := NewClient("s1", wsMinSendQueueSize)
	v := newSessionView(c, discardLogger(), nil)

	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	v.Messages(messaging.MessagesView{
		ConversationID: "c1",
		Messages: []messaging.MessageView{
			{ID: "m1", Text: "hi", SenderName: "Alice", Timestamp: ts, Direction: messaging.DirectionSent},
		},
	})
	v.PanelError(messaging.PanelConversations, errors.New("db down"))

	env := <-c.Send
	if env.Type != v1.TypeMessagesSnapshot || env.V != v1.Version || env.ID == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var p v1.MessagesSnapshotPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.ConversationID != "c1" || len(p.Messages) != 1 || p.Messages[0].Direction != "sent" {
		t.Fatalf("unexpected payload: %+v", p)
	}

	env = <-c.Send
	var pe v1.PanelErrorPayload
	if err := json.Unmarshal(env.Payload, &pe); err != nil {
		t.Fatal(err)
	}
	if pe.Panel != "conversations" || pe.Message != "Error loading conversations" {
		t.Fatalf("unexpected panel error: %+v", pe)
	}
}

func TestSessionView_OverflowSignalsOnce(t *testing.T) {
	t.Parallel()

	c := NewClient("s1", wsMinSendQueueSize)
	var overflows atomic.Int32
	v := newSessionView(c, discardLogger(), func() { overflows.Add(1) })

	for range wsMinSendQueueSize {
		v.Unread(true)
	}
	if overflows.Load() != 0 {
		t.Fatal("queue not full yet")
	}

	v.Unread(false)
	if overflows.Load() != 1 {
		t.Fatalf("overflows = %d, want 1", overflows.Load())
	}

	// After close, renders are dropped silently.
	c.Close()
	v.Unread(true)
	if overflows.Load() != 1 {
		t.Fatalf("closed client must not signal overflow, got %d", overflows.Load())
	}
}
