// Package v1 defines the campus portal session protocol v1.
//
// It is shared between the server and clients (including tools/scripts) so the wire
// format has one authoritative definition.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Version is embedded into every envelope.
const Version = 1

// Subprotocol is the WebSocket subprotocol clients must request.
const Subprotocol = "campus.portal.v1"

// Client -> server types.
const (
	TypeHello               = "hello"
	TypeConversationContact = "conversation.contact"
	TypeConversationOpen    = "conversation.open"
	TypeViewOpen            = "view.open"
	TypeViewClose           = "view.close"
	TypeMessageSend         = "message.send"
	TypeInquiriesFetch      = "inquiries.fetch"
	TypePostsFetch          = "posts.fetch"
)

// Server -> client types.
const (
	TypeHelloAck              = "hello.ack"
	TypeConversationOpened    = "conversation.opened"
	TypeMessagesSnapshot      = "messages.snapshot"
	TypeConversationsSnapshot = "conversations.snapshot"
	TypeUnread                = "unread"
	TypeInquiries             = "inquiries"
	TypePosts                 = "posts"
	TypeNotice                = "notice"
	TypePanelError            = "panel.error"
	TypeError                 = "error"
)

// ClientTypes are the envelope types a client may send.
var ClientTypes = map[string]struct{}{
	TypeHello:               {},
	TypeConversationContact: {},
	TypeConversationOpen:    {},
	TypeViewOpen:            {},
	TypeViewClose:           {},
	TypeMessageSend:         {},
	TypeInquiriesFetch:      {},
	TypePostsFetch:          {},
}

// ViewMessages is the only view name accepted by view.open and view.close.
const ViewMessages = "messages"

type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks an inbound (client -> server) envelope.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := ClientTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	if e.TS.IsZero() {
		return errors.New("missing ts")
	}
	if e.Payload == nil {
		return errors.New("missing payload")
	}
	return nil
}

// ---- client -> server payloads ----

// HelloPayload opens the session. Token is required unless the server runs in
// insecure dev mode, where UserID and Name are trusted.
type HelloPayload struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// ConversationContactPayload starts (or resumes) the conversation about an item.
// Without CounterpartID the item's owner is contacted.
type ConversationContactPayload struct {
	ItemID          string `json:"item_id"`
	CounterpartID   string `json:"counterpart_id,omitempty"`
	CounterpartName string `json:"counterpart_name,omitempty"`
}

type ConversationOpenPayload struct {
	ConversationID string `json:"conversation_id"`
}

type ViewPayload struct {
	View string `json:"view"`
}

type MessageSendPayload struct {
	Text string `json:"text"`
}

type InquiriesFetchPayload struct {
	ItemID string `json:"item_id"`
}

type PostsFetchPayload struct{}

// ---- server -> client payloads ----

type HelloAckPayload struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

type ConversationOpenedPayload struct {
	ConversationID string `json:"conversation_id"`
}

type Message struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	SenderName string    `json:"sender_name"`
	Timestamp  time.Time `json:"timestamp"`
	Direction  string    `json:"direction"`
}

type MessagesSnapshotPayload struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

type Conversation struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"item_id"`
	DisplayName    string    `json:"display_name"`
	LastMessage    string    `json:"last_message,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Active         bool      `json:"active"`
}

type ConversationsSnapshotPayload struct {
	Conversations []Conversation `json:"conversations"`
}

type UnreadPayload struct {
	Unread bool `json:"unread"`
}

type Inquiry struct {
	ConversationID string    `json:"conversation_id"`
	OtherName      string    `json:"other_name"`
	LastMessage    string    `json:"last_message,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type InquiriesPayload struct {
	ItemID    string    `json:"item_id"`
	Inquiries []Inquiry `json:"inquiries"`
}

type Post struct {
	ID    string    `json:"id"`
	Kind  string    `json:"kind"`
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
}

type PostsPayload struct {
	Posts []Post `json:"posts"`
}

// NoticePayload is a transient toast. Level is info, success or error.
type NoticePayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// PanelErrorPayload puts one panel into an error state.
type PanelErrorPayload struct {
	Panel   string `json:"panel"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
