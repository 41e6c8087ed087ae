package messaging

import (
	"strings"
	"time"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

// Collection layout.
const (
	CollectionChats = "chats"
	subMessages     = "messages"
)

// Persisted field names. startedAt doubles as the last-activity sort key for
// compatibility with conversations written before createdAt existed.
const (
	fieldItemID           = "itemId"
	fieldParticipants     = "participants"
	fieldParticipantNames = "participantNames"
	fieldCreatedAt        = "createdAt"
	fieldLastActivity     = "startedAt"
	fieldLastMessage      = "lastMessage"
	fieldLastMessageTime  = "lastMessageTime"
	fieldLastSenderID     = "lastSenderId"

	fieldText       = "text"
	fieldSenderID   = "senderId"
	fieldSenderName = "senderName"
	fieldTimestamp  = "timestamp"
)

// UnknownParticipant is shown when no counterpart name can be resolved.
const UnknownParticipant = "Unknown"

// Participant identifies one side of a conversation.
type Participant struct {
	ID   string
	Name string
}

// Conversation pairs exactly two users around one topic item.
// ParticipantNames are index-aligned with ParticipantIDs as of creation and never refreshed.
type Conversation struct {
	ID               string
	TopicItemID      string
	ParticipantIDs   [2]string
	ParticipantNames [2]string

	CreatedAt      time.Time
	LastActivityAt time.Time

	LastMessage     string
	LastMessageTime time.Time
	LastSenderID    string
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantIDs[0] == userID || c.ParticipantIDs[1] == userID)
}

// Message is one immutable unit of text within a conversation.
type Message struct {
	ID         string
	Text       string
	SenderID   string
	SenderName string
	Timestamp  time.Time
}

// Direction classifies a message relative to the viewing user.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Classify reports whether m was sent or received by selfID.
func Classify(m Message, selfID string) Direction {
	if selfID != "" && m.SenderID == selfID {
		return DirectionSent
	}
	return DirectionReceived
}

func messagesCollection(conversationID string) string {
	return docstore.Join(CollectionChats, conversationID, subMessages)
}

func decodeConversation(d docstore.Document) Conversation {
	c := Conversation{
		ID:              d.ID,
		TopicItemID:     d.String(fieldItemID),
		CreatedAt:       d.Time(fieldCreatedAt),
		LastActivityAt:  d.Time(fieldLastActivity),
		LastMessage:     d.String(fieldLastMessage),
		LastMessageTime: d.Time(fieldLastMessageTime),
		LastSenderID:    d.String(fieldLastSenderID),
	}
	copy(c.ParticipantIDs[:], d.Strings(fieldParticipants))
	copy(c.ParticipantNames[:], d.Strings(fieldParticipantNames))
	if c.CreatedAt.IsZero() {
		// Older records only carry startedAt.
		c.CreatedAt = c.LastActivityAt
	}
	return c
}

func decodeMessage(d docstore.Document) Message {
	return Message{
		ID:         d.ID,
		Text:       d.String(fieldText),
		SenderID:   d.String(fieldSenderID),
		SenderName: d.String(fieldSenderName),
		Timestamp:  d.Time(fieldTimestamp),
	}
}

// DisplayName returns the participant name that is not selfName, or
// UnknownParticipant when no such name exists.
func DisplayName(c Conversation, selfName string) string {
	for _, n := range c.ParticipantNames {
		if strings.TrimSpace(n) != "" && n != selfName {
			return n
		}
	}
	return UnknownParticipant
}

// Counterpart returns the other participant's id, or "" when selfID is not a participant.
func (c Conversation) Counterpart(selfID string) string {
	switch selfID {
	case "":
		return ""
	case c.ParticipantIDs[0]:
		return c.ParticipantIDs[1]
	case c.ParticipantIDs[1]:
		return c.ParticipantIDs[0]
	default:
		return ""
	}
}
