package messaging

import "time"

// Panel names one independently rendered area of the messaging UI.
type Panel string

const (
	PanelMessages      Panel = "messages"
	PanelConversations Panel = "conversations"
	PanelUnread        Panel = "unread"
)

// NoticeLevel is the tone of a transient notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient, toast-style message for the user.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// MessageView is one rendered message.
type MessageView struct {
	ID         string
	Text       string
	SenderName string
	Timestamp  time.Time
	Direction  Direction
}

// MessagesView is the full rendered feed of the open conversation.
type MessagesView struct {
	ConversationID string
	Messages       []MessageView
}

// ConversationView is one rendered row of the conversation list.
type ConversationView struct {
	ID             string
	TopicItemID    string
	DisplayName    string
	LastMessage    string
	LastActivityAt time.Time
	Active         bool
}

// View receives everything a Session renders.
//
// Calls arrive from subscription goroutines as well as from the goroutine driving
// the session, so implementations must be safe for concurrent use and must not block
// or call back into the Session.
type View interface {
	Messages(MessagesView)
	Conversations([]ConversationView)
	Unread(bool)
	Notice(Notice)
	PanelError(panel Panel, err error)
}

func renderMessages(conversationID, selfID string, msgs []Message) MessagesView {
	out := MessagesView{ConversationID: conversationID, Messages: make([]MessageView, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, MessageView{
			ID:         m.ID,
			Text:       m.Text,
			SenderName: m.SenderName,
			Timestamp:  m.Timestamp,
			Direction:  Classify(m, selfID),
		})
	}
	return out
}

func renderConversations(convs []Conversation, selfName, activeID string) []ConversationView {
	out := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		out = append(out, ConversationView{
			ID:             c.ID,
			TopicItemID:    c.TopicItemID,
			DisplayName:    DisplayName(c, selfName),
			LastMessage:    c.LastMessage,
			LastActivityAt: c.LastActivityAt,
			Active:         c.ID == activeID,
		})
	}
	return out
}
