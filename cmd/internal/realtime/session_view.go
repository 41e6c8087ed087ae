package realtime

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/raj783e/campus/cmd/internal/messaging"
	v1 "github.com/raj783e/campus/shared/contracts/portal/v1"
)

// sessionView renders a messaging.Session into envelopes on a Client.
//
// Renders run on subscription goroutines while the session holds a slot or watcher
// lock, so a full queue must not block here and must not close the session
// synchronously. overflow is called instead and is expected to return at once.
type sessionView struct {
	client   *Client
	log      *slog.Logger
	overflow func()
	now      func() time.Time
}

func newSessionView(client *Client, log *slog.Logger, overflow func()) *sessionView {
	return &sessionView{
		client:   client,
		log:      log,
		overflow: overflow,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (v *sessionView) Messages(m messaging.MessagesView) {
	out := v1.MessagesSnapshotPayload{
		ConversationID: m.ConversationID,
		Messages:       make([]v1.Message, 0, len(m.Messages)),
	}
	for _, msg := range m.Messages {
		out.Messages = append(out.Messages, v1.Message{
			ID:         msg.ID,
			Text:       msg.Text,
			SenderName: msg.SenderName,
			Timestamp:  msg.Timestamp,
			Direction:  string(msg.Direction),
		})
	}
	v.emit(v1.TypeMessagesSnapshot, out)
}

func (v *sessionView) Conversations(convs []messaging.ConversationView) {
	out := v1.ConversationsSnapshotPayload{Conversations: make([]v1.Conversation, 0, len(convs))}
	for _, c := range convs {
		out.Conversations = append(out.Conversations, v1.Conversation{
			ID:             c.ID,
			ItemID:         c.TopicItemID,
			DisplayName:    c.DisplayName,
			LastMessage:    c.LastMessage,
			LastActivityAt: c.LastActivityAt,
			Active:         c.Active,
		})
	}
	v.emit(v1.TypeConversationsSnapshot, out)
}

func (v *sessionView) Unread(unread bool) {
	v.emit(v1.TypeUnread, v1.UnreadPayload{Unread: unread})
}

func (v *sessionView) Notice(n messaging.Notice) {
	v.emit(v1.TypeNotice, v1.NoticePayload{Level: string(n.Level), Text: n.Text})
}

// PanelError sends a fixed message per panel; err is only logged.
func (v *sessionView) PanelError(panel messaging.Panel, err error) {
	v.log.Debug("ws.panel.error", "session_id", v.client.SessionID, "panel", string(panel), "err", err)
	v.emit(v1.TypePanelError, v1.PanelErrorPayload{Panel: string(panel), Message: panelErrorText(panel)})
}

func panelErrorText(panel messaging.Panel) string {
	switch panel {
	case messaging.PanelMessages:
		return "Error loading messages"
	case messaging.PanelConversations:
		return "Error loading conversations"
	default:
		return "Error loading data"
	}
}

func (v *sessionView) emit(typ string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		v.log.Error("ws.render.encode.fail", "session_id", v.client.SessionID, "type", typ, "err", err)
		return
	}
	if v.client.TrySend(newEnvelope(typ, b, v.now())) {
		return
	}
	if v.client.Closed() {
		return
	}
	v.log.Warn("ws.render.backpressure", "session_id", v.client.SessionID, "type", typ)
	if v.overflow != nil {
		v.overflow()
	}
}

var _ messaging.View = (*sessionView)(nil)
