package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

// MaxTextRunes bounds a single message.
const MaxTextRunes = 4000

// Feed appends messages to conversations and streams them back in order.
type Feed struct {
	store docstore.Store
	opts  options
}

// NewFeed constructs a Feed over store.
func NewFeed(store docstore.Store, opts ...Option) *Feed {
	return &Feed{store: store, opts: buildOptions(opts)}
}

// SendInput describes one message send.
type SendInput struct {
	ConversationID string
	SenderID       string
	SenderName     string
	Text           string
	Now            time.Time
}

// Send persists a message and then updates the conversation's denormalized
// last-message fields with the same timestamp.
//
// Whitespace-only text fails with ErrEmptyText before any store call; callers treat
// that as a silent no-op.
func (f *Feed) Send(ctx context.Context, in SendInput) (Message, error) {
	const op = "messaging.Send"

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Message{}, opErr(op, ErrEmptyText, "")
	}
	if utf8.RuneCountInString(text) > MaxTextRunes {
		return Message{}, opErr(op, ErrTextTooLong, fmt.Sprintf("max %d runes", MaxTextRunes))
	}
	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" || strings.TrimSpace(in.SenderID) == "" {
		return Message{}, opErr(op, ErrInvalidInput, "missing id")
	}

	now := in.Now
	if now.IsZero() {
		now = f.opts.now()
	}
	now = docstore.ParseTime(docstore.FormatTime(now)) // millisecond precision, as persisted
	ts := docstore.FormatTime(now)

	id, err := f.store.Add(ctx, messagesCollection(convID), docstore.Fields{
		fieldText:       text,
		fieldSenderID:   in.SenderID,
		fieldSenderName: in.SenderName,
		fieldTimestamp:  ts,
	})
	if err != nil {
		f.opts.metrics.sendFailed()
		return Message{}, fmt.Errorf("%s: append: %w", op, err)
	}

	err = f.store.Update(ctx, CollectionChats, convID, docstore.Fields{
		fieldLastMessage:     text,
		fieldLastMessageTime: ts,
		fieldLastSenderID:    in.SenderID,
		fieldLastActivity:    ts,
	})
	if err != nil {
		// The message is stored; only the list preview is stale.
		f.opts.metrics.sendFailed()
		f.opts.log.Warn("message.send.denormalize.fail", "conversation_id", convID, "message_id", id, "err", err)
		return Message{}, fmt.Errorf("%s: update conversation: %w", op, err)
	}

	f.opts.metrics.messageSent()
	f.opts.log.Debug("message.send", "conversation_id", convID, "message_id", id, "sender_id", in.SenderID)

	return Message{
		ID:         id,
		Text:       text,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Timestamp:  now,
	}, nil
}

// Subscribe streams the full, timestamp-ordered message list of conversationID to fn
// on every change. Exactly one of msgs or err is meaningful per call.
func (f *Feed) Subscribe(ctx context.Context, conversationID string, fn func(msgs []Message, err error)) (docstore.Unsubscribe, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" || fn == nil {
		return nil, opErr("messaging.SubscribeMessages", ErrInvalidInput, "missing conversation id or callback")
	}

	q := docstore.From(messagesCollection(conversationID)).OrderBy(fieldTimestamp, docstore.Asc)
	return f.store.Subscribe(ctx, q, func(snap docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		msgs := make([]Message, 0, snap.Len())
		for _, d := range snap.Docs {
			msgs = append(msgs, decodeMessage(d))
		}
		SortMessages(msgs)
		fn(msgs, nil)
	})
}

// SortMessages orders msgs by timestamp ascending, keeping the given order for ties.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
