package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

// Directory resolves the unique conversation per (topic item, unordered participant pair).
type Directory struct {
	store docstore.Store
	opts  options
}

// NewDirectory constructs a Directory over store.
func NewDirectory(store docstore.Store, opts ...Option) *Directory {
	return &Directory{store: store, opts: buildOptions(opts)}
}

// FindOrCreateInput describes a contact attempt by Self towards Counterpart.
type FindOrCreateInput struct {
	Self        Participant
	Counterpart Participant
	TopicItemID string
	Now         time.Time
}

// FindOrCreateResult reports the resolved conversation.
type FindOrCreateResult struct {
	ConversationID string
	Created        bool
}

// FindOrCreate returns the conversation between Self and Counterpart about TopicItemID,
// creating it on first contact.
//
// An existing conversation is returned unchanged: names are not refreshed.
// New conversations are stored under ConversationKey, so two racing first contacts
// by the same pair resolve to one record.
func (d *Directory) FindOrCreate(ctx context.Context, in FindOrCreateInput) (FindOrCreateResult, error) {
	const op = "messaging.FindOrCreate"

	selfID := strings.TrimSpace(in.Self.ID)
	otherID := strings.TrimSpace(in.Counterpart.ID)
	topic := strings.TrimSpace(in.TopicItemID)
	switch {
	case selfID == "" || otherID == "":
		return FindOrCreateResult{}, opErr(op, ErrInvalidInput, "missing participant id")
	case topic == "":
		return FindOrCreateResult{}, opErr(op, ErrInvalidInput, "missing topic item id")
	case selfID == otherID:
		return FindOrCreateResult{}, opErr(op, ErrInvalidInput, "cannot contact yourself")
	}

	existing, err := d.find(ctx, topic, selfID, otherID)
	if err != nil {
		return FindOrCreateResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if existing != "" {
		d.opts.metrics.conversationCreated(false)
		return FindOrCreateResult{ConversationID: existing}, nil
	}

	now := in.Now
	if now.IsZero() {
		now = d.opts.now()
	}
	ts := docstore.FormatTime(now)
	id := ConversationKey(topic, selfID, otherID)

	err = d.store.Create(ctx, CollectionChats, id, docstore.Fields{
		fieldItemID:           topic,
		fieldParticipants:     []string{selfID, otherID},
		fieldParticipantNames: []string{in.Self.Name, in.Counterpart.Name},
		fieldCreatedAt:        ts,
		fieldLastActivity:     ts,
	})
	switch {
	case docstore.IsAlreadyExists(err):
		d.opts.log.Debug("conversation.create.race", "conversation_id", id, "item_id", topic)
		d.opts.metrics.conversationCreated(false)
		return FindOrCreateResult{ConversationID: id}, nil
	case err != nil:
		return FindOrCreateResult{}, fmt.Errorf("%s: %w", op, err)
	}

	d.opts.log.Info("conversation.create", "conversation_id", id, "item_id", topic, "user_id", selfID)
	d.opts.metrics.conversationCreated(true)
	return FindOrCreateResult{ConversationID: id, Created: true}, nil
}

// find returns the id of the conversation about topic containing both users, or "".
func (d *Directory) find(ctx context.Context, topic, selfID, otherID string) (string, error) {
	docs, err := d.store.Query(ctx, docstore.From(CollectionChats).
		Where(fieldItemID, docstore.OpEqual, topic).
		Where(fieldParticipants, docstore.OpArrayContains, selfID))
	if err != nil {
		return "", err
	}
	for _, doc := range docs {
		if decodeConversation(doc).HasParticipant(otherID) {
			return doc.ID, nil
		}
	}
	return "", nil
}

// Authorize returns the conversation if userID participates in it.
func (d *Directory) Authorize(ctx context.Context, userID, conversationID string) (Conversation, error) {
	const op = "messaging.Authorize"

	conversationID = strings.TrimSpace(conversationID)
	if strings.TrimSpace(userID) == "" || conversationID == "" {
		return Conversation{}, opErr(op, ErrInvalidInput, "missing id")
	}

	doc, err := d.store.Get(ctx, CollectionChats, conversationID)
	if docstore.IsNotFound(err) {
		return Conversation{}, opErr(op, ErrNotFound, conversationID)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("%s: %w", op, err)
	}

	c := decodeConversation(doc)
	if !c.HasParticipant(userID) {
		return Conversation{}, opErr(op, ErrNotParticipant, conversationID)
	}
	return c, nil
}

// Inquiry is one conversation about an item as seen by one participant.
type Inquiry struct {
	ConversationID string
	OtherName      string
	LastMessage    string
	LastActivityAt time.Time
}

// Inquiries lists every conversation about topicItemID that self takes part in,
// most recent activity first. Item owners use it to see who asked about their item.
func (d *Directory) Inquiries(ctx context.Context, topicItemID string, self Participant) ([]Inquiry, error) {
	const op = "messaging.Inquiries"

	topic := strings.TrimSpace(topicItemID)
	if topic == "" || strings.TrimSpace(self.ID) == "" {
		return nil, opErr(op, ErrInvalidInput, "missing id")
	}

	docs, err := d.store.Query(ctx, docstore.From(CollectionChats).
		Where(fieldItemID, docstore.OpEqual, topic).
		Where(fieldParticipants, docstore.OpArrayContains, self.ID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	convs := make([]Conversation, 0, len(docs))
	for _, doc := range docs {
		convs = append(convs, decodeConversation(doc))
	}
	sortByActivity(convs)

	out := make([]Inquiry, 0, len(convs))
	for _, c := range convs {
		out = append(out, Inquiry{
			ConversationID: c.ID,
			OtherName:      DisplayName(c, self.Name),
			LastMessage:    c.LastMessage,
			LastActivityAt: c.LastActivityAt,
		})
	}
	return out, nil
}

// sortByActivity orders conversations by LastActivityAt descending.
// A missing timestamp counts as the earliest possible time.
func sortByActivity(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastActivityAt.After(convs[j].LastActivityAt)
	})
}
