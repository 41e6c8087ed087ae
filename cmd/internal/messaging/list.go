package messaging

import (
	"context"
	"strings"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

// List streams the conversations a user participates in.
type List struct {
	store docstore.Store
	opts  options
}

// NewList constructs a List over store.
func NewList(store docstore.Store, opts ...Option) *List {
	return &List{store: store, opts: buildOptions(opts)}
}

// Subscribe delivers every conversation containing userID, most recent activity first,
// on every change. The order is recomputed here for each snapshot.
func (l *List) Subscribe(ctx context.Context, userID string, fn func(convs []Conversation, err error)) (docstore.Unsubscribe, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || fn == nil {
		return nil, opErr("messaging.SubscribeConversations", ErrInvalidInput, "missing user id or callback")
	}

	return l.store.Subscribe(ctx, participantQuery(userID), func(snap docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		convs := make([]Conversation, 0, snap.Len())
		for _, d := range snap.Docs {
			convs = append(convs, decodeConversation(d))
		}
		sortByActivity(convs)
		fn(convs, nil)
	})
}

func participantQuery(userID string) docstore.Query {
	return docstore.From(CollectionChats).
		Where(fieldParticipants, docstore.OpArrayContains, userID).
		OrderBy(fieldLastActivity, docstore.Desc)
}
