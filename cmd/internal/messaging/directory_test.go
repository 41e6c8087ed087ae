package messaging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

var (
	alice = Participant{ID: "uid-alice", Name: "Alice"}
	bob   = Participant{ID: "uid-bob", Name: "Bob"}
	carol = Participant{ID: "uid-carol", Name: "Carol"}
)

func countConversations(t *testing.T, s docstore.Store) int {
	t.Helper()
	docs, err := s.Query(context.Background(), docstore.From(CollectionChats))
	require.NoError(t, err)
	return len(docs)
}

func TestFindOrCreate_ParticipantOrderIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	dir := NewDirectory(store)

	first, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: alice, Counterpart: bob, TopicItemID: "item-x"})
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: bob, Counterpart: alice, TopicItemID: "item-x"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, 1, countConversations(t, store))
}

func TestFindOrCreate_NewConversationShape(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	dir := NewDirectory(store)

	res, err := dir.FindOrCreate(ctx, FindOrCreateInput{
		Self: alice, Counterpart: bob, TopicItemID: "item-x", Now: at("10:00"),
	})
	require.NoError(t, err)

	doc, err := store.Get(ctx, CollectionChats, res.ConversationID)
	require.NoError(t, err)
	c := decodeConversation(doc)

	assert.Equal(t, "item-x", c.TopicItemID)
	assert.Equal(t, [2]string{alice.ID, bob.ID}, c.ParticipantIDs)
	assert.Equal(t, [2]string{"Alice", "Bob"}, c.ParticipantNames)
	assert.Equal(t, at("10:00"), c.CreatedAt)
	assert.Equal(t, at("10:00"), c.LastActivityAt)
	assert.False(t, doc.Has(fieldLastMessage))
	assert.False(t, doc.Has(fieldLastSenderID))
}

func TestFindOrCreate_ReuseKeepsOriginalNames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	dir := NewDirectory(store)

	// A initiates first, B later initiates about the same item with A.
	a, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: alice, Counterpart: bob, TopicItemID: "X"})
	require.NoError(t, err)

	renamed := Participant{ID: bob.ID, Name: "Robert"}
	b, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: renamed, Counterpart: alice, TopicItemID: "X"})
	require.NoError(t, err)

	assert.Equal(t, a.ConversationID, b.ConversationID)
	assert.Equal(t, 1, countConversations(t, store))

	doc, err := store.Get(ctx, CollectionChats, a.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, doc.Strings(fieldParticipantNames))
}

func TestFindOrCreate_SeparatesTopicsAndPairs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	dir := NewDirectory(store)

	ab, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: alice, Counterpart: bob, TopicItemID: "X"})
	require.NoError(t, err)
	abY, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: alice, Counterpart: bob, TopicItemID: "Y"})
	require.NoError(t, err)
	ac, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: alice, Counterpart: carol, TopicItemID: "X"})
	require.NoError(t, err)

	assert.NotEqual(t, ab.ConversationID, abY.ConversationID)
	assert.NotEqual(t, ab.ConversationID, ac.ConversationID)
	assert.Equal(t, 3, countConversations(t, store))
}

func TestFindOrCreate_FindsLegacyConversation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	dir := NewDirectory(store)

	// Written by the old client: random id, no createdAt.
	legacy, err := store.Add(ctx, CollectionChats, docstore.Fields{
		fieldItemID:           "X",
		fieldParticipants:     []string{bob.ID, alice.ID},
		fieldParticipantNames: []string{"Bob", "Alice"},
		fieldLastActivity:     "2026-01-01T09:00:00.000Z",
	})
	require.NoError(t, err)

	res, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: alice, Counterpart: bob, TopicItemID: "X"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, legacy, res.ConversationID)
	assert.Equal(t, 1, countConversations(t, store))
}

func TestFindOrCreate_ConcurrentFirstContactsConverge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	dir := NewDirectory(store)

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			self, other := alice, bob
			if i%2 == 1 {
				self, other = bob, alice
			}
			res, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: self, Counterpart: other, TopicItemID: "X"})
			ids[i], errs[i] = res.ConversationID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, countConversations(t, store))
}

func TestFindOrCreate_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   FindOrCreateInput
	}{
		{"missing self", FindOrCreateInput{Counterpart: bob, TopicItemID: "X"}},
		{"missing counterpart", FindOrCreateInput{Self: alice, TopicItemID: "X"}},
		{"missing topic", FindOrCreateInput{Self: alice, Counterpart: bob, TopicItemID: "  "}},
		{"self contact", FindOrCreateInput{Self: alice, Counterpart: alice, TopicItemID: "X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newTestStore(t)
			_, err := NewDirectory(store).FindOrCreate(context.Background(), tt.in)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.True(t, IsValidation(err))
			assert.Equal(t, 0, countConversations(t, store))
		})
	}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	dir := NewDirectory(store)

	res, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: alice, Counterpart: bob, TopicItemID: "X"})
	require.NoError(t, err)

	c, err := dir.Authorize(ctx, bob.ID, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, c.Counterpart(bob.ID))

	_, err = dir.Authorize(ctx, carol.ID, res.ConversationID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = dir.Authorize(ctx, alice.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInquiries_ResolvesOtherNames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	dir := NewDirectory(store)

	_, err := dir.FindOrCreate(ctx, FindOrCreateInput{Self: bob, Counterpart: alice, TopicItemID: "X", Now: at("09:00")})
	require.NoError(t, err)
	_, err = dir.FindOrCreate(ctx, FindOrCreateInput{Self: carol, Counterpart: alice, TopicItemID: "X", Now: at("10:00")})
	require.NoError(t, err)
	_, err = dir.FindOrCreate(ctx, FindOrCreateInput{Self: carol, Counterpart: bob, TopicItemID: "X", Now: at("11:00")})
	require.NoError(t, err)

	got, err := dir.Inquiries(ctx, "X", alice)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Carol", got[0].OtherName)
	assert.Equal(t, "Bob", got[1].OtherName)
}

func TestConversationKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ConversationKey("X", "a", "b"), ConversationKey("X", "b", "a"))
	assert.NotEqual(t, ConversationKey("X", "a", "b"), ConversationKey("Y", "a", "b"))
	assert.NotEqual(t, ConversationKey("X", "ab", "c"), ConversationKey("X", "a", "bc"))
	assert.Len(t, ConversationKey("X", "a", "b"), 33)
}
