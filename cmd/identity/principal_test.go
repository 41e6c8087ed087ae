package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raj783e/campus/cmd/internal/docstore"
	"github.com/raj783e/campus/cmd/security/token"
)

func newSigner(t *testing.T) *token.Signer {
	t.Helper()
	s, err := token.NewSigner("0123456789abcdef0123456789abcdef", token.MinKeyBytes)
	require.NoError(t, err)
	return s
}

func TestAuthenticate_TokenResolvesProfile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := docstore.NewMemoryStore()
	defer store.Close()
	require.NoError(t, store.Create(ctx, CollectionUsers, "uid-alice", docstore.Fields{
		"name":  "Alice  Liddell",
		"photo": "https://example.test/a.png",
	}))

	signer := newSigner(t)
	tok, err := signer.Issue("uid-alice", time.Hour)
	require.NoError(t, err)

	a := NewAuthenticator(store, signer, false, nil)
	p, err := a.Authenticate(ctx, Credentials{Token: tok, UserID: "uid-mallory", Name: "Mallory"})
	require.NoError(t, err)
	assert.Equal(t, Principal{ID: "uid-alice", DisplayName: "Alice Liddell", PhotoURL: "https://example.test/a.png"}, p)
}

func TestAuthenticate_RejectsWithoutValidToken(t *testing.T) {
	t.Parallel()

	store := docstore.NewMemoryStore()
	defer store.Close()
	a := NewAuthenticator(store, newSigner(t), false, nil)

	for _, c := range []Credentials{
		{UserID: "uid-alice"},
		{Token: "garbage", UserID: "uid-alice"},
	} {
		_, err := a.Authenticate(context.Background(), c)
		assert.True(t, IsUnauthenticated(err), "%+v", c)
	}
}

func TestAuthenticate_InsecureDevMode(t *testing.T) {
	t.Parallel()

	store := docstore.NewMemoryStore()
	defer store.Close()
	a := NewAuthenticator(store, nil, true, nil)

	p, err := a.Authenticate(context.Background(), Credentials{UserID: " uid-bob ", Name: " Bob "})
	require.NoError(t, err)
	assert.Equal(t, Principal{ID: "uid-bob", DisplayName: "Bob"}, p)

	_, err = a.Authenticate(context.Background(), Credentials{})
	assert.True(t, IsInvalidInput(err))
}

func TestNormalizeDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Ada Lovelace", NormalizeDisplayName("  Ada \t Lovelace "))
	long := NormalizeDisplayName(strings.Repeat("ab ", 50))
	assert.Len(t, []rune(long), maxDisplayNameRunes)
}
