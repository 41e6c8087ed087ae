package identity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/raj783e/campus/cmd/internal/docstore"
	"github.com/raj783e/campus/cmd/security/token"
)

// CollectionUsers holds one profile document per user id.
const CollectionUsers = "users"

// Principal is an authenticated portal user.
type Principal struct {
	ID          string
	DisplayName string
	PhotoURL    string
}

// Credentials are what a client presents when opening a session.
// Token is required unless the Authenticator runs in insecure dev mode, where UserID
// and Name are trusted as given.
type Credentials struct {
	Token  string
	UserID string
	Name   string
}

// Authenticator turns Credentials into a Principal.
type Authenticator struct {
	store         docstore.Store
	signer        *token.Signer
	allowInsecure bool
	log           *slog.Logger
}

// NewAuthenticator constructs an Authenticator. signer may be nil only when
// allowInsecure is true.
func NewAuthenticator(store docstore.Store, signer *token.Signer, allowInsecure bool, log *slog.Logger) *Authenticator {
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{store: store, signer: signer, allowInsecure: allowInsecure, log: log}
}

// Authenticate verifies c and resolves the user's profile.
//
// A present token always wins over a claimed UserID. Without a token, a claimed
// UserID is accepted only in insecure dev mode.
func (a *Authenticator) Authenticate(ctx context.Context, c Credentials) (Principal, error) {
	const op = "identity.Authenticate"

	var uid string
	switch tok := strings.TrimSpace(c.Token); {
	case tok != "" && a.signer != nil:
		id, _, err := a.signer.Verify(tok)
		if err != nil {
			a.log.Debug("auth.token.reject", "err", err)
			return Principal{}, unauthenticated(op)
		}
		uid = id
	case a.allowInsecure:
		uid = NormalizeUserID(c.UserID)
	default:
		return Principal{}, unauthenticated(op)
	}
	if uid == "" {
		return Principal{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing user id"}
	}

	p, err := a.Profile(ctx, uid)
	switch {
	case IsNotFound(err):
		p = Principal{ID: uid}
	case err != nil:
		return Principal{}, err
	}
	if p.DisplayName == "" {
		p.DisplayName = NormalizeDisplayName(c.Name)
	}
	return p, nil
}

// Profile loads users/{uid}. Missing profiles fail with ErrNotFound.
func (a *Authenticator) Profile(ctx context.Context, uid string) (Principal, error) {
	const op = "identity.Profile"

	uid = NormalizeUserID(uid)
	if uid == "" {
		return Principal{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing user id"}
	}

	d, err := a.store.Get(ctx, CollectionUsers, uid)
	if docstore.IsNotFound(err) {
		return Principal{}, OpError{Op: op, Kind: ErrNotFound, Msg: uid}
	}
	if err != nil {
		return Principal{}, err
	}

	name := d.String("displayName")
	if strings.TrimSpace(name) == "" {
		name = d.String("name")
	}
	photo := d.String("photoURL")
	if photo == "" {
		photo = d.String("photo")
	}
	return Principal{ID: uid, DisplayName: NormalizeDisplayName(name), PhotoURL: photo}, nil
}
