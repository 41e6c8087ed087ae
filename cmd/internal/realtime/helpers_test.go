package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/raj783e/campus/cmd/identity"
	"github.com/raj783e/campus/cmd/internal/docstore"
	v1 "github.com/raj783e/campus/shared/contracts/portal/v1"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	srv   *httptest.Server
	store *docstore.MemoryStore
}

// newTestServer runs a gateway over a MemoryStore with insecure (claimed id) auth.
func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.OriginRequired = false
	if mutate != nil {
		mutate(&cfg)
	}

	g, err := NewWSGateway(discardLogger(), cfg, Deps{
		Auth:  identity.NewAuthenticator(store, nil, true, discardLogger()),
		Store: store,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store}
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, s.wsURL(), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// hello dials and completes the hello exchange as userID.
func (s *testServer) hello(t *testing.T, userID, name string) *websocket.Conn {
	t.Helper()
	conn := s.dial(t)
	send(t, conn, v1.TypeHello, v1.HelloPayload{UserID: userID, Name: name})

	var ack v1.HelloAckPayload
	expect(t, conn, v1.TypeHelloAck, &ack, nil)
	require.Equal(t, userID, ack.UserID)
	require.Len(t, ack.SessionID, 26)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	p, err := json.Marshal(payload)
	require.NoError(t, err)

	b, err := json.Marshal(v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(time.Now()),
		TS:      time.Now().UTC(),
		Payload: p,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, b))
}

// expect reads envelopes until one of type typ whose payload satisfies match
// (nil matches anything) arrives, decoding it into dst. Other envelopes are skipped.
func expect[T any](t *testing.T, conn *websocket.Conn, typ string, dst *T, match func(T) bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %s", typ)

		var env v1.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type != typ {
			continue
		}

		var p T
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		if match == nil || match(p) {
			*dst = p
			return
		}
	}
}
