// Package main provides a CI-friendly WebSocket smoke test for the campus portal gateway.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello/ack session establishment for two users
//   - conversation.contact -> conversation.opened
//   - message.send -> messages.snapshot for the sender
//   - unread raised for the recipient, cleared when the recipient opens the conversation
//   - conversations.snapshot listing the conversation for both users
//   - posts.fetch round trip
//
// Against a server without CAMPUS_AUTH_DEV_INSECURE pass -token-a/-token-b
// (see `campus token <user-id>`).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/raj783e/campus/shared/contracts/portal/v1"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name      string
	conn      *websocket.Conn
	sessionID string
	userID    string
	seq       int

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		userA   = flag.String("user-a", "smoke-alice", "User id of the sender (dev-insecure mode)")
		userB   = flag.String("user-b", "smoke-bob", "User id of the recipient (dev-insecure mode)")
		tokenA  = flag.String("token-a", "", "Session token of the sender")
		tokenB  = flag.String("token-b", "", "Session token of the recipient")
		itemID  = flag.String("item", "smoke-item-1", "Lost-and-found item id the conversation is about")
		text    = flag.String("text", "is this your umbrella? 🌂", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, v1.HelloPayload{Token: *tokenA, UserID: *userA, Name: "Smoke Alice"}, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, v1.HelloPayload{Token: *tokenB, UserID: *userB, Name: "Smoke Bob"}, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s(%s) B=%s(%s) origin=%q\n", a.sessionID, a.userID, b.sessionID, b.userID, *origin)
	}

	convID := mustContact(root, a, *itemID, b.userID, *timeout)
	if *verbose {
		fmt.Printf("conversation: %s\n", convID)
	}

	a.mustSend(root, v1.TypeViewOpen, v1.ViewPayload{View: v1.ViewMessages}, *timeout)
	a.mustSend(root, v1.TypeMessageSend, v1.MessageSendPayload{Text: *text}, *timeout)

	a.mustSeeAll(root, *timeout, messageCheck(a, convID, *text, "sent"))
	b.mustSeeAll(root, *timeout, unreadCheck(true), conversationCheck(b, convID))

	b.mustSend(root, v1.TypeConversationOpen, v1.ConversationOpenPayload{ConversationID: convID}, *timeout)
	b.mustReadUntil(root, v1.TypeConversationOpened, *timeout, func(env v1.Envelope) bool {
		var p v1.ConversationOpenedPayload
		return json.Unmarshal(env.Payload, &p) == nil && p.ConversationID == convID
	})
	b.mustSend(root, v1.TypeViewOpen, v1.ViewPayload{View: v1.ViewMessages}, *timeout)

	b.mustSeeAll(root, *timeout, messageCheck(b, convID, *text, "received"), unreadCheck(false))

	a.mustSend(root, v1.TypePostsFetch, v1.PostsFetchPayload{}, *timeout)
	a.mustReadUntil(root, v1.TypePosts, *timeout, nil)

	fmt.Printf("OK: A=%s B=%s conversation_id=%s\n", a.sessionID, b.sessionID, convID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, hello v1.HelloPayload, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch (%s): got=%q want=%q", name, got, v1.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	if hello.Token != "" {
		hello.UserID = ""
	}
	c.mustSend(parent, v1.TypeHello, hello, stepTimeout)

	ack := c.mustReadUntil(parent, v1.TypeHelloAck, stepTimeout, nil)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello.ack payload (%s): %v", name, err)
	}
	if strings.TrimSpace(p.SessionID) == "" || strings.TrimSpace(p.UserID) == "" {
		fatalf("hello.ack missing session_id/user_id (%s)", name)
	}
	c.sessionID, c.userID = p.SessionID, p.UserID

	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			if mt != websocket.MessageText {
				c.fail(fmt.Errorf("unsupported message type: %v", mt))
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if env.V != v1.Version || env.Type == "" {
				c.fail(fmt.Errorf("bad envelope: v=%d type=%q", env.V, env.Type))
				return
			}

			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func mustContact(parent context.Context, c *smokeClient, itemID, counterpartID string, stepTimeout time.Duration) string {
	c.mustSend(parent, v1.TypeConversationContact, v1.ConversationContactPayload{
		ItemID:          itemID,
		CounterpartID:   counterpartID,
		CounterpartName: "Smoke Counterpart",
	}, stepTimeout)

	env := c.mustReadUntil(parent, v1.TypeConversationOpened, stepTimeout, nil)

	var p v1.ConversationOpenedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal conversation.opened payload (%s): %v", c.name, err)
	}
	if strings.TrimSpace(p.ConversationID) == "" {
		fatalf("conversation.opened missing conversation_id (%s)", c.name)
	}
	return p.ConversationID
}

// check matches one expected server push.
type check struct {
	typ   string
	match func(v1.Envelope) bool
}

func messageCheck(c *smokeClient, convID, text, direction string) check {
	return check{typ: v1.TypeMessagesSnapshot, match: func(env v1.Envelope) bool {
		var p v1.MessagesSnapshotPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal messages.snapshot payload (%s): %v", c.name, err)
		}
		if p.ConversationID != convID {
			return false
		}
		for _, m := range p.Messages {
			if m.Text == text && m.Direction == direction && !m.Timestamp.IsZero() {
				return true
			}
		}
		return false
	}}
}

func unreadCheck(want bool) check {
	return check{typ: v1.TypeUnread, match: func(env v1.Envelope) bool {
		var p v1.UnreadPayload
		return json.Unmarshal(env.Payload, &p) == nil && p.Unread == want
	}}
}

func conversationCheck(c *smokeClient, convID string) check {
	return check{typ: v1.TypeConversationsSnapshot, match: func(env v1.Envelope) bool {
		var p v1.ConversationsSnapshotPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal conversations.snapshot payload (%s): %v", c.name, err)
		}
		for _, conv := range p.Conversations {
			if conv.ID == convID {
				return true
			}
		}
		return false
	}}
}

// mustSeeAll waits until every check has matched some envelope, in any order.
func (c *smokeClient) mustSeeAll(parent context.Context, stepTimeout time.Duration, checks ...check) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	pending := append([]check(nil), checks...)
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", pending[0].typ, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", pending[0].typ, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", pending[0].typ, c.name)
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			for i, chk := range pending {
				if env.Type == chk.typ && chk.match(env) {
					pending = append(pending[:i], pending[i+1:]...)
					break
				}
			}
		}
	}
}

// mustReadUntil returns the first envelope of wantType accepted by match (nil matches
// any). Other server pushes are skipped; an error envelope fails the run.
func (c *smokeClient) mustReadUntil(parent context.Context, wantType string, stepTimeout time.Duration, match func(v1.Envelope) bool) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if env.Type == wantType && (match == nil || match(env)) {
				return env
			}
		}
	}
}

func (c *smokeClient) mustSend(parent context.Context, typ string, payload any, stepTimeout time.Duration) {
	c.seq++
	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      fmt.Sprintf("%s-%d", c.name, c.seq),
		TS:      time.Now().UTC(),
		Payload: mustJSON(payload),
	}

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed (%s): %v", c.name, err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
