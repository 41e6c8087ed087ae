package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/raj783e/campus/cmd/identity"
	"github.com/raj783e/campus/cmd/internal/docstore"
	"github.com/raj783e/campus/cmd/internal/messaging"
	"github.com/raj783e/campus/cmd/internal/posts"
	v1 "github.com/raj783e/campus/shared/contracts/portal/v1"
)

var (
	errBadPayload      = errors.New("invalid payload")
	errBadJSON         = errors.New("invalid JSON")
	errForbidden       = errors.New("forbidden")
	errBackpressure    = errors.New("backpressure")
	errConnClosed      = errors.New("connection closed")
	errUnsupportedView = errors.New("unsupported view")
)

// Deps are the services a gateway session talks to.
type Deps struct {
	Auth      *identity.Authenticator
	Messaging *messaging.Service
	Store     docstore.Store
	Metrics   *Metrics
}

// WSGateway is the WebSocket entrypoint for portal sessions.
//
// It enforces origin policy, subprotocol selection, rate limits and heartbeats.
// After hello it runs one messaging.Session per connection and renders it into
// envelopes.
type WSGateway struct {
	log     *slog.Logger
	cfg     Config
	auth    *identity.Authenticator
	svc     *messaging.Service
	store   docstore.Store
	metrics *Metrics

	// Derived for websocket.Accept origin checks.
	// Accept authorizes same-host origins by default; cross-origin needs OriginPatterns.
	originPatterns []string
}

// NewWSGateway constructs a gateway. Auth and Store are required; a missing
// Messaging service is built over Store.
func NewWSGateway(log *slog.Logger, cfg Config, deps Deps) (*WSGateway, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Auth == nil {
		return nil, errors.New("realtime: nil authenticator")
	}
	if deps.Store == nil {
		return nil, errors.New("realtime: nil store")
	}
	if deps.Messaging == nil {
		deps.Messaging = messaging.NewService(deps.Store, messaging.WithLogger(log))
	}

	cfg = cfg.normalize()
	return &WSGateway{
		log:            log,
		cfg:            cfg,
		auth:           deps.Auth,
		svc:            deps.Messaging,
		store:          deps.Store,
		metrics:        deps.Metrics,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}, nil
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// wsConn is the per-connection state shared by the read loop, the writer, the
// heartbeat and session renders.
type wsConn struct {
	g      *WSGateway
	conn   *websocket.Conn
	client *Client
	log    *slog.Logger
	cancel context.CancelFunc

	closeOnce sync.Once

	mu      sync.Mutex
	closed  bool
	session *messaging.Session
}

// shutdown is idempotent. It closes the messaging session before the socket so
// no new renders start, and never closes client.Send.
func (c *wsConn) shutdown(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		sess := c.session
		c.mu.Unlock()

		if sess != nil {
			sess.Close()
		}
		c.client.Close()
		_ = c.conn.Close(code, reason)
		c.cancel()
	})
}

func (c *wsConn) current() *messaging.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the portal loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.metrics.reject("origin")
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.metrics.reject("subprotocol")
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{
		g:      g,
		conn:   conn,
		client: NewClient(sessionID, g.cfg.SendQueueSize),
		log:    g.log.With("session_id", sessionID),
		cancel: cancel,
	}

	g.metrics.connOpened()
	defer g.metrics.connClosed()
	c.log.Info("ws.open", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		c.heartbeatLoop(ctx)
	}()

	c.readLoop(ctx)

	c.shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	c.log.Info("ws.close")
}

func (c *wsConn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.client.Done():
			return
		case env := <-c.client.Send:
			if err := writeEnvelope(ctx, c.conn, env, c.g.cfg.WriteTimeout); err != nil {
				c.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
				c.shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

func (c *wsConn) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(c.g.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.client.Done():
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, c.g.cfg.HeartbeatTimeout)
			err := c.conn.Ping(hbCtx)
			hbCancel()

			if err != nil {
				failures++
				c.log.Info("ws.ping.fail", "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					c.shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (c *wsConn) readLoop(ctx context.Context) {
	rl := NewRateLimiter(c.g.cfg.RateEvents, c.g.cfg.RateWindow)
	preHello := 0

	for {
		readCtx, readCancel := context.WithTimeout(ctx, c.g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, c.conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				c.shutdown(websocket.StatusNormalClosure, "peer closed")
				return
			case readErrCtxDone:
				c.shutdown(websocket.StatusNormalClosure, "context done")
				return
			case readErrConnClosed:
				c.shutdown(websocket.StatusAbnormalClosure, "conn closed")
				return
			case readErrBadJSON:
				c.g.metrics.reject("bad_json")
				c.sendError("bad_json", "invalid JSON")
				continue
			default:
				c.log.Info("ws.read.fail", "err", err)
				c.shutdown(websocket.StatusAbnormalClosure, "read failed")
				return
			}
		}

		if !rl.Allow(time.Now().UTC()) {
			c.g.metrics.reject("rate_limited")
			c.sendError("rate_limited", "too many events")
			c.shutdown(websocket.StatusPolicyViolation, "rate limited")
			return
		}

		if err := env.Validate(); err != nil {
			c.g.metrics.reject("bad_envelope")
			c.sendError("bad_envelope", err.Error())
			continue
		}
		c.g.metrics.envelope(env.Type)

		sess := c.current()
		switch {
		case env.Type == v1.TypeHello && sess != nil:
			c.sendError("already_hello", "hello already received")
			continue

		case env.Type == v1.TypeHello:
			if err := c.onHello(ctx, env); err != nil {
				code, msg := errorCode(err)
				c.log.Info("ws.hello.fail", "code", code, "err", err)
				c.sendError(code, msg)
				c.shutdown(websocket.StatusPolicyViolation, "hello failed")
				return
			}
			continue

		case sess == nil:
			preHello++
			c.sendError("hello_required", "send hello first")
			if preHello >= maxPreHelloEnvelopes {
				c.shutdown(websocket.StatusPolicyViolation, "hello required")
				return
			}
			continue
		}

		if err := c.dispatch(ctx, sess, env); err != nil {
			c.reportError(env.Type, err)
		}
	}
}

// ---- handlers ----

func (c *wsConn) onHello(ctx context.Context, env v1.Envelope) error {
	var p v1.HelloPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}

	pr, err := c.g.auth.Authenticate(ctx, identity.Credentials{Token: p.Token, UserID: p.UserID, Name: p.Name})
	if err != nil {
		return err
	}

	view := newSessionView(c.client, c.log, func() {
		go c.shutdown(websocket.StatusPolicyViolation, "slow consumer")
	})
	sess := c.g.svc.NewSession(messaging.Participant{ID: pr.ID, Name: pr.DisplayName}, view)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sess.Close()
		return errConnClosed
	}
	c.session = sess
	c.mu.Unlock()

	c.log.Info("ws.hello", "user_id", pr.ID)

	// The ack goes out before Start so it precedes the first unread envelope.
	if err := c.send(v1.TypeHelloAck, v1.HelloAckPayload{
		SessionID:   c.client.SessionID,
		UserID:      pr.ID,
		DisplayName: pr.DisplayName,
		PhotoURL:    pr.PhotoURL,
	}); err != nil {
		return err
	}
	return sess.Start(ctx)
}

func (c *wsConn) dispatch(ctx context.Context, sess *messaging.Session, env v1.Envelope) error {
	switch env.Type {
	case v1.TypeConversationContact:
		var p v1.ConversationContactPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return c.onContact(ctx, sess, p)

	case v1.TypeConversationOpen:
		var p v1.ConversationOpenPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		if err := sess.Open(ctx, p.ConversationID); err != nil {
			return err
		}
		return c.send(v1.TypeConversationOpened, v1.ConversationOpenedPayload{ConversationID: sess.Active()})

	case v1.TypeViewOpen, v1.TypeViewClose:
		var p v1.ViewPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		if p.View != v1.ViewMessages {
			return fmt.Errorf("%w: %q", errUnsupportedView, p.View)
		}
		if env.Type == v1.TypeViewClose {
			sess.CloseMessageView()
			return nil
		}
		return sess.OpenMessageView(ctx)

	case v1.TypeMessageSend:
		var p v1.MessageSendPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return sess.Send(ctx, p.Text)

	case v1.TypeInquiriesFetch:
		var p v1.InquiriesFetchPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return c.onInquiries(ctx, sess, p)

	case v1.TypePostsFetch:
		return c.onPosts(ctx, sess)

	default:
		return fmt.Errorf("unsupported type: %s", env.Type)
	}
}

// onContact resolves the counterpart (the item owner unless given) and opens the
// conversation with them.
func (c *wsConn) onContact(ctx context.Context, sess *messaging.Session, p v1.ConversationContactPayload) error {
	counterpart := messaging.Participant{
		ID:   strings.TrimSpace(p.CounterpartID),
		Name: strings.TrimSpace(p.CounterpartName),
	}
	if counterpart.ID == "" {
		item, err := posts.LookupItem(ctx, c.g.store, p.ItemID)
		if err != nil {
			return err
		}
		if item.OwnerID == "" {
			return fmt.Errorf("%w: item has no owner", posts.ErrInvalidInput)
		}
		counterpart = messaging.Participant{ID: item.OwnerID, Name: item.Owner}
	}

	id, err := sess.Contact(ctx, counterpart, p.ItemID)
	if err != nil {
		return err
	}
	return c.send(v1.TypeConversationOpened, v1.ConversationOpenedPayload{ConversationID: id})
}

// onInquiries answers only the owner of the item.
func (c *wsConn) onInquiries(ctx context.Context, sess *messaging.Session, p v1.InquiriesFetchPayload) error {
	item, err := posts.LookupItem(ctx, c.g.store, p.ItemID)
	if err != nil {
		return err
	}
	if item.OwnerID != sess.Self().ID {
		return fmt.Errorf("%w: not the item owner", errForbidden)
	}

	list, err := sess.Inquiries(ctx, item.ID)
	if err != nil {
		return err
	}
	out := v1.InquiriesPayload{ItemID: item.ID, Inquiries: make([]v1.Inquiry, 0, len(list))}
	for _, in := range list {
		out.Inquiries = append(out.Inquiries, v1.Inquiry{
			ConversationID: in.ConversationID,
			OtherName:      in.OtherName,
			LastMessage:    in.LastMessage,
			LastActivityAt: in.LastActivityAt,
		})
	}
	return c.send(v1.TypeInquiries, out)
}

func (c *wsConn) onPosts(ctx context.Context, sess *messaging.Session) error {
	list, err := posts.MyPosts(ctx, c.g.store, sess.Self().ID)
	if err != nil {
		return err
	}
	out := v1.PostsPayload{Posts: make([]v1.Post, 0, len(list))}
	for _, p := range list {
		out.Posts = append(out.Posts, v1.Post{ID: p.ID, Kind: string(p.Kind), Title: p.Title, Date: p.Date})
	}
	return c.send(v1.TypePosts, out)
}

// ---- send helpers ----

func (c *wsConn) send(typ string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if !c.client.TrySend(newEnvelope(typ, b, time.Now().UTC())) {
		return fmt.Errorf("%w: %s", errBackpressure, typ)
	}
	return nil
}

func (c *wsConn) sendError(code, msg string) {
	_ = c.send(v1.TypeError, v1.ErrorPayload{Code: code, Message: msg})
}

// reportError maps a handler error to an error envelope. Internal failures are
// logged; the client only sees a generic message.
func (c *wsConn) reportError(typ string, err error) {
	code, msg := errorCode(err)
	if code == "internal" {
		c.log.Warn("ws.handler.fail", "type", typ, "err", err)
	} else {
		c.log.Debug("ws.handler.reject", "type", typ, "code", code, "err", err)
	}
	c.sendError(code, msg)
}

func errorCode(err error) (code, msg string) {
	switch {
	case errors.Is(err, errBadPayload), errors.Is(err, errUnsupportedView):
		return "bad_payload", err.Error()
	case identity.IsUnauthenticated(err):
		return "unauthenticated", "authentication required"
	case errors.Is(err, errForbidden), errors.Is(err, messaging.ErrNotParticipant):
		return "forbidden", "not allowed"
	case errors.Is(err, messaging.ErrNotFound), errors.Is(err, posts.ErrNotFound):
		return "not_found", "not found"
	case errors.Is(err, messaging.ErrNoActiveConversation):
		return "no_active_conversation", "open a conversation first"
	case errors.Is(err, messaging.ErrSessionClosed), errors.Is(err, errConnClosed):
		return "closed", "session closed"
	case errors.Is(err, errBackpressure):
		return "backpressure", "send queue full"
	case messaging.IsValidation(err), identity.IsInvalidInput(err), errors.Is(err, posts.ErrInvalidInput):
		return "invalid", err.Error()
	default:
		return "internal", "internal error"
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(ts),
		TS:      ts,
		Payload: payload,
	}
}

func decodePayload(env v1.Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	switch {
	case errors.Is(err, errBadJSON):
		return readErrBadJSON
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	default:
		return readErrUnknown
	}
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*":
			return nil
		case origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			// Host match ignores scheme and port.
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins returns the sorted, de-duplicated hosts of
// the allowlist. websocket.Accept matches them against the Origin host.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		out = append(out, h)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
