package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/raj783e/campus/cmd/identity"
	"github.com/raj783e/campus/cmd/internal/docstore"
	"github.com/raj783e/campus/cmd/internal/messaging"
	"github.com/raj783e/campus/cmd/internal/posts"
)

func TestOriginHostOnly(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                         "",
		"http://localhost":         "localhost",
		"http://LocalHost:5173":    "localhost",
		"https://portal.edu:443/x": "portal.edu",
		"127.0.0.1:8080":           "127.0.0.1",
		"portal.edu":               "portal.edu",
		"http://":                  "",
	}
	for in, want := range cases {
		if got := originHostOnly(in); got != want {
			t.Fatalf("originHostOnly(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatternsFromAllowedOrigins([]string{
		"https://portal.edu", "*", "http://localhost:3000", "http://localhost", "",
	})
	want := []string{"localhost", "portal.edu"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEnforceOrigin(t *testing.T) {
	t.Parallel()

	g := &WSGateway{cfg: Config{
		OriginRequired: true,
		AllowedOrigins: []string{"https://portal.edu", "http://localhost"},
	}}

	cases := []struct {
		origin string
		ok     bool
	}{
		{"", false},
		{"https://portal.edu", true},
		{"http://portal.edu:8080", true},
		{"http://localhost:5173", true},
		{"https://evil.example", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		err := g.enforceOrigin(r)
		if (err == nil) != tc.ok {
			t.Fatalf("origin %q: err=%v, want ok=%v", tc.origin, err, tc.ok)
		}
	}

	g.cfg.OriginRequired = false
	if err := g.enforceOrigin(httptest.NewRequest("GET", "/ws", nil)); err != nil {
		t.Fatalf("missing origin must pass when not required: %v", err)
	}
}

func TestClassifyReadErr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want readErrKind
	}{
		{fmt.Errorf("%w: unexpected end", errBadJSON), readErrBadJSON},
		{context.Canceled, readErrCtxDone},
		{fmt.Errorf("read: %w", context.DeadlineExceeded), readErrCtxDone},
		{io.EOF, readErrConnClosed},
		{errors.New("boom"), readErrUnknown},
	}
	for _, tc := range cases {
		if got := classifyReadErr(tc.err); got != tc.want {
			t.Fatalf("classifyReadErr(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestErrorCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: x", errBadPayload), "bad_payload"},
		{identity.OpError{Op: "identity.Authenticate", Kind: identity.ErrUnauthenticated}, "unauthenticated"},
		{messaging.OpError{Op: "messaging.Authorize", Kind: messaging.ErrNotParticipant}, "forbidden"},
		{fmt.Errorf("%w: not the item owner", errForbidden), "forbidden"},
		{fmt.Errorf("posts.LookupItem: %w", posts.ErrNotFound), "not_found"},
		{messaging.OpError{Op: "messaging.Session.Send", Kind: messaging.ErrNoActiveConversation}, "no_active_conversation"},
		{messaging.OpError{Op: "messaging.FindOrCreate", Kind: messaging.ErrInvalidInput}, "invalid"},
		{fmt.Errorf("%w: hello.ack", errBackpressure), "backpressure"},
		{docstore.ErrClosed, "internal"},
	}
	for _, tc := range cases {
		code, msg := errorCode(tc.err)
		if code != tc.code {
			t.Fatalf("errorCode(%v) = %q, want %q", tc.err, code, tc.code)
		}
		if msg == "" {
			t.Fatalf("errorCode(%v): empty message", tc.err)
		}
	}
}

func TestConfigNormalize(t *testing.T) {
	t.Parallel()

	c := Config{SendQueueSize: 1}.normalize()
	def := DefaultConfig()
	if c.SendQueueSize != wsMinSendQueueSize {
		t.Fatalf("SendQueueSize = %d, want %d", c.SendQueueSize, wsMinSendQueueSize)
	}
	if c.WriteTimeout != def.WriteTimeout || c.RateEvents != def.RateEvents || c.HeartbeatEvery != def.HeartbeatEvery {
		t.Fatalf("zero values not defaulted: %+v", c)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CAMPUS_WS_ALLOWED_ORIGINS", " https://portal.edu , ,http://localhost ")
	t.Setenv("CAMPUS_WS_RATE_EVENTS", "nope")
	t.Setenv("CAMPUS_WS_ORIGIN_REQUIRED", "false")

	c := ConfigFromEnv()
	if want := []string{"https://portal.edu", "http://localhost"}; !reflect.DeepEqual(c.AllowedOrigins, want) {
		t.Fatalf("AllowedOrigins = %v, want %v", c.AllowedOrigins, want)
	}
	if c.RateEvents != rateLimitEvents {
		t.Fatalf("invalid int must keep default, got %d", c.RateEvents)
	}
	if c.OriginRequired {
		t.Fatal("OriginRequired must be false")
	}
}
