package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raj783e/campus/cmd/internal/docstore"
	"github.com/raj783e/campus/cmd/internal/realtime"
	"github.com/raj783e/campus/cmd/security/token"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "port only", in: ":7000", want: "http://127.0.0.1:7000"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://portal.campus.example", want: "wss://portal.campus.example"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestConfigFeedMode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "memory default", cfg: Config{}, want: FeedNone},
		{name: "postgres default", cfg: Config{DatabaseURL: "postgres://x"}, want: FeedPostgres},
		{name: "explicit wins", cfg: Config{DatabaseURL: "postgres://x", ChangeFeed: FeedRedis}, want: FeedRedis},
	}
	for _, tc := range cases {
		if got := tc.cfg.feedMode(); got != tc.want {
			t.Fatalf("%s: feedMode()=%q want=%q", tc.name, got, tc.want)
		}
	}
}

func TestNewChangeFeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	f, err := newChangeFeed(ctx, Config{ChangeFeed: FeedNone}, nil, log)
	if err != nil || f != nil {
		t.Fatalf("none: feed=%v err=%v", f, err)
	}

	f, err = newChangeFeed(ctx, Config{ChangeFeed: FeedLocal}, nil, log)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	if _, ok := f.(*docstore.LocalFeed); !ok {
		t.Fatalf("local: got %T", f)
	}

	if _, err := newChangeFeed(ctx, Config{ChangeFeed: FeedRedis}, nil, log); err == nil {
		t.Fatal("redis without url must fail")
	}
	if _, err := newChangeFeed(ctx, Config{ChangeFeed: FeedPostgres}, nil, log); err == nil {
		t.Fatal("postgres without pool must fail")
	}
	if _, err := newChangeFeed(ctx, Config{ChangeFeed: "kafka"}, nil, log); err == nil {
		t.Fatal("unknown feed must fail")
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		cfg     Config
		wantErr bool
	}{
		{name: "key present", key: strings.Repeat("k", token.MinKeyBytes), wantErr: false},
		{name: "key short", key: "short", cfg: Config{AuthDevInsecure: true}, wantErr: true},
		{name: "no key insecure", cfg: Config{AuthDevInsecure: true}, wantErr: false},
		{name: "no key secure", cfg: Config{}, wantErr: true},
		{name: "no key required", cfg: Config{AuthDevInsecure: true, RequireTokenHMAC: true}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(token.HMACEnvKey, tc.key)
			err := ValidateSecurityConfig(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateSecurityConfig() err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestNewTokenSigner(t *testing.T) {
	t.Setenv(token.HMACEnvKey, "")
	s, err := NewTokenSigner()
	if err != nil || s != nil {
		t.Fatalf("missing key: signer=%v err=%v", s, err)
	}

	t.Setenv(token.HMACEnvKey, strings.Repeat("k", token.MinKeyBytes))
	s, err = NewTokenSigner()
	if err != nil || s == nil {
		t.Fatalf("valid key: signer=%v err=%v", s, err)
	}
}

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	t.Setenv(token.HMACEnvKey, "")

	blobDir := t.TempDir()
	cfg := Config{
		AuthDevInsecure: true,
		BlobDir:         blobDir,
		BlobPublicURL:   "/files",
		BlobMaxBytes:    1 << 20,
		WS:              realtime.DefaultConfig(),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, blobDir
}

func TestAppRoutes(t *testing.T) {
	a, blobDir := newTestApp(t)

	if err := os.WriteFile(filepath.Join(blobDir, "hello.txt"), []byte("hi"), 0o600); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	cases := []struct {
		path     string
		want     int
		contains string
	}{
		{path: "/healthz", want: http.StatusOK, contains: "ok"},
		{path: "/readyz", want: http.StatusOK, contains: "ready"},
		{path: "/metrics", want: http.StatusOK, contains: "campus_docstore_live_subscriptions"},
		{path: "/files/hello.txt", want: http.StatusOK, contains: "hi"},
		{path: "/files/", want: http.StatusNotFound},
	}

	for _, tc := range cases {
		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode != tc.want {
			t.Fatalf("GET %s status=%d want=%d", tc.path, resp.StatusCode, tc.want)
		}
		if !strings.Contains(string(body), tc.contains) {
			t.Fatalf("GET %s body %q missing %q", tc.path, body, tc.contains)
		}
		if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("GET %s missing security headers", tc.path)
		}
	}
}

func TestAppReadyzRequiresDB(t *testing.T) {
	a, _ := newTestApp(t)
	a.cfg.ReadinessRequireDB = true

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want=503", rec.Code)
	}
}

func TestAppCloseIdempotent(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
