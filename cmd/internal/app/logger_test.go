package app

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" Debug ": slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"trace":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", in, got, want)
		}
	}
}

func TestNewLoggerHandlerByFormat(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cases := []struct {
		format     string
		wantPretty bool
	}{
		{format: "json", wantPretty: false},
		{format: "", wantPretty: false},
		{format: "pretty", wantPretty: true},
		{format: " TEXT ", wantPretty: true},
	}

	for _, tc := range cases {
		log := NewLogger("warn", tc.format)
		_, pretty := log.Handler().(*prettyHandler)
		if pretty != tc.wantPretty {
			t.Fatalf("format %q: handler=%T", tc.format, log.Handler())
		}
		if log.Enabled(context.Background(), slog.LevelInfo) {
			t.Fatalf("format %q: info must be filtered at warn level", tc.format)
		}
		if slog.Default() != log {
			t.Fatalf("format %q: logger not installed as default", tc.format)
		}
	}
}
