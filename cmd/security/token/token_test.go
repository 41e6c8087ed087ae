package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestSigner_IssueVerify(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewSigner(testKey, MinKeyBytes)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	s = s.WithClock(func() time.Time { return now })

	tok, err := s.Issue("uid-alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	uid, exp, err := s.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if uid != "uid-alice" {
		t.Fatalf("uid=%q", uid)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("exp=%v", exp)
	}

	later := s.WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	if _, _, err := later.Verify(tok); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestSigner_RejectsTampering(t *testing.T) {
	t.Parallel()

	s, err := NewSigner(testKey, MinKeyBytes)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	tok, err := s.Issue("uid-alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, err := NewSigner(strings.Repeat("z", 32), MinKeyBytes)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	forged, err := other.Issue("uid-alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(tok, ".")
	cases := map[string]string{
		"empty":         "",
		"two parts":     parts[0] + "." + parts[1],
		"other key":     forged,
		"swapped user":  "dWlkLWJvYg." + parts[1] + "." + parts[2],
		"bumped expiry": parts[0] + ".9999999999." + parts[2],
	}
	for name, bad := range cases {
		if _, _, err := s.Verify(bad); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("%s: expected ErrTokenInvalid, got %v", name, err)
		}
	}
}

func TestNewSigner_KeyPolicy(t *testing.T) {
	t.Parallel()

	if _, err := NewSigner("  ", 0); !errors.Is(err, ErrHMACKeyMissing) {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}
	if _, err := NewSigner("short", MinKeyBytes); !errors.Is(err, ErrHMACKeyTooShort) {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}
	if _, err := NewSigner("short", 0); err != nil {
		t.Fatalf("dev key rejected: %v", err)
	}
}

func TestHMACKeyFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, " "+testKey+" ")

	b, err := HMACKeyFromEnv(MinKeyBytes)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if string(b) != testKey {
		t.Fatalf("key not trimmed: %q", b)
	}
}
