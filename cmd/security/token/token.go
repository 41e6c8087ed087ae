package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "CAMPUS_TOKEN_HMAC_KEY"

	// MinKeyBytes is the key size enforced when HMAC is required by policy.
	MinKeyBytes = 32
)

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	return checkKey(os.Getenv(HMACEnvKey), minBytes)
}

func checkKey(raw string, minBytes int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Signer issues and verifies session tokens with one key.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner constructs a Signer. key must satisfy minBytes (0 disables the check).
func NewSigner(key string, minBytes int) (*Signer, error) {
	b, err := checkKey(key, minBytes)
	if err != nil {
		return nil, err
	}
	return &Signer{key: b, now: time.Now}, nil
}

// WithClock returns a copy of s that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	cp := *s
	cp.now = now
	return &cp
}

// Issue returns a token for userID valid for ttl.
func (s *Signer) Issue(userID string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || ttl <= 0 {
		return "", ErrTokenInvalid
	}
	exp := s.now().Add(ttl).Unix()
	payload := base64.RawURLEncoding.EncodeToString([]byte(userID)) + "." + strconv.FormatInt(exp, 10)
	return payload + "." + HashHMACSHA256Hex(payload, s.key), nil
}

// Verify checks tok and returns its user id and expiry.
// Malformed or forged tokens fail with ErrTokenInvalid; stale ones with ErrTokenExpired.
func (s *Signer) Verify(tok string) (string, time.Time, error) {
	parts := strings.Split(strings.TrimSpace(tok), ".")
	if len(parts) != 3 {
		return "", time.Time{}, ErrTokenInvalid
	}

	payload := parts[0] + "." + parts[1]
	want := HashHMACSHA256Hex(payload, s.key)
	if !hmac.Equal([]byte(want), []byte(parts[2])) {
		return "", time.Time{}, ErrTokenInvalid
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || len(raw) == 0 {
		return "", time.Time{}, ErrTokenInvalid
	}
	expUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, ErrTokenInvalid
	}

	exp := time.Unix(expUnix, 0).UTC()
	if !s.now().Before(exp) {
		return "", time.Time{}, ErrTokenExpired
	}
	return string(raw), exp, nil
}
