// Package ids provides ULID primitives shared by the document store and the gateway.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is a process-wide monotonic source so ids minted within the same
// millisecond still sort in creation order.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a new ULID string (26 chars).
// ULIDs are lexicographically sortable, which keeps generated document ids in insertion order.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	if err != nil {
		// Monotonic entropy overflows after 2^80 ids in one millisecond; fall back to fresh randomness.
		id, err = ulid.New(ulid.Timestamp(now), rand.Reader)
		if err != nil {
			return "", err
		}
	}
	return id.String(), nil
}

// MustULID is NewULID for call sites that cannot surface an error (envelope ids, log correlation).
// It returns an empty string if the random source fails.
func MustULID(now time.Time) string {
	id, err := NewULID(now)
	if err != nil {
		return ""
	}
	return id
}

// Time extracts the embedded timestamp from a ULID string.
func Time(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
