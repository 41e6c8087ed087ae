package ids

import (
	"testing"
	"time"
)

func TestNewULIDSortsWithinMillisecond(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_700_000_000_000).UTC()
	prev := ""
	for i := 0; i < 100; i++ {
		id, err := NewULID(now)
		if err != nil {
			t.Fatalf("NewULID: %v", err)
		}
		if len(id) != 26 {
			t.Fatalf("len(%q)=%d want 26", id, len(id))
		}
		if id <= prev {
			t.Fatalf("id %q not after %q", id, prev)
		}
		prev = id
	}
}

func TestTimeRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_700_000_123_456).UTC()
	id := MustULID(now)

	got, err := Time(id)
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if !got.Equal(now) {
		t.Fatalf("Time()=%v want %v", got, now)
	}

	if _, err := Time("not-a-ulid"); err == nil {
		t.Fatal("expected parse error")
	}
}
