package docstore

import (
	"strings"
	"time"
)

// TimeLayout is the wire format for timestamps stored inside documents:
// millisecond ISO-8601 in UTC. Fixed width, so string order equals time order.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Fields is the mutable payload of a document.
//
// Values are JSON-shaped: string, bool, float64/int, nil, []any, map[string]any.
// []string and time.Time are accepted on write and normalized ([]any, TimeLayout string).
type Fields map[string]any

// Document is one stored record as returned by reads and snapshots.
type Document struct {
	ID         string
	Collection string
	Data       Fields

	// Rev increments on every update; snapshots use it to detect modifications.
	Rev int64
	// Seq is the store-assigned insertion sequence; it breaks ordering ties.
	Seq int64

	CreatedAt time.Time
}

// String returns the string value of field, or "" when absent or not a string.
func (d Document) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

// Strings returns the string elements of an array field.
// Non-string elements are skipped; a missing field yields nil.
func (d Document) Strings(field string) []string {
	switch v := d.Data[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Time parses a timestamp field. Missing or malformed values yield the zero time.
func (d Document) Time(field string) time.Time {
	switch v := d.Data[field].(type) {
	case string:
		return ParseTime(v)
	case time.Time:
		return v.UTC()
	default:
		return time.Time{}
	}
}

// Has reports whether field is present with a non-nil value.
func (d Document) Has(field string) bool {
	v, ok := d.Data[field]
	return ok && v != nil
}

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts TimeLayout and RFC 3339 variants; anything else is the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// Join builds a collection path from segments: Join("chats", id, "messages").
func Join(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p != "" {
			segs = append(segs, p)
		}
	}
	return strings.Join(segs, "/")
}

// validCollection reports whether path names a collection: an odd number of
// non-empty segments (collection[/doc/collection]...).
func validCollection(path string) bool {
	if path == "" {
		return false
	}
	segs := strings.Split(path, "/")
	if len(segs)%2 != 1 {
		return false
	}
	for _, s := range segs {
		if strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

func validID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && !strings.Contains(id, "/")
}

// normalizeFields returns a deep copy of in with write-side normalization applied.
func normalizeFields(in Fields) Fields {
	out := make(Fields, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return FormatTime(t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		return map[string]any(normalizeFields(Fields(t)))
	case Fields:
		return map[string]any(normalizeFields(t))
	default:
		return v
	}
}

// cloneDocument copies d so callers cannot mutate store state through snapshots.
func cloneDocument(d Document) Document {
	d.Data = normalizeFields(d.Data)
	return d
}
