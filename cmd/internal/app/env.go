package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envValue returns the trimmed value of key, parsed by parse. A blank value,
// a parse failure, or a value rejected by parse yields def.
func envValue[T any](key string, def T, parse func(string) (T, bool)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, ok := parse(raw)
	if !ok {
		return def
	}
	return v
}

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	return envValue(key, def, func(s string) (string, bool) { return s, true })
}

// EnvBool reads a bool env var with a default.
func EnvBool(key string, def bool) bool {
	return envValue(key, def, func(s string) (bool, bool) {
		b, err := strconv.ParseBool(s)
		return b, err == nil
	})
}

// EnvInt reads a positive int env var with a default.
func EnvInt(key string, def int) int {
	return envValue(key, def, func(s string) (int, bool) {
		n, err := strconv.Atoi(s)
		return n, err == nil && n > 0
	})
}

// EnvInt32 reads a non-negative int32 env var with a default.
func EnvInt32(key string, def int32) int32 {
	return envValue(key, def, func(s string) (int32, bool) {
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err == nil && n >= 0
	})
}

// EnvInt64 reads a positive int64 env var with a default. Byte limits use it.
func EnvInt64(key string, def int64) int64 {
	return envValue(key, def, func(s string) (int64, bool) {
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil && n > 0
	})
}

// EnvDuration reads a positive duration env var with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
	return envValue(key, def, func(s string) (time.Duration, bool) {
		d, err := time.ParseDuration(s)
		return d, err == nil && d > 0
	})
}

// EnvCSV reads a comma-separated list with a default. Blank items are dropped.
func EnvCSV(key, def string) []string {
	raw := EnvString(key, def)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
