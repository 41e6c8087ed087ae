package app

import (
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

const (
	defaultLogWidth = 100
	minLogWidth     = 40
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// visualLen counts the runes a terminal shows for s.
func visualLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// terminalWidth prefers CAMPUS_LOG_WIDTH, then COLUMNS. Values below minLogWidth
// are ignored.
func (h *prettyHandler) terminalWidth() int {
	for _, key := range []string{"CAMPUS_LOG_WIDTH", "COLUMNS"} {
		n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
		if err == nil && n >= minLogWidth {
			return n
		}
	}
	return defaultLogWidth
}

// wrapSegments packs segs greedily into lines of at most width visible runes.
// Continuation lines start with prefix. A segment that cannot fit on its own line
// is truncated with an ellipsis.
func wrapSegments(segs []string, sep string, width int, prefix string) []string {
	var (
		lines []string
		cur   string
	)
	for _, seg := range segs {
		if cur == "" {
			lead := ""
			if len(lines) > 0 {
				lead = prefix
			}
			cur = lead + truncateVisual(seg, width-visualLen(lead))
			continue
		}
		if visualLen(cur)+visualLen(sep)+visualLen(seg) <= width {
			cur += sep + seg
			continue
		}
		lines = append(lines, cur)
		cur = prefix + truncateVisual(seg, width-visualLen(prefix))
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// truncateVisual shortens s to max visible runes. Color is dropped from
// truncated segments.
func truncateVisual(s string, max int) string {
	if max <= 1 || visualLen(s) <= max {
		return s
	}
	r := []rune(stripANSI(s))
	return string(r[:max-1]) + "…"
}

func colorizeHTTPMethod(m string, color bool) string {
	if !color {
		return m
	}
	switch m {
	case "GET", "HEAD":
		return ansiGreen + m + ansiReset
	case "POST":
		return ansiBlue + m + ansiReset
	case "PUT", "PATCH":
		return ansiYellow + m + ansiReset
	case "DELETE":
		return ansiRed + m + ansiReset
	default:
		return ansiMagenta + m + ansiReset
	}
}

func colorizeStatusCode(code int, color bool) string {
	s := strconv.Itoa(code)
	if !color {
		return s
	}
	return statusColor(code) + s + ansiReset
}

func colorizeStatusClass(class string, color bool) string {
	if !color || class == "" {
		return class
	}
	n, err := strconv.Atoi(class[:1])
	if err != nil {
		return class
	}
	return statusColor(n*100) + class + ansiReset
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	if !color {
		return s
	}
	switch {
	case ms >= 1000:
		return ansiRed + s + ansiReset
	case ms >= 250:
		return ansiYellow + s + ansiReset
	default:
		return ansiDim + s + ansiReset
	}
}

func colorizeResult(result string, color bool) string {
	if !color {
		return result
	}
	switch result {
	case "success":
		return ansiGreen + result + ansiReset
	case "redirect":
		return ansiCyan + result + ansiReset
	case "client_error":
		return ansiYellow + result + ansiReset
	case "server_error":
		return ansiRed + result + ansiReset
	default:
		return result
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
