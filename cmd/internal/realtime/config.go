package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Origin is required and only localhost is allowed unless configured otherwise.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Config holds the gateway knobs.
type Config struct {
	// DevInsecure disables websocket.Accept's own origin verification. It does not
	// disable the allowlist check.
	DevInsecure bool

	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultConfig returns the secure defaults.
func DefaultConfig() Config {
	return Config{
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:     wsDefaultWriteTimeout,
		ReadIdleTimeout:  wsDefaultReadIdle,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// ConfigFromEnv reads CAMPUS_WS_* over DefaultConfig. Invalid values keep the default.
func ConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		DevInsecure:      envBoolWS("CAMPUS_WS_DEV_INSECURE", false),
		OriginRequired:   envBoolWS("CAMPUS_WS_ORIGIN_REQUIRED", def.OriginRequired),
		AllowedOrigins:   envCSVWS("CAMPUS_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins),
		WriteTimeout:     envDurationWS("CAMPUS_WS_WRITE_TIMEOUT", def.WriteTimeout),
		ReadIdleTimeout:  envDurationWS("CAMPUS_WS_READ_IDLE_TIMEOUT", def.ReadIdleTimeout),
		SendQueueSize:    envIntWS("CAMPUS_WS_SEND_QUEUE", def.SendQueueSize),
		HeartbeatEvery:   envDurationWS("CAMPUS_WS_HEARTBEAT_INTERVAL", def.HeartbeatEvery),
		HeartbeatTimeout: envDurationWS("CAMPUS_WS_HEARTBEAT_TIMEOUT", def.HeartbeatTimeout),
		RateEvents:       envIntWS("CAMPUS_WS_RATE_EVENTS", def.RateEvents),
		RateWindow:       envDurationWS("CAMPUS_WS_RATE_WINDOW", def.RateWindow),
	}
}

// normalize replaces zero or out-of-range values with defaults.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = def.ReadIdleTimeout
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = def.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = def.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = def.RateWindow
	}
	return c
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	return splitCSV(raw)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
