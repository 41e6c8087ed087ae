package app

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"github.com/raj783e/campus/cmd/internal/realtime"
)

// Change feed modes for CAMPUS_CHANGE_FEED.
const (
	FeedNone     = "none"
	FeedLocal    = "local"
	FeedRedis    = "redis"
	FeedPostgres = "postgres"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Without DatabaseURL the server runs on the in-memory document store.
	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// DBAutoMigrate applies the document schema on startup.
	DBAutoMigrate bool

	ChangeFeed        string
	ChangeFeedChannel string
	RedisURL          string

	BlobDir       string
	BlobPublicURL string
	BlobMaxBytes  int64

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, CAMPUS_TOKEN_HMAC_KEY must be set (>= 32 bytes).
	RequireTokenHMAC bool

	// AuthDevInsecure trusts the user id claimed in hello. Never enable in production.
	AuthDevInsecure bool
	SessionTokenTTL time.Duration

	WS realtime.Config
}

// LoadDotEnv loads path (default ".env") into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("CAMPUS_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("CAMPUS_LOG_LEVEL", "info"),
		LogFormat: EnvString("CAMPUS_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("CAMPUS_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("CAMPUS_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("CAMPUS_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("CAMPUS_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("CAMPUS_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("CAMPUS_DATABASE_URL", ""),
		DBSchema:    EnvString("CAMPUS_DB_SCHEMA", "campus"),
		DBMaxConns:  EnvInt32("CAMPUS_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("CAMPUS_DB_MIN_CONNS", 0),

		DBAutoMigrate: EnvBool("CAMPUS_DB_AUTO_MIGRATE", false),

		ChangeFeed:        EnvString("CAMPUS_CHANGE_FEED", ""),
		ChangeFeedChannel: EnvString("CAMPUS_CHANGE_FEED_CHANNEL", ""),
		RedisURL:          EnvString("CAMPUS_REDIS_URL", ""),

		BlobDir:       EnvString("CAMPUS_BLOB_DIR", "./data/blobs"),
		BlobPublicURL: EnvString("CAMPUS_BLOB_PUBLIC_URL", "/files"),
		BlobMaxBytes:  EnvInt64("CAMPUS_BLOB_MAX_BYTES", 10<<20),

		CORSAllowedOrigins:   EnvCSV("CAMPUS_CORS_ALLOWED_ORIGINS", "http://localhost:*,http://127.0.0.1:*"),
		CORSAllowCredentials: EnvBool("CAMPUS_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("CAMPUS_CORS_MAX_AGE_SECONDS", 600),

		ReadinessRequireDB: EnvBool("CAMPUS_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("CAMPUS_REQUIRE_TOKEN_HMAC", false),
		AuthDevInsecure:  EnvBool("CAMPUS_AUTH_DEV_INSECURE", false),
		SessionTokenTTL:  EnvDuration("CAMPUS_SESSION_TOKEN_TTL", 24*time.Hour),

		WS: realtime.ConfigFromEnv(),
	}
}

// feedMode resolves the effective change feed: Postgres deployments default to
// LISTEN/NOTIFY, the in-memory store to none.
func (c Config) feedMode() string {
	if c.ChangeFeed != "" {
		return c.ChangeFeed
	}
	if c.DatabaseURL != "" {
		return FeedPostgres
	}
	return FeedNone
}
