// Package app wires the campus portal server: config, logging, the document store
// and its change feed, HTTP routes, metrics, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/raj783e/campus/cmd/identity"
	"github.com/raj783e/campus/cmd/internal/blob"
	"github.com/raj783e/campus/cmd/internal/docstore"
	"github.com/raj783e/campus/cmd/internal/messaging"
	"github.com/raj783e/campus/cmd/internal/realtime"
	"github.com/raj783e/campus/cmd/internal/uploads"
)

// App is the portal server runtime: it owns the store, the HTTP server wiring, and
// the realtime gateway dependencies.
type App struct {
	cfg Config
	log Logger

	pool  *pgxpool.Pool
	store docstore.Store
	pg    *docstore.PostgresStore
	feed  docstore.ChangeFeed

	registry *prometheus.Registry
	ws       *realtime.WSGateway
	uploads  *uploads.Handler

	closeOnce sync.Once
	closeErr  error
}

// New constructs a fully wired App instance from config and logger.
// On success the caller owns the App and must Run or Close it.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}
	signer, err := NewTokenSigner()
	if err != nil {
		return nil, err
	}
	if signer == nil {
		log.Warn("auth.dev_insecure", "reason", "no token key; hello trusts claimed user ids")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	subs := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campus",
		Subsystem: "docstore",
		Name:      "live_subscriptions",
		Help:      "Active live query subscriptions.",
	})
	reg.MustRegister(subs)

	a := &App{cfg: cfg, log: log, registry: reg}
	if err := a.openStore(ctx, func(n int) { subs.Set(float64(n)) }); err != nil {
		_ = a.Close()
		return nil, err
	}

	auth := identity.NewAuthenticator(a.store, signer, cfg.AuthDevInsecure, log)
	svc := messaging.NewService(a.store,
		messaging.WithLogger(log),
		messaging.WithMetrics(messaging.NewMetrics(reg)),
	)

	a.ws, err = realtime.NewWSGateway(log, cfg.WS, realtime.Deps{
		Auth:      auth,
		Messaging: svc,
		Store:     a.store,
		Metrics:   realtime.NewMetrics(reg),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	blobs, err := blob.NewDirStore(cfg.BlobDir, cfg.BlobPublicURL, cfg.BlobMaxBytes)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.uploads, err = uploads.NewHandler(log, auth, blobs, cfg.BlobMaxBytes)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	return a, nil
}

// openStore selects the document store: PostgreSQL when a database is configured,
// the in-memory store otherwise.
func (a *App) openStore(ctx context.Context, gauge func(int)) error {
	mode := a.cfg.feedMode()

	if a.cfg.DatabaseURL == "" {
		if mode != FeedNone {
			a.log.Warn("docstore.feed.ignored", "feed", mode, "reason", "memory store is single-instance")
		}
		a.log.Info("db.disabled.memory_store")
		a.store = docstore.NewMemoryStore(
			docstore.WithMemoryLogger(a.log),
			docstore.WithMemorySubscriptionGauge(gauge),
		)
		return nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	a.pool = pool

	// Ownership model:
	// - app owns pool and feed lifecycle
	// - PostgresStore.Close only disposes live subscriptions
	feed, err := newChangeFeed(ctx, a.cfg, pool, a.log)
	if err != nil {
		return err
	}
	a.feed = feed

	opts := []docstore.PostgresOption{
		docstore.WithSchema(a.cfg.DBSchema),
		docstore.WithLogger(a.log),
		docstore.WithSubscriptionGauge(gauge),
	}
	if feed != nil {
		opts = append(opts, docstore.WithChangeFeed(feed))
	}
	pg, err := docstore.NewPostgresStore(pool, opts...)
	if err != nil {
		return err
	}
	if a.cfg.DBAutoMigrate {
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	a.pg, a.store = pg, pg

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema, "feed", mode)
	return nil
}

func newChangeFeed(ctx context.Context, cfg Config, pool *pgxpool.Pool, log Logger) (docstore.ChangeFeed, error) {
	switch mode := cfg.feedMode(); mode {
	case FeedNone:
		return nil, nil
	case FeedLocal:
		return docstore.NewLocalFeed(), nil
	case FeedRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, errors.New("config: CAMPUS_CHANGE_FEED=redis requires CAMPUS_REDIS_URL")
		}
		f, err := docstore.NewRedisFeedFromURL(ctx, cfg.RedisURL, cfg.ChangeFeedChannel)
		if err != nil {
			return nil, err
		}
		return f, nil
	case FeedPostgres:
		f, err := docstore.NewPostgresFeed(pool, cfg.ChangeFeedChannel, log)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("config: unknown CAMPUS_CHANGE_FEED %q", mode)
	}
}

// Run starts the HTTP server and the change feed consumer and blocks until context
// cancellation or a fatal error. Run closes the App before returning.
func (a *App) Run(ctx context.Context) error {
	defer func() { _ = a.Close() }()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"http", base,
		"ws", wsBaseURL(base)+"/ws",
		"db_enabled", a.pool != nil,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if a.pg != nil {
		g.Go(func() error {
			if err := a.pg.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("change feed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		a.log.Error("server.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

// Close releases the store, the change feed, and the pool. It is idempotent.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.store != nil {
			errs = append(errs, a.store.Close())
		}
		if a.feed != nil {
			errs = append(errs, a.feed.Close())
		}
		if a.pool != nil {
			a.pool.Close()
		}
		a.closeErr = errors.Join(errs...)
		if a.closeErr != nil {
			a.log.Error("store.close.fail", "err", a.closeErr)
		}
	})
	return a.closeErr
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
