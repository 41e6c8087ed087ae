package docstore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgFeedMinBackoff = 100 * time.Millisecond
	pgFeedMaxBackoff = 5 * time.Second
)

// PostgresFeed is a ChangeFeed over PostgreSQL NOTIFY/LISTEN.
//
// Ownership model: the pool is owned by the caller; Close is a no-op.
// Listen holds one pooled connection for as long as it runs and reconnects with
// exponential backoff when that connection drops.
type PostgresFeed struct {
	pool    *pgxpool.Pool
	channel string
	log     *slog.Logger
}

// NewPostgresFeed constructs a feed on channel (default DefaultFeedChannel).
func NewPostgresFeed(pool *pgxpool.Pool, channel string, log *slog.Logger) (*PostgresFeed, error) {
	if pool == nil {
		return nil, errors.New("docstore: nil pool")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultFeedChannel
	}
	if !isValidPGIdent(channel) {
		return nil, errors.New("docstore: invalid channel identifier")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresFeed{pool: pool, channel: channel, log: log}, nil
}

// Publish sends NOTIFY channel, collection.
func (f *PostgresFeed) Publish(ctx context.Context, collection string) error {
	_, err := f.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, f.channel, collection)
	return err
}

// Listen blocks until ctx is done, forwarding notification payloads to fn.
func (f *PostgresFeed) Listen(ctx context.Context, fn func(collection string)) error {
	backoff := pgFeedMinBackoff
	for {
		err := f.listenOnce(ctx, fn, func() { backoff = pgFeedMinBackoff })
		if ctx.Err() != nil {
			return nil
		}
		f.log.Warn("docstore.feed.listen.fail", "channel", f.channel, "err", err, "retry_in", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff *= 2
		if backoff > pgFeedMaxBackoff {
			backoff = pgFeedMaxBackoff
		}
	}
}

func (f *PostgresFeed) listenOnce(ctx context.Context, fn func(string), connected func()) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// Stop listening before the connection goes back to the pool.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, _ = conn.Exec(cleanupCtx, `UNLISTEN *`)
		cancel()
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, `LISTEN `+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return err
	}
	connected()
	f.log.Info("docstore.feed.listen", "channel", f.channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Payload != "" {
			fn(n.Payload)
		}
	}
}

// Close is a no-op because the pool is owned by the caller.
func (f *PostgresFeed) Close() error { return nil }

var _ ChangeFeed = (*PostgresFeed)(nil)
