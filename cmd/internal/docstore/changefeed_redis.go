package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultFeedChannel is the pub/sub channel (Redis) or LISTEN channel (PostgreSQL)
// used for change signals.
const DefaultFeedChannel = "campus_docstore_changes"

// RedisFeed is a ChangeFeed backed by Redis pub/sub, for multi-instance deployments
// where PostgreSQL LISTEN/NOTIFY is unavailable (poolers in transaction mode).
//
// Ownership model: RedisFeed owns the client it was built with via NewRedisFeedFromURL;
// Close closes it. A client passed to NewRedisFeed stays owned by the caller.
type RedisFeed struct {
	client  *redis.Client
	channel string
	owned   bool
}

// NewRedisFeed wraps an existing client.
func NewRedisFeed(client *redis.Client, channel string) (*RedisFeed, error) {
	if client == nil {
		return nil, errors.New("docstore: nil redis client")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultFeedChannel
	}
	return &RedisFeed{client: client, channel: channel}, nil
}

// NewRedisFeedFromURL dials redis:// URLs and verifies connectivity.
func NewRedisFeedFromURL(ctx context.Context, url, channel string) (*RedisFeed, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	f, err := NewRedisFeed(c, channel)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	f.owned = true
	return f, nil
}

// Publish announces a change to collection.
func (f *RedisFeed) Publish(ctx context.Context, collection string) error {
	return f.client.Publish(ctx, f.channel, collection).Err()
}

// Listen subscribes to the channel and forwards payloads until ctx is done.
func (f *RedisFeed) Listen(ctx context.Context, fn func(collection string)) error {
	ps := f.client.Subscribe(ctx, f.channel)
	defer func() { _ = ps.Close() }()

	// Wait for the subscription confirmation so publishes after Listen starts are not lost.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis: subscribe: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis: subscription closed")
			}
			if msg.Payload != "" {
				fn(msg.Payload)
			}
		}
	}
}

// Close releases the client when owned.
func (f *RedisFeed) Close() error {
	if f.owned {
		return f.client.Close()
	}
	return nil
}

var _ ChangeFeed = (*RedisFeed)(nil)
