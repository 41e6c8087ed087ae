package docstore

import (
	"context"
	"sync"
)

// ChangeFeed carries "collection changed" signals between store instances.
//
// Publish is called after every committed write. Listen blocks until ctx is done,
// invoking fn for every collection name received (including this instance's own
// publishes; live subscriptions de-duplicate unchanged results).
type ChangeFeed interface {
	Publish(ctx context.Context, collection string) error
	Listen(ctx context.Context, fn func(collection string)) error
	Close() error
}

// LocalFeed is an in-process ChangeFeed for single-instance deployments.
type LocalFeed struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]func(string)
}

// NewLocalFeed constructs an in-process feed.
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{listeners: make(map[int]func(string))}
}

// Publish invokes every active listener synchronously.
func (f *LocalFeed) Publish(_ context.Context, collection string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, fn := range f.listeners {
		fn(collection)
	}
	return nil
}

// Listen registers fn until ctx is done.
func (f *LocalFeed) Listen(ctx context.Context, fn func(collection string)) error {
	f.mu.Lock()
	f.next++
	id := f.next
	f.listeners[id] = fn
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	delete(f.listeners, id)
	f.mu.Unlock()
	return nil
}

// Close is a no-op.
func (f *LocalFeed) Close() error { return nil }

var _ ChangeFeed = (*LocalFeed)(nil)
