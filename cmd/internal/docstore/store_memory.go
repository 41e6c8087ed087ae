package docstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/raj783e/campus/cmd/identity/ids"
)

const (
	memMaxDocumentsPerCollection = 100_000
)

// MemoryStore is a dev/test Store used when no database is configured.
// It supports every Store operation including live subscriptions, scoped to one process.
type MemoryStore struct {
	log *slog.Logger
	now func() time.Time

	mu     sync.Mutex
	seq    int64
	colls  map[string]map[string]*Document
	closed bool

	live *liveSet
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryLogger sets the logger (default: slog.Default()).
func WithMemoryLogger(log *slog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMemoryClock overrides the creation-time clock.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMemorySubscriptionGauge reports the active live subscription count after every change.
func WithMemorySubscriptionGauge(fn func(active int)) MemoryOption {
	return func(s *MemoryStore) { s.live.onChange = fn }
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		log:   slog.Default(),
		now:   func() time.Time { return time.Now().UTC() },
		colls: make(map[string]map[string]*Document),
	}
	s.live = newLiveSet(s.log, s.Query)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.live.log = s.log
	return s
}

// Close disposes all live subscriptions. Later calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.live.close()
	return nil
}

// Add inserts data under a freshly generated id.
func (s *MemoryStore) Add(ctx context.Context, collection string, data Fields) (string, error) {
	id, err := ids.NewULID(s.now())
	if err != nil {
		return "", err
	}
	if err := s.insert(ctx, "docstore.Add", collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Create inserts data under id unless a document with that id exists.
func (s *MemoryStore) Create(ctx context.Context, collection, id string, data Fields) error {
	return s.insert(ctx, "docstore.Create", collection, id, data)
}

func (s *MemoryStore) insert(ctx context.Context, op, collection, id string, data Fields) error {
	if !validCollection(collection) || !validID(id) {
		return opErr(op, ErrInvalidInput, "bad collection or id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return opErr(op, ErrClosed, "")
	}

	c := s.colls[collection]
	if c == nil {
		c = make(map[string]*Document)
		s.colls[collection] = c
	}
	if _, ok := c[id]; ok {
		s.mu.Unlock()
		return opErr(op, ErrAlreadyExists, collection+"/"+id)
	}
	if len(c) >= memMaxDocumentsPerCollection {
		s.mu.Unlock()
		return opErr(op, ErrInvalidInput, "collection full")
	}

	s.seq++
	c[id] = &Document{
		ID:         id,
		Collection: collection,
		Data:       normalizeFields(data),
		Rev:        1,
		Seq:        s.seq,
		CreatedAt:  s.now(),
	}
	s.mu.Unlock()

	s.live.notify(collection)
	return nil
}

// Get returns one document or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.colls[collection][id]
	if !ok {
		return Document{}, opErr("docstore.Get", ErrNotFound, collection+"/"+id)
	}
	return cloneDocument(*d), nil
}

// Update merges fields into an existing document.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return opErr("docstore.Update", ErrClosed, "")
	}
	d, ok := s.colls[collection][id]
	if !ok {
		s.mu.Unlock()
		return opErr("docstore.Update", ErrNotFound, collection+"/"+id)
	}
	for k, v := range normalizeFields(fields) {
		d.Data[k] = v
	}
	d.Rev++
	s.mu.Unlock()

	s.live.notify(collection)
	return nil
}

// Delete removes a document; deleting a missing document is not an error.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	c := s.colls[collection]
	_, existed := c[id]
	delete(c, id)
	s.mu.Unlock()

	if existed {
		s.live.notify(collection)
	}
	return nil
}

// Query runs a one-time query.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := make([]Document, 0, len(s.colls[q.Collection]))
	for _, d := range s.colls[q.Collection] {
		if q.Matches(*d) {
			out = append(out, cloneDocument(*d))
		}
	}
	s.mu.Unlock()

	sortDocuments(out, q.Order)
	return out, nil
}

// Subscribe starts a live query.
func (s *MemoryStore) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.live.subscribe(q, fn)
}

var _ Store = (*MemoryStore)(nil)
