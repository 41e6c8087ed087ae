package docstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// runQueryFunc executes a one-time query against the owning backend.
type runQueryFunc func(ctx context.Context, q Query) ([]Document, error)

// liveSet owns the live subscriptions of one store and fans change signals out to them.
//
// Concurrency guarantees:
//   - notify never blocks: each watcher has a one-slot dirty signal, so bursts coalesce
//     into a single re-query that observes the latest state.
//   - each watcher delivers from its own goroutine, so snapshots of one subscription
//     are strictly sequential while different subscriptions are independent.
type liveSet struct {
	log          *slog.Logger
	run          runQueryFunc
	queryTimeout time.Duration

	mu       sync.RWMutex
	next     uint64
	byColl   map[string]map[uint64]*watcher
	closed   bool
	onChange func(active int)
}

func newLiveSet(log *slog.Logger, run runQueryFunc) *liveSet {
	if log == nil {
		log = slog.Default()
	}
	return &liveSet{
		log:          log,
		run:          run,
		queryTimeout: 10 * time.Second,
		byColl:       make(map[string]map[uint64]*watcher),
	}
}

type watcher struct {
	id    uint64
	query Query
	fn    SnapshotFunc

	dirty chan struct{}
	done  chan struct{}

	closeOnce sync.Once

	// prev is only touched by the delivery goroutine.
	prev      map[string]Document
	delivered bool
}

func (w *watcher) close() {
	w.closeOnce.Do(func() { close(w.done) })
}

func (w *watcher) signal() {
	select {
	case w.dirty <- struct{}{}:
	default:
		// A re-query is already pending; it will observe this change too.
	}
}

// subscribe registers q and schedules the initial delivery.
func (l *liveSet) subscribe(q Query, fn SnapshotFunc) (Unsubscribe, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, opErr("docstore.Subscribe", ErrInvalidInput, "nil callback")
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, opErr("docstore.Subscribe", ErrClosed, "")
	}
	l.next++
	w := &watcher{
		id:    l.next,
		query: q,
		fn:    fn,
		dirty: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	set := l.byColl[q.Collection]
	if set == nil {
		set = make(map[uint64]*watcher)
		l.byColl[q.Collection] = set
	}
	set[w.id] = w
	active := l.countLocked()
	l.mu.Unlock()

	l.reportActive(active)
	l.log.Debug("docstore.subscribe", "sub_id", w.id, "query", q.String())

	w.signal()
	go l.loop(w)

	return func() { l.unsubscribe(w) }, nil
}

func (l *liveSet) unsubscribe(w *watcher) {
	l.mu.Lock()
	if set := l.byColl[w.query.Collection]; set != nil {
		delete(set, w.id)
		if len(set) == 0 {
			delete(l.byColl, w.query.Collection)
		}
	}
	active := l.countLocked()
	l.mu.Unlock()

	w.close()
	l.reportActive(active)
}

// notify marks every subscription on collection as dirty.
func (l *liveSet) notify(collection string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, w := range l.byColl[collection] {
		w.signal()
	}
}

// close disposes every subscription; later subscribe calls fail with ErrClosed.
func (l *liveSet) close() {
	l.mu.Lock()
	l.closed = true
	var all []*watcher
	for _, set := range l.byColl {
		for _, w := range set {
			all = append(all, w)
		}
	}
	l.byColl = make(map[string]map[uint64]*watcher)
	l.mu.Unlock()

	for _, w := range all {
		w.close()
	}
	l.reportActive(0)
}

func (l *liveSet) countLocked() int {
	n := 0
	for _, set := range l.byColl {
		n += len(set)
	}
	return n
}

func (l *liveSet) reportActive(n int) {
	if l.onChange != nil {
		l.onChange(n)
	}
}

func (l *liveSet) loop(w *watcher) {
	for {
		select {
		case <-w.done:
			return
		case <-w.dirty:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.queryTimeout)
		docs, err := l.run(ctx, w.query)
		cancel()

		// Skip delivery if the subscription was disposed while the query ran.
		select {
		case <-w.done:
			return
		default:
		}

		if err != nil {
			l.log.Warn("docstore.subscription.query.fail", "sub_id", w.id, "query", w.query.String(), "err", err)
			w.fn(Snapshot{}, err)
			continue
		}

		changes, idx := diffDocs(w.prev, docs)
		if w.delivered && len(changes) == 0 {
			continue
		}
		w.prev = idx
		w.delivered = true

		w.fn(Snapshot{Docs: docs, Changes: changes}, nil)
	}
}
