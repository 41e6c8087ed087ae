package messaging

import (
	"context"
	"strings"
	"sync"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

// Watcher derives the unread flag of one session from changes to the user's
// conversations.
//
// States: Idle (no unread) and Unread. A qualifying change moves Idle to Unread;
// Clear moves Unread to Idle. Every other event leaves the state unchanged, and
// OnChange fires only on transitions.
//
// A change qualifies when its lastSenderId is set, differs from the user, and the
// conversation is not the one currently open.
type Watcher struct {
	store  docstore.Store
	userID string
	active func() string
	notify func(unread bool)
	opts   options

	mu     sync.Mutex
	unread bool
	unsub  docstore.Unsubscribe
}

// NewWatcher constructs a watcher for userID. active returns the currently-open
// conversation id ("" when none); notify receives flag transitions.
// Neither callback may call back into the Watcher.
func NewWatcher(store docstore.Store, userID string, active func() string, notify func(unread bool), opts ...Option) *Watcher {
	if active == nil {
		active = func() string { return "" }
	}
	if notify == nil {
		notify = func(bool) {}
	}
	return &Watcher{
		store:  store,
		userID: strings.TrimSpace(userID),
		active: active,
		notify: notify,
		opts:   buildOptions(opts),
	}
}

// Start subscribes to the user's conversations. It is a no-op when already started.
func (w *Watcher) Start(ctx context.Context) error {
	if w.userID == "" {
		return opErr("messaging.Watcher.Start", ErrInvalidInput, "missing user id")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsub != nil {
		return nil
	}

	unsub, err := w.store.Subscribe(ctx, participantQuery(w.userID), w.onSnapshot)
	if err != nil {
		return err
	}
	w.unsub = unsub
	return nil
}

// Stop disposes the subscription. The flag keeps its last value.
func (w *Watcher) Stop() {
	w.mu.Lock()
	unsub := w.unsub
	w.unsub = nil
	w.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Unread reports the current flag.
func (w *Watcher) Unread() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unread
}

// Clear resets the flag unconditionally.
func (w *Watcher) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unread {
		w.unread = false
		w.notify(false)
	}
}

func (w *Watcher) onSnapshot(snap docstore.Snapshot, err error) {
	if err != nil {
		w.opts.log.Warn("unread.watch.fail", "user_id", w.userID, "err", err)
		w.opts.metrics.subscriptionError(PanelUnread)
		return
	}
	w.Observe(snap.Changes)
}

// Observe applies one change event.
func (w *Watcher) Observe(changes []docstore.Change) {
	if !w.qualifies(changes) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.unread {
		w.unread = true
		w.opts.metrics.unreadRaisedInc()
		w.notify(true)
	}
}

func (w *Watcher) qualifies(changes []docstore.Change) bool {
	var open string
	openLoaded := false

	for _, ch := range changes {
		if ch.Kind == docstore.ChangeRemoved {
			continue
		}
		sender := strings.TrimSpace(ch.Doc.String(fieldLastSenderID))
		if sender == "" || sender == w.userID {
			continue
		}
		if !openLoaded {
			open = w.active()
			openLoaded = true
		}
		if ch.Doc.ID != open {
			return true
		}
	}
	return false
}
