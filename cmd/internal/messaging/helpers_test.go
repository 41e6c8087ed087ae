package messaging

import (
	"sync"
	"testing"
	"time"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func newTestStore(t *testing.T) *docstore.MemoryStore {
	t.Helper()
	s := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2026-05-01 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

type fakeView struct {
	mu        sync.Mutex
	messages  []MessagesView
	convs     [][]ConversationView
	unread    []bool
	notices   []Notice
	panelErrs []Panel
}

func (v *fakeView) Messages(m MessagesView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, m)
}

func (v *fakeView) Conversations(c []ConversationView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.convs = append(v.convs, c)
}

func (v *fakeView) Unread(u bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unread = append(v.unread, u)
}

func (v *fakeView) Notice(n Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, n)
}

func (v *fakeView) PanelError(p Panel, _ error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.panelErrs = append(v.panelErrs, p)
}

func (v *fakeView) lastMessages() MessagesView {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.messages) == 0 {
		return MessagesView{}
	}
	return v.messages[len(v.messages)-1]
}

func (v *fakeView) messageRenders() []MessagesView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]MessagesView(nil), v.messages...)
}

func (v *fakeView) lastConversations() []ConversationView {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.convs) == 0 {
		return nil
	}
	return v.convs[len(v.convs)-1]
}

func (v *fakeView) unreadTransitions() []bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]bool(nil), v.unread...)
}

func (v *fakeView) noticeList() []Notice {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Notice(nil), v.notices...)
}

var _ View = (*fakeView)(nil)
