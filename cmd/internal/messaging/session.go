package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

// Session is the messaging context of one signed-in user.
//
// It owns the open-conversation pointer, the unread Watcher and two subscription
// slots (messages of the open conversation, conversation list). Closing the session
// disposes all of them.
//
// Lock order: slot lock, then mu. mu is never held while calling into a slot or the
// watcher.
type Session struct {
	self    Participant
	svc     *Service
	view    View
	watcher *Watcher

	messages      Slot
	conversations Slot

	mu       sync.Mutex
	active   string
	viewOpen bool
	convs    []Conversation
	loaded   bool
	started  bool
	closed   bool
}

// NewSession creates the session of self rendering into view.
func (s *Service) NewSession(self Participant, view View) *Session {
	sess := &Session{
		self: Participant{ID: strings.TrimSpace(self.ID), Name: self.Name},
		svc:  s,
		view: view,
	}
	sess.watcher = NewWatcher(s.store, sess.self.ID, sess.Active, view.Unread, s.options...)
	return sess
}

// Self returns the session's user.
func (s *Session) Self() Participant { return s.self }

// Active returns the open conversation id, or "".
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Unread reports the unread flag.
func (s *Session) Unread() bool { return s.watcher.Unread() }

// Start begins watching for unread activity.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return opErr("messaging.Session.Start", ErrSessionClosed, "")
	}
	first := !s.started
	s.started = true
	s.mu.Unlock()

	if err := s.watcher.Start(ctx); err != nil {
		return err
	}
	if first {
		s.svc.opts.metrics.sessionDelta(1)
		s.svc.opts.log.Info("session.start", "user_id", s.self.ID)
	}
	return nil
}

// Close disposes every subscription. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.started
	s.active = ""
	s.viewOpen = false
	s.mu.Unlock()

	s.messages.Release()
	s.conversations.Release()
	s.watcher.Stop()

	if started {
		s.svc.opts.metrics.sessionDelta(-1)
		s.svc.opts.log.Info("session.close", "user_id", s.self.ID)
	}
}

// Contact finds or creates the conversation with counterpart about topicItemID, then
// opens the message view with it selected.
func (s *Session) Contact(ctx context.Context, counterpart Participant, topicItemID string) (string, error) {
	if err := s.checkOpen("messaging.Session.Contact"); err != nil {
		return "", err
	}

	res, err := s.svc.Directory.FindOrCreate(ctx, FindOrCreateInput{
		Self:        s.self,
		Counterpart: counterpart,
		TopicItemID: topicItemID,
	})
	if err != nil {
		s.fail("Error opening chat", err)
		return "", err
	}

	if err := s.OpenMessageView(ctx); err != nil {
		return "", err
	}
	if err := s.Open(ctx, res.ConversationID); err != nil {
		return "", err
	}
	return res.ConversationID, nil
}

// Open selects conversationID: it replaces the message subscription and re-renders
// the conversation list with the new selection.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	const op = "messaging.Session.Open"
	if err := s.checkOpen(op); err != nil {
		return err
	}

	conv, err := s.svc.Directory.Authorize(ctx, s.self.ID, conversationID)
	if err != nil {
		s.fail("Error opening chat", err)
		return err
	}

	s.mu.Lock()
	s.active = conv.ID
	s.mu.Unlock()

	err = s.messages.Replace(func(gen uint64) (docstore.Unsubscribe, error) {
		return s.svc.Feed.Subscribe(ctx, conv.ID, func(msgs []Message, err error) {
			s.messages.Deliver(gen, func() { s.renderMessages(conv.ID, msgs, err) })
		})
	})
	if err != nil {
		s.view.PanelError(PanelMessages, err)
		s.svc.opts.log.Warn("session.messages.subscribe.fail", "user_id", s.self.ID, "conversation_id", conv.ID, "err", err)
		return err
	}

	s.conversations.Do(s.renderConversationsLocked)
	return nil
}

// OpenMessageView clears the unread flag and starts the conversation list stream.
// Opening an already open view keeps the current stream.
func (s *Session) OpenMessageView(ctx context.Context) error {
	const op = "messaging.Session.OpenMessageView"
	if err := s.checkOpen(op); err != nil {
		return err
	}

	s.watcher.Clear()

	s.mu.Lock()
	already := s.viewOpen
	s.viewOpen = true
	s.mu.Unlock()
	if already && s.conversations.Active() {
		return nil
	}

	err := s.conversations.Replace(func(gen uint64) (docstore.Unsubscribe, error) {
		return s.svc.List.Subscribe(ctx, s.self.ID, func(convs []Conversation, err error) {
			s.conversations.Deliver(gen, func() {
				if err != nil {
					s.panelError(PanelConversations, err)
					return
				}
				s.mu.Lock()
				s.convs = convs
				s.loaded = true
				s.mu.Unlock()
				s.renderConversationsLocked()
			})
		})
	})
	if err != nil {
		s.view.PanelError(PanelConversations, err)
		s.svc.opts.log.Warn("session.conversations.subscribe.fail", "user_id", s.self.ID, "err", err)
		return err
	}
	return nil
}

// CloseMessageView releases both message-view streams and deselects the conversation.
func (s *Session) CloseMessageView() {
	s.mu.Lock()
	s.viewOpen = false
	s.active = ""
	s.convs = nil
	s.loaded = false
	s.mu.Unlock()

	s.messages.Release()
	s.conversations.Release()
}

// Send posts text into the open conversation. Whitespace-only text is ignored.
// Store failures are reported to the view as an error notice and returned.
func (s *Session) Send(ctx context.Context, text string) error {
	const op = "messaging.Session.Send"
	if err := s.checkOpen(op); err != nil {
		return err
	}

	convID := s.Active()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if convID == "" {
		err := opErr(op, ErrNoActiveConversation, "")
		s.fail("Open a conversation first", err)
		return err
	}

	_, err := s.svc.Feed.Send(ctx, SendInput{
		ConversationID: convID,
		SenderID:       s.self.ID,
		SenderName:     s.self.Name,
		Text:           text,
		Now:            time.Now().UTC(),
	})
	switch {
	case errors.Is(err, ErrEmptyText):
		return nil
	case err != nil:
		s.fail("Failed to send message", err)
		return err
	}
	return nil
}

// Inquiries lists this user's conversations about topicItemID.
func (s *Session) Inquiries(ctx context.Context, topicItemID string) ([]Inquiry, error) {
	out, err := s.svc.Directory.Inquiries(ctx, topicItemID, s.self)
	if err != nil {
		s.fail("Error loading inquiries", err)
		return nil, err
	}
	return out, nil
}

func (s *Session) checkOpen(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr(op, ErrSessionClosed, "")
	}
	return nil
}

// renderMessages runs under the messages slot lock.
func (s *Session) renderMessages(conversationID string, msgs []Message, err error) {
	if err != nil {
		s.panelError(PanelMessages, err)
		return
	}
	s.view.Messages(renderMessages(conversationID, s.self.ID, msgs))
}

// renderConversationsLocked runs under the conversations slot lock.
func (s *Session) renderConversationsLocked() {
	s.mu.Lock()
	convs := s.convs
	active := s.active
	loaded := s.loaded
	s.mu.Unlock()

	if !loaded {
		return
	}
	s.view.Conversations(renderConversations(convs, s.self.Name, active))
}

func (s *Session) panelError(panel Panel, err error) {
	s.svc.opts.metrics.subscriptionError(panel)
	s.svc.opts.log.Warn("session.subscription.fail", "user_id", s.self.ID, "panel", string(panel), "err", err)
	s.view.PanelError(panel, err)
}

// fail reports an abandoned user action.
func (s *Session) fail(text string, err error) {
	if IsValidation(err) || errors.Is(err, ErrNotParticipant) || errors.Is(err, ErrNotFound) {
		s.svc.opts.log.Info("session.action.reject", "user_id", s.self.ID, "err", err)
	} else {
		s.svc.opts.log.Warn("session.action.fail", "user_id", s.self.ID, "err", err)
	}
	s.view.Notice(Notice{Level: NoticeError, Text: text})
}
