package messaging

import (
	"sync"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

// Slot holds at most one live subscription for one logical stream.
//
// Replace disposes the previous subscription before installing the next one, and
// every installation gets a new generation. Deliveries run through Deliver with the
// generation they were created for, so output from a replaced subscription is
// dropped even when the store had already started delivering it.
type Slot struct {
	mu    sync.Mutex
	gen   uint64
	unsub docstore.Unsubscribe
}

// Replace disposes the current subscription and installs the one returned by start.
// start receives the generation its deliveries must pass to Deliver.
// On error the slot is left empty.
func (s *Slot) Replace(start func(gen uint64) (docstore.Unsubscribe, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	s.gen++
	unsub, err := start(s.gen)
	if err != nil {
		return err
	}
	s.unsub = unsub
	return nil
}

// Release disposes the current subscription, if any.
func (s *Slot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *Slot) releaseLocked() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	// Invalidate in-flight deliveries of the released subscription.
	s.gen++
}

// Active reports whether a subscription is installed.
func (s *Slot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsub != nil
}

// Deliver runs fn if gen is still the installed generation. It reports whether fn ran.
// fn runs under the slot lock and must not call back into the slot.
func (s *Slot) Deliver(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub == nil || gen != s.gen {
		return false
	}
	fn()
	return true
}

// Do runs fn under the slot lock if a subscription is installed, serialized with
// deliveries.
func (s *Slot) Do(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub == nil {
		return false
	}
	fn()
	return true
}
