package relay

import (
	"io"
	"sync"
)

// Slot holds the process-wide "current connection" for one role (call or
// observer). At most one connection occupies a slot; replacing it closes the
// displaced connection before the new one becomes visible, so there is never
// a window with two connections both believing they are current.
type Slot[C interface {
	comparable
	io.Closer
}] struct {
	mu  sync.Mutex
	cur C
	set bool
}

// Replace installs c and closes whatever it displaced. Last writer wins.
func (s *Slot[C]) Replace(c C) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, had := s.cur, s.set
	s.cur, s.set = c, true
	if had && old != c {
		_ = old.Close()
	}
}

// Clear empties the slot, but only if c is still current. A connection that
// was already displaced must not evict its successor.
func (s *Slot[C]) Clear(c C) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set && s.cur == c {
		var zero C
		s.cur, s.set = zero, false
	}
}

// Current returns the occupant, if any.
func (s *Slot[C]) Current() (C, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur, s.set
}
