// Package timerset implements the monotonic millisecond timers of spec
// §4.2: Add registers a delayed firing against a kernel event queue
// (modeled here as a buffered Go channel drained by the event loop) and
// returns an id; Del cancels it. Firings are delivered on the event loop
// goroutine, never on the timer's own goroutine, preserving the
// single-threaded ownership model of spec §5.
package timerset

import (
	"sync"
	"time"
)

// ID identifies one scheduled timer. Zero is never issued and means "no timer".
type ID uint64

// Firing is delivered on Set.Firings() when a timer elapses.
type Firing struct {
	ID      ID
	Payload any
}

// Set is a monotonic timer registry. All exported methods are safe for
// concurrent use; Firings are serialized and must be consumed by a single
// reader (the event loop) to preserve ordering guarantees.
type Set struct {
	mu      sync.Mutex
	next    ID
	live    map[ID]*time.Timer
	firings chan Firing
}

// New returns an empty timer Set. The firings channel is sized so that a
// burst of simultaneous expirations does not block timer goroutines
// indefinitely; the event loop is expected to drain it promptly.
func New() *Set {
	return &Set{
		live:    make(map[ID]*time.Timer),
		firings: make(chan Firing, 64),
	}
}

// Firings returns the channel the event loop selects on for timer expirations.
func (s *Set) Firings() <-chan Firing { return s.firings }

// Add schedules payload to fire after delayMS milliseconds (monotonic,
// per time.Timer semantics) and returns an id usable with Del. A firing
// never arrives after Del(id) has returned, and at most one firing per id
// is ever delivered.
func (s *Set) Add(delayMS int64, payload any) ID {
	s.mu.Lock()
	s.next++
	id := s.next
	s.mu.Unlock()

	t := time.AfterFunc(time.Duration(delayMS)*time.Millisecond, func() {
		s.mu.Lock()
		_, stillLive := s.live[id]
		if stillLive {
			delete(s.live, id)
		}
		s.mu.Unlock()
		if !stillLive {
			return
		}
		s.firings <- Firing{ID: id, Payload: payload}
	})

	s.mu.Lock()
	s.live[id] = t
	s.mu.Unlock()
	return id
}

// Del cancels a timer. It is idempotent: calling it on an id that never
// existed, already fired, or was already deleted is a harmless no-op.
func (s *Set) Del(id ID) {
	if id == 0 {
		return
	}
	s.mu.Lock()
	t, ok := s.live[id]
	if ok {
		delete(s.live, id)
	}
	s.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// Active reports whether id is still pending. Used by invariant checks
// ("a unit in Online has no pending method timer").
func (s *Set) Active(id ID) bool {
	if id == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[id]
	return ok
}
