package note

import "sync"

// Bus is the single in-process FIFO queue of Notes shared by the Graph
// Engine and the Restarter Core (spec §4.5). It has no priority and does
// not coalesce; notes are delivered in emission order. The event loop
// drains it to empty after each external event before waiting for the
// next one (spec §5).
//
// Bus is safe to post to from any goroutine (the Notification Receiver and
// RPC inbox run on their own goroutines before handing off to the event
// loop), but Drain must only be called from the single event-loop
// goroutine, matching the many-writer, single-reader ownership of spec §5.
type Bus struct {
	mu    sync.Mutex
	queue []Note
}

// NewBus returns an empty Bus.
func NewBus() *Bus { return &Bus{} }

// Post appends a note to the tail of the queue.
func (b *Bus) Post(n Note) {
	b.mu.Lock()
	b.queue = append(b.queue, n)
	b.mu.Unlock()
}

// Len reports the number of notes currently queued.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Drain removes and returns every note currently queued, in FIFO order,
// leaving the queue empty. Notes posted by handling one drained note are
// not included — callers that need "process until empty, including notes
// emitted while processing" should call Drain in a loop until it returns
// nothing, which is the pattern the event loop uses.
func (b *Bus) Drain() []Note {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	out := b.queue
	b.queue = nil
	return out
}
