// Package proctrack implements the platform-neutral process tracker
// contract of spec §4.1: a subscription that accepts Watch/Disregard for
// PIDs and produces Child/Exit events. The core only requires that (a)
// events for a given PID are delivered in FIFO order, and (b) watched
// children forked by a watched parent are auto-enrolled and surface as a
// Child event before any Exit event involving them. Backend selection
// (kernel event filter, process connector, polling fallback) is a
// deployment concern; this package ships the portable polling fallback
// (poll.go) plus a Linux Wait4/subreaper backend (linux.go) grounded on
// the reaping technique used throughout the supervisor examples in the
// pack this module was built from.
package proctrack

import "context"

// Flags classifies how a tracked process exited.
type Flags int

const (
	// Normal means the process called exit() (status available via Code).
	Normal Flags = iota
	// Abnormal means the process was killed by a signal (Code carries the signal number).
	Abnormal
)

// Event is the sum type of the two events the tracker produces.
type Event struct {
	isChild bool

	// Child fields.
	ParentPID int
	ChildPID  int

	// Exit fields.
	PID   int
	Flags Flags
	Code  int
}

// IsChild reports whether this event is a Child event (as opposed to Exit).
func (e Event) IsChild() bool { return e.isChild }

// NewChild builds a Child event: parentPID forked childPID.
func NewChild(parentPID, childPID int) Event {
	return Event{isChild: true, ParentPID: parentPID, ChildPID: childPID}
}

// NewExit builds an Exit event for pid.
func NewExit(pid int, flags Flags, code int) Event {
	return Event{isChild: false, PID: pid, Flags: flags, Code: code}
}

// Tracker is the contract the restarter core depends on. Implementations
// must deliver events for a given PID in the order they were observed,
// and must deliver a Child event for any watched child before any Exit
// event naming that child.
type Tracker interface {
	// Watch begins tracking pid. Idempotent.
	Watch(pid int)
	// Disregard stops tracking pid without implying anything about its
	// liveness; it simply silences further events for that PID.
	Disregard(pid int)
	// Events returns the channel of delivered events. There is exactly
	// one reader: the event loop.
	Events() <-chan Event
	// Run drives the backend until ctx is cancelled.
	Run(ctx context.Context)
}
