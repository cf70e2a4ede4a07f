// Package eventloop implements the single-threaded cooperative loop of
// spec §5: one goroutine owns all mutable state (graph, units, timers,
// PID tables, note queue); the only suspension point is the select
// below, and every callback runs to completion before the loop resumes
// waiting.
package eventloop

import (
	"context"

	"github.com/harrowgate/svcmgr/internal/graph"
	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/notify"
	"github.com/harrowgate/svcmgr/internal/proctrack"
	"github.com/harrowgate/svcmgr/internal/restarter"
	"github.com/harrowgate/svcmgr/internal/svclog"
	"github.com/harrowgate/svcmgr/internal/timerset"
)

// Loop wires the event sources spec §5 names: the process tracker, the
// timer set, the notification receiver, an RPC inbox, and the note bus,
// dispatching each to the Restarter Core or the Graph Engine.
type Loop struct {
	Core    *restarter.Core
	Graph   *graph.Graph
	Bus     *note.Bus
	Timers  *timerset.Set
	Tracker proctrack.Tracker
	Notify  *notify.Receiver

	// RPCInbox carries notes arriving over the inter-daemon RPC
	// transport (spec §6); nil disables it.
	RPCInbox <-chan note.Note

	// ObsFeed, if set, receives every note drained from the bus for
	// re-broadcast to connected observability subscribers. Nil disables
	// the feed entirely, at no cost to the drain loop.
	ObsFeed Broadcaster

	log svclog.Logger
}

// Broadcaster is the narrow view of obsfeed.Hub the event loop depends
// on, kept here so eventloop does not import obsfeed directly.
type Broadcaster interface {
	Broadcast(n note.Note)
}

// New constructs a Loop.
func New(core *restarter.Core, g *graph.Graph, bus *note.Bus, timers *timerset.Set, tracker proctrack.Tracker, receiver *notify.Receiver, rpcInbox <-chan note.Note) *Loop {
	return &Loop{
		Core:     core,
		Graph:    g,
		Bus:      bus,
		Timers:   timers,
		Tracker:  tracker,
		Notify:   receiver,
		RPCInbox: rpcInbox,
		log:      svclog.New("eventloop"),
	}
}

// Run drives the loop until ctx is cancelled. It is the sole reader of
// every event channel; nothing else may select on them concurrently.
func (l *Loop) Run(ctx context.Context) {
	var ptEvents <-chan proctrack.Event
	if l.Tracker != nil {
		ptEvents = l.Tracker.Events()
	}
	var readiness <-chan notify.Datagram
	if l.Notify != nil {
		readiness = l.Notify.Datagrams()
	}

	// Notes queued before Run (e.g. bootstrap start requests) are drained
	// before waiting for the first external event.
	l.drainNotes()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-ptEvents:
			l.handleProcessEvent(ev)
			l.drainNotes()

		case f := <-l.Timers.Firings():
			l.Core.HandleTimerFiring(f)
			l.drainNotes()

		case dg := <-readiness:
			l.handleDatagram(dg)
			l.drainNotes()

		case n := <-l.RPCInbox:
			l.Bus.Post(n)
			l.drainNotes()
		}
	}
}

// handleProcessEvent routes one tracker event to its owning unit. A
// Child event names its parent's PID, which is already enrolled; an
// Exit event names the exiting PID directly.
func (l *Loop) handleProcessEvent(ev proctrack.Event) {
	pid := ev.PID
	if ev.IsChild() {
		pid = ev.ParentPID
	}
	u, ok := l.Core.UnitForPID(pid)
	if !ok {
		l.log.Warnf("process event for untracked pid %d, ignoring", pid)
		return
	}
	l.Core.UnitPTEvent(u, ev)
}

// handleDatagram routes one readiness/status datagram (spec §6) to its
// owning unit, identified by the sender PID the receiver attaches.
func (l *Loop) handleDatagram(dg notify.Datagram) {
	u, ok := l.Core.UnitForPID(dg.PID)
	if !ok {
		l.log.Warnf("notify datagram from untracked pid %d, ignoring", dg.PID)
		return
	}
	if dg.Ready {
		l.Core.UnitNotifyReady(u)
	}
	if dg.Status != "" {
		l.Core.UnitNotifyStatus(u, dg.Status)
	}
	if dg.MainPID != 0 {
		if _, inSet := u.PIDs[dg.MainPID]; inSet {
			u.MainPID = dg.MainPID
		}
	}
}

// drainNotes fully drains the note bus, dispatching each note to the
// Graph Engine or the Restarter Core, per spec §4.5: notes emitted
// while processing one external event are fully drained, in insertion
// order, before the next external event is handled. Since each
// dispatch may itself Post further notes onto the same bus, draining
// continues until the queue is empty.
func (l *Loop) drainNotes() {
	for {
		notes := l.Bus.Drain()
		if len(notes) == 0 {
			return
		}
		for _, n := range notes {
			if l.ObsFeed != nil {
				l.ObsFeed.Broadcast(n)
			}
			if n.Kind == note.KindRestarterRequest {
				u, ok := l.Core.Lookup(n.Path)
				if !ok {
					l.log.Warnf("restarter request for unknown unit %s, discarding", n.Path)
					continue
				}
				l.Core.UnitMsg(u, n)
				continue
			}
			l.Graph.ProcessNote(n)
		}
	}
}
