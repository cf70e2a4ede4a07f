package restarter

import (
	"golang.org/x/sys/unix"

	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/proctrack"
	"github.com/harrowgate/svcmgr/internal/svcconfig"
	"github.com/harrowgate/svcmgr/internal/svclog"
	"github.com/harrowgate/svcmgr/internal/svcpath"
	"github.com/harrowgate/svcmgr/internal/timerset"
)

// ProcessEvent is the process tracker event consumed by unit_ptevent.
type ProcessEvent = proctrack.Event

// Tracker is the subset of proctrack.Tracker the restarter core depends on.
type Tracker interface {
	Watch(pid int)
	Disregard(pid int)
}

// Core is the explicit context object the redesign directive of spec §9
// calls for: rather than a process-wide global manager, it is
// constructed once at event-loop bootstrap and threaded through every
// operation. Tests construct their own with fakes.
type Core struct {
	units    map[string]*Unit
	pidIndex map[int]*Unit

	tracker      Tracker
	timers       *timerset.Set
	bus          *note.Bus
	forker       Forker
	cfg          svcconfig.Data
	notifySocket string
	log          svclog.Logger
}

// New constructs a Core. cfg supplies the default timers; notifySocket
// is written into every forked child's environment as NOTIFY_SOCKET
// (spec §6).
func New(tracker Tracker, timers *timerset.Set, bus *note.Bus, forker Forker, cfg svcconfig.Data, notifySocket string) *Core {
	return &Core{
		units:        make(map[string]*Unit),
		pidIndex:     make(map[int]*Unit),
		tracker:      tracker,
		timers:       timers,
		bus:          bus,
		forker:       forker,
		cfg:          cfg,
		notifySocket: notifySocket,
		log:          svclog.New("restarter"),
	}
}

// UnitAdd is unit_add: idempotent creation, initial state Uninitialised,
// no tracked PIDs. Repeated calls for the same path return the same
// Unit without mutating it (spec §8 idempotence).
func (c *Core) UnitAdd(path svcpath.Path, typ UnitType, methods map[MethodKind]Method) *Unit {
	key := path.String()
	if u, ok := c.units[key]; ok {
		return u
	}
	u := NewUnit(path, typ, methods)
	c.units[key] = u
	return u
}

// Lookup returns the unit for path, if one has been added.
func (c *Core) Lookup(path svcpath.Path) (*Unit, bool) {
	u, ok := c.units[path.String()]
	return u, ok
}

// UnitForPID resolves a PID back to the unit that owns it, so the event
// loop can route a process-tracker event without maintaining its own
// PID-to-unit index.
func (c *Core) UnitForPID(pid int) (*Unit, bool) {
	u, ok := c.pidIndex[pid]
	return u, ok
}

// trackPID enrolls pid as both a member of u's PID set and the core's
// reverse index, and begins watching it via the tracker.
func (c *Core) trackPID(u *Unit, pid int) {
	u.addPID(pid)
	c.pidIndex[pid] = u
	c.tracker.Watch(pid)
}

// untrackPID removes pid from u's PID set and the core's reverse index,
// and stops watching it via the tracker.
func (c *Core) untrackPID(u *Unit, pid int) {
	u.removePID(pid)
	delete(c.pidIndex, pid)
	c.tracker.Disregard(pid)
}

// UnitMsg is unit_msg: accept a request from the graph engine. Currently
// Start triggers entry into PreStart; Stop triggers entry into the Stop
// sequence with the given target. Other request sub-types are extension
// points, matching the spec's own note on unit_msg's scope.
func (c *Core) UnitMsg(u *Unit, n note.Note) {
	if n.Kind != note.KindRestarterRequest {
		return
	}
	switch n.RestartSub {
	case note.RestarterStart:
		u.Target = Online
		c.enter(u, PreStart)
	case note.RestarterStop:
		u.Target = Offline
		c.enter(u, Stop)
	}
}

// UnitNotifyReady is unit_notify_ready: in Start it cancels the method
// timer and advances to PostStart; elsewhere it is ignored.
func (c *Core) UnitNotifyReady(u *Unit) {
	if u.State != Start {
		return
	}
	c.cancelTimer(u)
	c.enter(u, PostStart)
}

// UnitNotifyStatus is unit_notify_status: a status annotation, logged
// and otherwise opaque to the state machine.
func (c *Core) UnitNotifyStatus(u *Unit, text string) {
	c.log.For(u.Path.String()).Infof("status: %s", text)
}

// UnitPTEvent is unit_ptevent: consume a process tracker event for a PID
// known to belong to this unit, per the reaction rules of spec §4.3.
func (c *Core) UnitPTEvent(u *Unit, ev ProcessEvent) {
	l := c.log.For(u.Path.String())

	if ev.IsChild() {
		c.trackPID(u, ev.ChildPID)
		return
	}

	wasMain := ev.PID == u.MainPID
	wasSecondary := ev.PID == u.SecondaryPID
	c.untrackPID(u, ev.PID)

	// Rule 2: stop-sequence escalation on PID-set exhaustion.
	if u.State.stopping() && u.empty() {
		c.cancelTimer(u)
		switch u.State {
		case Stop:
			c.enter(u, StopTerm)
		case StopTerm:
			c.enter(u, StopKill)
		case StopKill:
			c.enter(u, PostStop)
		case PostStop:
			c.advanceToTarget(u)
		}
		return
	}

	normal := ev.Flags == proctrack.Normal
	if !normal {
		l.Warnf("pid %d exited abnormally in state %s", ev.PID, u.State)
	}

	switch {
	case wasMain && u.State == PreStart:
		if normal {
			c.purgePIDs(u)
			c.enter(u, Start)
		} else {
			c.handleAbnormalMain(u)
		}

	case wasMain && (u.State == PostStart || u.State == Online):
		if !normal {
			c.handleAbnormalMain(u)
			break
		}
		if u.Type == Simple || (u.Type != GroupUnit && u.empty()) {
			u.Target = Offline
			c.enter(u, Stop)
		}

	case wasMain:
		if !normal {
			c.handleAbnormalMain(u)
		}

	case wasSecondary && u.State == PostStart:
		if normal {
			c.enter(u, Online)
		} else {
			c.handleAbnormalMethod(u, MethodPostStart)
		}

	case wasSecondary && u.State == Stop:
		// The stop method's own exit status carries no retry policy;
		// its completion hands off to StopTerm, which re-evaluates the
		// remaining PID set and signals accordingly.
		c.enter(u, StopTerm)

	case wasSecondary && u.State == PostStop:
		if normal {
			c.advanceToTarget(u)
		} else {
			c.handleAbnormalMethod(u, MethodPostStop)
		}
	}
}

// handleAbnormalMain applies the main-PID abnormal-exit policy of
// spec §4.3 rule 3: an abnormal exit in Online purges and stops
// unconditionally (the graph decides restart policy); elsewhere it is
// failure-counter gated.
func (c *Core) handleAbnormalMain(u *Unit) {
	if u.State == Online {
		u.Target = Offline
		c.enter(u, Stop)
		return
	}
	c.handleAbnormalMethod(u, methodForState(u.State))
}

// handleAbnormalMethod increments the failure counter for kind and
// either schedules a retry of the current state after the configured
// cooldown, or targets Maintenance once the counter exceeds the
// configured ceiling (spec §4.3, §8: 5 retries, Maintenance on the 6th).
func (c *Core) handleAbnormalMethod(u *Unit, kind MethodKind) {
	u.FailCount[kind]++
	if u.FailCount[kind] > c.cfg.MaxMethodFailures {
		c.enter(u, Maintenance)
		return
	}
	retryState := u.State
	id := c.timers.Add(c.cfg.RestartCooldownMS, retryTimerPayload{unit: u, state: retryState})
	u.RestartTimerID = uint64(id)
}

// methodForState maps a unit state to the method kind whose failure
// counter it contributes to, for states entered by forking a method.
func methodForState(s State) MethodKind {
	switch s {
	case PreStart:
		return MethodPreStart
	case Start:
		return MethodStart
	case PostStart:
		return MethodPostStart
	case Stop:
		return MethodStop
	case PostStop:
		return MethodPostStop
	default:
		return MethodStart
	}
}

// advanceToTarget moves u directly to its recorded target state (used
// when a stop sequence completes).
func (c *Core) advanceToTarget(u *Unit) {
	target := u.Target
	if target == Uninitialised {
		target = Offline
	}
	u.State = target
}

// cancelTimer cancels u's outstanding method timer, if any.
func (c *Core) cancelTimer(u *Unit) {
	if u.TimerID != 0 {
		c.timers.Del(timerset.ID(u.TimerID))
		u.TimerID = 0
	}
}

// signalAll sends sig to every tracked PID of u.
func (c *Core) signalAll(u *Unit, sig unix.Signal) {
	for pid := range u.PIDs {
		_ = unix.Kill(pid, sig)
	}
}

// purgePIDs stops tracking every PID still held by u (spec §4.3: a
// normal PreStart exit cleans any remaining PIDs before entering Start).
func (c *Core) purgePIDs(u *Unit) {
	for pid := range u.PIDs {
		c.tracker.Disregard(pid)
		delete(c.pidIndex, pid)
	}
	u.PIDs = make(map[int]struct{})
	u.MainPID = 0
	u.SecondaryPID = 0
}

// retryTimerPayload is carried by a restart cooldown timer firing
// (spec §5: 5000 ms cooldown before the 500 ms re-entry timer).
type retryTimerPayload struct {
	unit  *Unit
	state State
}

// reentryTimerPayload is carried by the restart re-entry timer firing
// (spec §5: 500 ms after the cooldown elapses, the unit actually
// re-enters its retry state).
type reentryTimerPayload struct {
	unit  *Unit
	state State
}

// methodTimerPayload is carried by a method-execution timer firing.
type methodTimerPayload struct {
	unit *Unit
}

// escalateTimerPayload is carried by the StopTerm escalation timer.
type escalateTimerPayload struct {
	unit *Unit
}
