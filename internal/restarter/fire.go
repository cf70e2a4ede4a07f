package restarter

import (
	"github.com/harrowgate/svcmgr/internal/timerset"
)

// HandleTimerFiring is the event loop's entry point for timerset.Firing
// values whose payload originated in this package. It implements the
// method-timer semantics of spec §4.3 and the two-stage restart
// back-off (5000 ms cooldown, then a 500 ms re-entry timer) of spec §5.
func (c *Core) HandleTimerFiring(f timerset.Firing) {
	switch p := f.Payload.(type) {
	case methodTimerPayload:
		c.onMethodTimeout(p.unit)
	case escalateTimerPayload:
		c.onEscalateTimeout(p.unit)
	case retryTimerPayload:
		p.unit.RestartTimerID = 0
		id := c.timers.Add(c.cfg.RestartReentryMS, reentryTimerPayload{unit: p.unit, state: p.state})
		p.unit.RestartTimerID = uint64(id)
	case reentryTimerPayload:
		p.unit.RestartTimerID = 0
		c.enter(p.unit, p.state)
	}
}

// onMethodTimeout handles a method-execution timer firing: 2000 ms with
// no completion or readiness (spec §4.3 "Method timer semantics", §7
// "method timeout ... same as transient failure").
func (c *Core) onMethodTimeout(u *Unit) {
	u.TimerID = 0
	l := c.log.For(u.Path.String())

	switch u.State {
	case PreStart, Start:
		// The spec names this the PreStart counter regardless of which
		// of the two states the timer fired in.
		u.FailCount[MethodPreStart]++
		if u.FailCount[MethodPreStart] > c.cfg.MaxMethodFailures {
			c.enter(u, Maintenance)
			return
		}
		retryState := u.State
		id := c.timers.Add(c.cfg.RestartCooldownMS, retryTimerPayload{unit: u, state: retryState})
		u.RestartTimerID = uint64(id)

	case Stop:
		c.enter(u, StopTerm)

	case StopTerm:
		l.Errorf("method timer fired in StopTerm; invariant violation, ignoring")

	case PostStart:
		c.handleAbnormalMethod(u, MethodPostStart)

	case PostStop:
		c.handleAbnormalMethod(u, MethodPostStop)

	default:
		l.Errorf("method timer fired in unexpected state %s; ignoring", u.State)
	}
}

// onEscalateTimeout handles the StopTerm→StopKill and StopKill-timeout
// escalation timers of spec §4.3.
func (c *Core) onEscalateTimeout(u *Unit) {
	u.TimerID = 0
	l := c.log.For(u.Path.String())

	switch u.State {
	case StopTerm:
		c.enter(u, StopKill)
	case StopKill:
		l.Errorf("StopKill timed out with %d pid(s) remaining; proceeding to target", len(u.PIDs))
		c.advanceToTarget(u)
	}
}
