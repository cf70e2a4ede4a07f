package restarter

import (
	"golang.org/x/sys/unix"

	"github.com/harrowgate/svcmgr/internal/note"
)

// enter is the single transition function the redesign directive of
// spec §9 calls for: one case per state in §4.3, replacing per-state
// entry functions and a dispatcher.
func (c *Core) enter(u *Unit, s State) {
	u.State = s
	l := c.log.For(u.Path.String())

	switch s {
	case PreStart:
		if m, ok := u.Methods[MethodPreStart]; ok && m.Defined() {
			c.forkMethod(u, MethodPreStart, m, mainSlot)
			return
		}
		c.enter(u, Start)

	case Start:
		m := u.Methods[MethodStart]
		if !m.Defined() {
			l.Errorf("no start method defined, entering maintenance")
			c.enter(u, Maintenance)
			return
		}
		if !c.forkMethod(u, MethodStart, m, mainSlot) {
			return
		}
		if u.Type == Simple || u.Type == Oneshot || u.Type == GroupUnit {
			c.enter(u, PostStart)
		}
		// Forks-type units wait for the method timer or a readiness
		// notification delivered via unit_notify_ready.

	case PostStart:
		if m, ok := u.Methods[MethodPostStart]; ok && m.Defined() {
			c.forkMethod(u, MethodPostStart, m, secondarySlot)
			return
		}
		c.enter(u, Online)

	case Online:
		c.cancelTimer(u)
		u.FailCount[MethodStart] = 0
		u.FailCount[MethodPreStart] = 0
		u.FailCount[MethodPostStart] = 0
		if u.IsRepository {
			l.Infof("repository online, notifying manager")
			u.RepoUp = true
		}
		c.bus.Post(note.StateChange(u.Path, note.StateOnline, note.ReasonNone))

	case Stop:
		if m, ok := u.Methods[MethodStop]; ok && m.Defined() {
			c.forkMethod(u, MethodStop, m, secondarySlot)
			return
		}
		c.enter(u, StopTerm)

	case StopTerm:
		if u.empty() {
			c.advanceToTarget(u)
			return
		}
		c.signalAll(u, unix.SIGTERM)
		id := c.timers.Add(c.cfg.StopTermTimeoutMS, escalateTimerPayload{unit: u})
		u.TimerID = uint64(id)

	case StopKill:
		if u.empty() {
			c.enter(u, PostStop)
			return
		}
		c.signalAll(u, unix.SIGKILL)
		id := c.timers.Add(c.cfg.StopKillTimeoutMS, escalateTimerPayload{unit: u})
		u.TimerID = uint64(id)

	case PostStop:
		if m, ok := u.Methods[MethodPostStop]; ok && m.Defined() {
			c.forkMethod(u, MethodPostStop, m, secondarySlot)
			return
		}
		c.advanceToTarget(u)

	case Maintenance:
		c.cancelTimer(u)
		if u.RestartTimerID != 0 {
			c.timers.Del(toTimerID(u.RestartTimerID))
			u.RestartTimerID = 0
		}
		for pid := range u.PIDs {
			_ = unix.Kill(pid, unix.SIGKILL)
		}
		c.purgePIDs(u)
		l.Errorf("entering maintenance")
		c.bus.Post(note.StateChange(u.Path, note.StateDisabled, note.ReasonNone))

	case Offline, None:
		// Bookkeeping-only states; nothing to fork, nothing to time.
	}
}

type pidSlot int

const (
	mainSlot pidSlot = iota
	secondarySlot
)

// forkMethod executes the fork-and-wait handshake (spec §4.3, §9) for
// one method: the child is started blocked, the parent enrolls the PID
// with the tracker and the unit's PID set, and only then releases it to
// exec. A method timer is armed at the default (or configured) timeout.
// It reports false on fork failure, having already moved the unit to
// Maintenance itself; callers must not advance the state machine
// further in that case.
func (c *Core) forkMethod(u *Unit, kind MethodKind, m Method, slot pidSlot) bool {
	l := c.log.For(u.Path.String())

	env := append(envCopy(), "NOTIFY_SOCKET="+c.notifySocket)
	pid, release, kill, err := c.forker.Fork(m.Argv, env)
	if err != nil {
		l.Errorf("fork %s failed: %v", kind, err)
		c.handleForkFailure(u)
		return false
	}

	c.trackPID(u, pid)
	switch slot {
	case mainSlot:
		u.MainPID = pid
	case secondarySlot:
		u.SecondaryPID = pid
	}

	if err := release(); err != nil {
		l.Errorf("release %s (pid %d): %v", kind, pid, err)
		_ = kill()
	}

	id := c.timers.Add(c.cfg.MethodTimeoutMS, methodTimerPayload{unit: u})
	u.TimerID = uint64(id)
	return true
}

// handleForkFailure implements the documented (if contested) policy of
// spec §7/§9: fork failure targets Maintenance immediately.
func (c *Core) handleForkFailure(u *Unit) {
	c.enter(u, Maintenance)
}

func envCopy() []string {
	return append([]string(nil), osEnviron()...)
}
