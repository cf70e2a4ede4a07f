package restarter

import "github.com/harrowgate/svcmgr/internal/svcpath"

// UnitSnapshot is a read-only view of a Unit's current state, so a reader
// never reaches into a live *Unit directly. The "-status" CLI does not use
// it: that flag reads the daemon's on-disk state record instead.
type UnitSnapshot struct {
	Path         svcpath.Path
	Type         UnitType
	State        State
	Target       State
	MainPID      int
	SecondaryPID int
	PIDs         []int
	FailCount    map[MethodKind]int
	TimerPending bool
}

// Status returns a snapshot of the named unit, if known.
func (c *Core) Status(path svcpath.Path) (UnitSnapshot, bool) {
	u, ok := c.units[path.String()]
	if !ok {
		return UnitSnapshot{}, false
	}
	pids := make([]int, 0, len(u.PIDs))
	for pid := range u.PIDs {
		pids = append(pids, pid)
	}
	failCount := make(map[MethodKind]int, len(u.FailCount))
	for k, v := range u.FailCount {
		failCount[k] = v
	}
	return UnitSnapshot{
		Path:         u.Path,
		Type:         u.Type,
		State:        u.State,
		Target:       u.Target,
		MainPID:      u.MainPID,
		SecondaryPID: u.SecondaryPID,
		PIDs:         pids,
		FailCount:    failCount,
		TimerPending: c.timers.Active(toTimerID(u.TimerID)),
	}, true
}

// Paths returns every unit path the core currently knows about, in no
// particular order, so callers can enumerate units without a separate
// index.
func (c *Core) Paths() []svcpath.Path {
	out := make([]svcpath.Path, 0, len(c.units))
	for _, u := range c.units {
		out = append(out, u.Path)
	}
	return out
}
