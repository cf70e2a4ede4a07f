// Package restarter implements the per-instance unit state machine of
// spec §4.3: it forks methods, tracks their PIDs, times their execution,
// and reacts to process lifecycle events and notes from the graph
// engine. Per the redesign directive, unit state is a tagged variant
// (State) paired with a single transition function (transition.go)
// rather than per-state entry functions and a dispatcher.
package restarter

import (
	"github.com/harrowgate/svcmgr/internal/svcpath"
)

// UnitType classifies how a unit's lifecycle methods are interpreted.
type UnitType int

const (
	Simple UnitType = iota
	Oneshot
	Forks
	GroupUnit
)

func (t UnitType) String() string {
	switch t {
	case Simple:
		return "simple"
	case Oneshot:
		return "oneshot"
	case Forks:
		return "forks"
	case GroupUnit:
		return "group"
	default:
		return "unknown"
	}
}

// MethodKind indexes a unit's method table.
type MethodKind int

const (
	MethodPreStart MethodKind = iota
	MethodStart
	MethodPostStart
	MethodStop
	MethodPostStop
)

func (k MethodKind) String() string {
	switch k {
	case MethodPreStart:
		return "prestart"
	case MethodStart:
		return "start"
	case MethodPostStart:
		return "poststart"
	case MethodStop:
		return "stop"
	case MethodPostStop:
		return "poststop"
	default:
		return "unknown"
	}
}

// Method is one executable entry in a unit's method table.
type Method struct {
	Argv []string
}

// Defined reports whether a method slot was configured at all.
func (m Method) Defined() bool { return len(m.Argv) > 0 }

// State is the unit's position in the state machine of spec §4.3.
type State int

const (
	Uninitialised State = iota
	Offline
	PreStart
	Start
	PostStart
	Online
	Stop
	StopTerm
	StopKill
	PostStop
	Maintenance
	None
)

func (s State) String() string {
	switch s {
	case Uninitialised:
		return "uninitialised"
	case Offline:
		return "offline"
	case PreStart:
		return "prestart"
	case Start:
		return "start"
	case PostStart:
		return "poststart"
	case Online:
		return "online"
	case Stop:
		return "stop"
	case StopTerm:
		return "stopterm"
	case StopKill:
		return "stopkill"
	case PostStop:
		return "poststop"
	case Maintenance:
		return "maintenance"
	case None:
		return "none"
	default:
		return "unknown"
	}
}

// stopping reports whether s belongs to the shutdown sequence, per
// §4.3's process-event reaction rule 2.
func (s State) stopping() bool {
	switch s {
	case Stop, StopTerm, StopKill, PostStop:
		return true
	default:
		return false
	}
}

// Unit is the restarter's view of a single service instance (spec §3).
// It is owned exclusively by the event loop goroutine; no field is
// guarded by a lock, matching the single-threaded ownership model of
// spec §5.
type Unit struct {
	Path    svcpath.Path
	Type    UnitType
	Methods map[MethodKind]Method

	State  State
	Target State

	MainPID      int
	SecondaryPID int
	PIDs         map[int]struct{}

	// TimerID is the single outstanding method timer, if any.
	TimerID uint64
	// RestartTimerID is the outstanding restart back-off timer, if any.
	RestartTimerID uint64

	// FailCount is a per-method consecutive-failure counter (spec §4.3, §8).
	FailCount map[MethodKind]int

	// IsRepository marks the unit representing the service repository
	// itself; Online transition notifies the manager so dependents may
	// reconnect (spec §4.3 "Online").
	IsRepository bool

	// RepoUp tracks repository connectivity for the repository unit's
	// own error-handling policy (spec §7: "the unit representing the
	// repository itself tracks repo_up").
	RepoUp bool
}

// NewUnit returns a freshly created unit in Uninitialised state with no
// tracked PIDs, per unit_add's contract.
func NewUnit(path svcpath.Path, typ UnitType, methods map[MethodKind]Method) *Unit {
	return &Unit{
		Path:      path,
		Type:      typ,
		Methods:   methods,
		State:     Uninitialised,
		Target:    Uninitialised,
		PIDs:      make(map[int]struct{}),
		FailCount: make(map[MethodKind]int),
	}
}

// addPID enrolls pid as tracked, idempotently.
func (u *Unit) addPID(pid int) {
	if pid == 0 {
		return
	}
	u.PIDs[pid] = struct{}{}
}

// removePID drops pid from the tracked set.
func (u *Unit) removePID(pid int) {
	delete(u.PIDs, pid)
	if u.MainPID == pid {
		u.MainPID = 0
	}
	if u.SecondaryPID == pid {
		u.SecondaryPID = 0
	}
}

// empty reports whether no PIDs remain tracked.
func (u *Unit) empty() bool { return len(u.PIDs) == 0 }
