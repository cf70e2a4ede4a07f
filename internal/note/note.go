// Package note defines the typed messages exchanged on the in-process bus
// between the Graph Engine and the Restarter Core, and the FIFO queue that
// carries them. See spec §3 (Note) and §4.5 (Note Bus).
package note

import "github.com/harrowgate/svcmgr/internal/svcpath"

// Reason is the restart-on severity attached to a note, totally ordered.
// It doubles as the group subscription level in spec §4.4's propagation
// gating: a group only forwards a stop whose Reason is <= its own
// restart-on severity.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonError
	ReasonRestart
	ReasonRefresh
	ReasonAny
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonError:
		return "error"
	case ReasonRestart:
		return "restart"
	case ReasonRefresh:
		return "refresh"
	case ReasonAny:
		return "any"
	default:
		return "unknown"
	}
}

// Kind distinguishes the three note shapes carried on the bus.
type Kind int

const (
	KindStateChange Kind = iota
	KindAdminReq
	KindRestarterRequest
)

// StateChangeSub enumerates the StateChange sub-types.
type StateChangeSub int

const (
	StateOnline StateChangeSub = iota
	StateOffline
	StateDisabled
)

// AdminReqSub enumerates the AdminReq sub-types.
type AdminReqSub int

const (
	AdminEnable AdminReqSub = iota
	AdminDisable
	AdminRestart
)

// RestarterReqSub enumerates the RestarterRequest sub-types.
type RestarterReqSub int

const (
	RestarterStart RestarterReqSub = iota
	RestarterStop
)

// Note is a single typed message on the bus. Exactly one of the Sub*
// fields is meaningful, selected by Kind.
type Note struct {
	Kind   Kind
	Path   svcpath.Path
	Reason Reason

	StateSub    StateChangeSub
	AdminSub    AdminReqSub
	RestartSub  RestarterReqSub
}

// StateChange constructs a StateChange note.
func StateChange(path svcpath.Path, sub StateChangeSub, reason Reason) Note {
	return Note{Kind: KindStateChange, Path: path, StateSub: sub, Reason: reason}
}

// AdminReq constructs an AdminReq note.
func AdminReq(path svcpath.Path, sub AdminReqSub, reason Reason) Note {
	return Note{Kind: KindAdminReq, Path: path, AdminSub: sub, Reason: reason}
}

// RestarterRequest constructs a RestarterRequest note.
func RestarterRequest(path svcpath.Path, sub RestarterReqSub, reason Reason) Note {
	return Note{Kind: KindRestarterRequest, Path: path, RestartSub: sub, Reason: reason}
}
