// Package graph implements the typed dependency graph of spec §4.4: a
// satisfiability/propagation engine over Service, Instance, and
// DependencyGroup vertices. Per the redesign directive of spec §9, the
// graph is an arena of vertices addressed by stable integer handles
// (not raw pointers), and vertex behavior is a kind-tagged sum type
// dispatched by a match over Kind rather than runtime polymorphism.
package graph

import (
	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/svcpath"
)

// Handle is a stable arena index. The zero value never denotes a real
// vertex; a Graph's arena is 1-indexed so a zero Handle reliably means
// "no vertex".
type Handle int

// Kind tags what a Vertex represents.
type Kind int

const (
	KindService Kind = iota
	KindInstance
	KindDepGroup
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindInstance:
		return "instance"
	case KindDepGroup:
		return "depgroup"
	default:
		return "unknown"
	}
}

// GroupKind is the quantifier a dependency group evaluates under.
type GroupKind int

const (
	RequireAll GroupKind = iota
	RequireAny
	OptionalAll
	ExcludeAll
)

func (g GroupKind) String() string {
	switch g {
	case RequireAll:
		return "require-all"
	case RequireAny:
		return "require-any"
	case OptionalAll:
		return "optional-all"
	case ExcludeAll:
		return "exclude-all"
	default:
		return "unknown"
	}
}

// VState is a vertex's lifecycle state, distinct from a Unit's
// execution state machine: it is the graph's own record of where a
// service/instance/group currently sits.
type VState int

const (
	VUninitialised VState = iota
	VOffline
	VOnline
	VDegraded
	VDisabled
	VMaintenance
)

func (s VState) String() string {
	switch s {
	case VUninitialised:
		return "uninitialised"
	case VOffline:
		return "offline"
	case VOnline:
		return "online"
	case VDegraded:
		return "degraded"
	case VDisabled:
		return "disabled"
	case VMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

func (s VState) running() bool { return s == VOnline || s == VDegraded }

// Satisfiability is the three-valued outcome of evaluating whether an
// instance's dependencies currently allow it to come up.
type Satisfiability int

const (
	Satisfied Satisfiability = iota
	Unsatisfied
	Unsatisfiable
)

func (s Satisfiability) String() string {
	switch s {
	case Satisfied:
		return "satisfied"
	case Unsatisfied:
		return "unsatisfied"
	case Unsatisfiable:
		return "unsatisfiable"
	default:
		return "unknown"
	}
}

// worseOf returns the dominant (worst) of two satisfiability results,
// used by RequireAll's "worst of all edges" rule.
func worseOf(a, b Satisfiability) Satisfiability {
	if a > b {
		return a
	}
	return b
}

// Edge is a directed dependency relation from→to, stored once in
// from's Dependencies and mirrored (direction swapped) in to's
// Dependents (spec §3).
type Edge struct {
	From Handle
	To   Handle
}

// GroupPayload is the kind-specific data carried only by DepGroup vertices.
type GroupPayload struct {
	Kind      GroupKind
	RestartOn note.Reason
}

// Vertex is the graph's kind-tagged sum type. Group is non-nil only
// when Kind == KindDepGroup.
type Vertex struct {
	Handle Handle
	Path   svcpath.Path
	Kind   Kind

	Dependencies []Edge
	Dependents   []Edge

	IsSetup    bool
	IsEnabled  bool
	ToOffline  bool
	ToDisable  bool
	State      VState

	Group *GroupPayload
}
