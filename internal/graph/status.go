package graph

import "github.com/harrowgate/svcmgr/internal/svcpath"

// VertexSnapshot is a read-only view of one vertex's dependency-state,
// so a reader need not walk the arena itself.
type VertexSnapshot struct {
	Path          svcpath.Path
	Kind          Kind
	State         VState
	IsEnabled     bool
	IsSetup       bool
	Satisfiable   Satisfiability
	Dependencies  []svcpath.Path
	Dependents    []svcpath.Path
}

// Status returns a snapshot of the named vertex, if it exists.
func (g *Graph) Status(path svcpath.Path) (VertexSnapshot, bool) {
	v, ok := g.Find(path)
	if !ok {
		return VertexSnapshot{}, false
	}
	deps := make([]svcpath.Path, 0, len(v.Dependencies))
	for _, e := range v.Dependencies {
		if to := g.Vertex(e.To); to != nil {
			deps = append(deps, to.Path)
		}
	}
	dependents := make([]svcpath.Path, 0, len(v.Dependents))
	for _, e := range v.Dependents {
		if to := g.Vertex(e.To); to != nil {
			dependents = append(dependents, to.Path)
		}
	}
	return VertexSnapshot{
		Path:         v.Path,
		Kind:         v.Kind,
		State:        v.State,
		IsEnabled:    v.IsEnabled,
		IsSetup:      v.IsSetup,
		Satisfiable:  g.SatisfiabilityRecursive(v),
		Dependencies: deps,
		Dependents:   dependents,
	}, true
}
