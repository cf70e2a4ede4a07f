package graph

// SatisfiabilityNonRecursive evaluates v's own lifecycle state only,
// ignoring its dependency groups (spec §4.4 table, "Non-recursive" column).
func (g *Graph) SatisfiabilityNonRecursive(v *Vertex) Satisfiability {
	switch v.State {
	case VDisabled, VMaintenance:
		return Unsatisfiable
	case VOnline, VDegraded:
		return Satisfied
	default: // Uninitialised, Offline
		return Unsatisfied
	}
}

// SatisfiabilityRecursive evaluates v's own state together with its
// dependency groups (spec §4.4 table, "Recursive" column): an Offline
// vertex is only Unsatisfied (as opposed to Unsatisfiable) while its own
// groups remain satisfiable.
func (g *Graph) SatisfiabilityRecursive(v *Vertex) Satisfiability {
	switch v.State {
	case VDisabled, VMaintenance:
		return Unsatisfiable
	case VOnline, VDegraded:
		return Satisfied
	case VOffline:
		if g.groupAggregate(v) == Unsatisfiable {
			return Unsatisfiable
		}
		return Unsatisfied
	default: // Uninitialised
		return Unsatisfied
	}
}

// groupAggregate combines every dependency group directly owned by v
// with RequireAll dominance: all of a vertex's groups must hold for the
// vertex itself to be satisfiable.
func (g *Graph) groupAggregate(v *Vertex) Satisfiability {
	result := Satisfied
	any := false
	for _, e := range v.Dependencies {
		target := g.arena[e.To]
		if target.Kind != KindDepGroup {
			continue
		}
		any = true
		result = worseOf(result, g.groupSatisfiability(target))
	}
	if !any {
		return Satisfied
	}
	return result
}

// groupSatisfiability evaluates one dependency-group vertex against its
// targets, dispatching on GroupKind per spec §4.4.
func (g *Graph) groupSatisfiability(group *Vertex) Satisfiability {
	if group.Group == nil {
		return Satisfied
	}
	switch group.Group.Kind {
	case RequireAll:
		result := Satisfied
		for _, e := range group.Dependencies {
			result = worseOf(result, g.edgeSatisfiability(g.arena[e.To]))
		}
		return result

	case RequireAny:
		if len(group.Dependencies) == 0 {
			return Satisfied
		}
		allUnsatisfiable := true
		for _, e := range group.Dependencies {
			s := g.edgeSatisfiability(g.arena[e.To])
			if s == Satisfied {
				return Satisfied
			}
			if s != Unsatisfiable {
				allUnsatisfiable = false
			}
		}
		if allUnsatisfiable {
			return Unsatisfiable
		}
		return Unsatisfied

	case OptionalAll:
		result := Satisfied
		for _, e := range group.Dependencies {
			result = worseOf(result, g.edgeSatisfiability(g.arena[e.To]))
		}
		if result == Unsatisfiable {
			return Satisfied
		}
		return result

	case ExcludeAll:
		return g.excludeAllSatisfiability(group)

	default:
		return Satisfied
	}
}

// edgeSatisfiability evaluates one dependency-group target. A Service
// target has no running state of its own; it is evaluated as the
// RequireAll aggregate of its Instance vertices.
func (g *Graph) edgeSatisfiability(target *Vertex) Satisfiability {
	if target.Kind == KindService {
		result := Satisfied
		any := false
		for _, e := range target.Dependencies {
			inst := g.arena[e.To]
			if inst.Kind != KindInstance {
				continue
			}
			any = true
			result = worseOf(result, g.SatisfiabilityRecursive(inst))
		}
		if !any {
			return Unsatisfied
		}
		return result
	}
	return g.SatisfiabilityRecursive(target)
}

// excludeAllSatisfiability: satisfied when every target is neither
// running nor enabled-and-approaching-running; unsatisfiable as soon as
// any target is actually Online/Degraded while enabled (spec §4.4, §8
// scenario 3).
func (g *Graph) excludeAllSatisfiability(group *Vertex) Satisfiability {
	allClear := true
	for _, e := range group.Dependencies {
		t := g.arena[e.To]
		if t.State.running() && t.IsEnabled {
			return Unsatisfiable
		}
		if t.State.running() || (t.IsEnabled && !t.ToOffline) {
			allClear = false
		}
	}
	if allClear {
		return Satisfied
	}
	return Unsatisfied
}

// CanComeUp implements "can come up" (spec §4.4): enabled, not headed
// offline or disabled, and its dependency groups are fully satisfied.
// This checks v's groups directly rather than SatisfiabilityRecursive(v),
// since that function can never report Satisfied for a vertex that is
// not itself already Online/Degraded, and "can come up" is always asked
// of a vertex that is not yet running.
func (g *Graph) CanComeUp(v *Vertex) bool {
	return v.IsEnabled && !v.ToOffline && !v.ToDisable && g.groupAggregate(v) == Satisfied
}

// CanGoDown implements the "can go down" predicate of spec §4.4: an
// instance can go down if every transitive dependent instance is either
// already shutting down or not running. The root of the call (root=true)
// is exempt from the "must already be stopping" requirement on itself.
func (g *Graph) CanGoDown(v *Vertex, root bool) bool {
	if !root {
		if v.Kind == KindInstance && v.State.running() && !v.ToOffline {
			return false
		}
	}
	for _, e := range v.Dependents {
		dep := g.arena[e.To]
		if !g.CanGoDown(dep, false) {
			return false
		}
	}
	return true
}
