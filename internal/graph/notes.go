package graph

import "github.com/harrowgate/svcmgr/internal/note"

// ProcessNote is the Graph Engine's half of the note-processing loop
// of spec §4.4/§4.5: it consumes StateChange and AdminReq notes drained
// from the bus by the event loop, and may in turn Post further notes
// (cascading StateChange, or RestarterRequest notes addressed to the
// restarter core) which the same drain loop will pick up.
//
// A note naming an unknown path is logged and discarded (spec §7), not
// treated as an error.
func (g *Graph) ProcessNote(n note.Note) {
	v, ok := g.Find(n.Path)
	if !ok {
		g.log.For(n.Path.String()).Warnf("note for unknown path, discarding")
		return
	}

	switch n.Kind {
	case note.KindStateChange:
		switch n.StateSub {
		case note.StateOnline:
			g.onOnline(v, n.Reason)
		case note.StateOffline:
			g.onOffline(v, n.Reason)
		case note.StateDisabled:
			g.onDisabled(v, n.Reason)
		}

	case note.KindAdminReq:
		switch n.AdminSub {
		case note.AdminDisable:
			g.onAdminDisable(v, n.Reason)
		case note.AdminEnable:
			g.onAdminEnable(v, n.Reason)
		case note.AdminRestart:
			// Not detailed by the note-processing rules; treated as a
			// request to re-probe the vertex exactly as Enable's own
			// tail emission does, bouncing it through Offline so a
			// currently-Online vertex is re-evaluated for restart.
			g.bus.Post(note.StateChange(v.Path, note.StateOffline, note.ReasonRestart))
		}
	}
}

// onOnline implements "StateChange(Online, ...)" (spec §4.4): set state,
// then notify-start every dependent so any that can now come up do so.
//
// The spec's literal text says a dependent instance that "can come up
// and is not running" should itself emit StateChange(Online, ...).
// That would mark a vertex's lifecycle state Online before any process
// actually backs it, which this implementation treats as shorthand for
// "kick the restarter": it posts a RestarterRequest(Start, ...) instead,
// and the vertex's own Online state-change note arrives later, posted by
// the restarter core once the unit genuinely reaches Online.
func (g *Graph) onOnline(v *Vertex, reason note.Reason) {
	v.State = VOnline
	g.notifyStart(v, reason)
}

// onOffline implements "StateChange(Offline, ...)" (spec §4.4).
func (g *Graph) onOffline(v *Vertex, reason note.Reason) {
	v.State = VOffline
	wasToOffline := v.ToOffline
	v.ToOffline = false

	if wasToOffline {
		g.offlineDependency(v)
		if v.ToDisable {
			g.bus.Post(note.StateChange(v.Path, note.StateDisabled, reason))
		}
	} else if g.CanComeUp(v) {
		g.bus.Post(note.StateChange(v.Path, note.StateOnline, reason))
	}

	g.notifyStop(v, reason)
}

// onDisabled implements "StateChange(Disabled, ...)" (spec §4.4).
func (g *Graph) onDisabled(v *Vertex, reason note.Reason) {
	v.ToOffline = false
	v.ToDisable = false
	v.State = VDisabled
	g.notifyMisc(v, reason)
}

// onAdminDisable implements "AdminReq(Disable, ...)" (spec §4.4).
func (g *Graph) onAdminDisable(v *Vertex, reason note.Reason) {
	v.ToDisable = true
	v.ToOffline = true
	v.IsEnabled = false
	g.notifyAdminDisable(v, reason)

	for _, vtx := range g.arena[1:] {
		if vtx != nil && vtx.ToOffline && g.CanGoDown(vtx, true) {
			g.bus.Post(note.StateChange(vtx.Path, note.StateOffline, reason))
		}
	}
}

// onAdminEnable implements "AdminReq(Enable, ...)" (spec §4.4).
func (g *Graph) onAdminEnable(v *Vertex, reason note.Reason) {
	v.ToDisable = false
	v.ToOffline = false
	v.IsEnabled = true
	g.bus.Post(note.StateChange(v.Path, note.StateOffline, note.ReasonRestart))
}

// notifyStart walks v's dependents unconditionally (notify-start carries
// no severity gating, unlike notify-stop) and requests a start for any
// reachable Instance vertex that can come up and is not already running.
func (g *Graph) notifyStart(v *Vertex, reason note.Reason) {
	for _, e := range v.Dependents {
		dep := g.arena[e.To]
		if dep.Kind == KindInstance && !dep.State.running() && g.CanComeUp(dep) {
			g.bus.Post(note.RestarterRequest(dep.Path, note.RestarterStart, reason))
		}
		g.notifyStart(dep, reason)
	}
}

// notifyMisc re-probes dependents after a Disabled transition so that
// any instance newly freed of an exclusion can come up (spec §4.4).
func (g *Graph) notifyMisc(v *Vertex, reason note.Reason) {
	g.notifyStart(v, reason)
}

// notifyStop walks v's dependents, gated by restart-on severity: a
// DepGroup dependent whose RestartOn is strictly less severe than
// reason cuts the traversal, and ExcludeAll groups never propagate a
// stop downward at all (spec §4.4's "Propagation gating by restart-on").
func (g *Graph) notifyStop(v *Vertex, reason note.Reason) {
	for _, e := range v.Dependents {
		dep := g.arena[e.To]

		if dep.Kind == KindDepGroup && dep.Group != nil {
			if dep.Group.Kind == ExcludeAll {
				continue
			}
			if dep.Group.RestartOn < reason {
				continue
			}
		}

		if dep.Kind == KindInstance {
			dep.ToOffline = true
			if g.CanGoDown(dep, true) {
				g.bus.Post(note.StateChange(dep.Path, note.StateOffline, reason))
			}
		}

		g.notifyStop(dep, reason)
	}
}

// notifyAdminDisable walks v's dependents unconditionally, marking each
// ToOffline so a subsequent full-graph sweep can bring down everything
// whose subtree is clear (spec §4.4, AdminReq(Disable, ...)).
func (g *Graph) notifyAdminDisable(v *Vertex, reason note.Reason) {
	for _, e := range v.Dependents {
		dep := g.arena[e.To]
		dep.ToOffline = true
		g.notifyAdminDisable(dep, reason)
	}
}

// offlineDependency implements vtx_offline_dependency (spec §4.4):
// propagate offlining downward through v's dependencies so that
// transitively reachable instances that were awaiting shutdown (their
// own ToOffline flag set) and can now go down complete it.
func (g *Graph) offlineDependency(v *Vertex) {
	for _, e := range v.Dependencies {
		t := g.arena[e.To]
		if t.Kind == KindInstance && t.ToOffline && g.CanGoDown(t, true) {
			g.bus.Post(note.StateChange(t.Path, note.StateOffline, note.ReasonNone))
		}
		g.offlineDependency(t)
	}
}
