package graph

import (
	"fmt"

	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/svclog"
	"github.com/harrowgate/svcmgr/internal/svcpath"
)

// Graph is the explicit context object of spec §9: an arena of
// vertices addressed by Handle, constructed once at bootstrap and
// threaded through every operation rather than kept as global state.
type Graph struct {
	arena  []*Vertex // arena[0] is unused; handles are 1-indexed
	byPath map[string]Handle

	groupSeq map[string]int // owner path -> next depgroup suffix

	bus *note.Bus
	log svclog.Logger
}

// New constructs an empty Graph posting propagation notes onto bus.
func New(bus *note.Bus) *Graph {
	return &Graph{
		arena:    make([]*Vertex, 1),
		byPath:   make(map[string]Handle),
		groupSeq: make(map[string]int),
		bus:      bus,
		log:      svclog.New("graph"),
	}
}

// Vertex dereferences a Handle. The zero Handle, or one outside this
// Graph's arena, returns nil; a handle is not checked against the Graph
// that issued it.
func (g *Graph) Vertex(h Handle) *Vertex {
	if h <= 0 || int(h) >= len(g.arena) {
		return nil
	}
	return g.arena[h]
}

// Find returns the vertex at path, if one has been installed.
func (g *Graph) Find(path svcpath.Path) (*Vertex, bool) {
	h, ok := g.byPath[path.String()]
	if !ok {
		return nil, false
	}
	return g.arena[h], true
}

func (g *Graph) alloc(path svcpath.Path, kind Kind) *Vertex {
	h := Handle(len(g.arena))
	v := &Vertex{Handle: h, Path: path, Kind: kind, State: VUninitialised}
	g.arena = append(g.arena, v)
	g.byPath[path.String()] = h
	return v
}

// InstallService is install_service: find-or-add. Idempotent for
// identical inputs (spec §8).
func (g *Graph) InstallService(path svcpath.Path) *Vertex {
	if v, ok := g.Find(path); ok {
		return v
	}
	return g.alloc(path, KindService)
}

// InstallInst is install_inst: find-or-add, linking the instance to its
// owning service with a Service→Instance edge (spec §3 invariant: every
// Service has its Instances as direct dependencies).
func (g *Graph) InstallInst(path svcpath.Path) *Vertex {
	if v, ok := g.Find(path); ok {
		return v
	}
	inst := g.alloc(path, KindInstance)
	svc := g.InstallService(svcpath.New(path.Service))
	g.addEdge(svc.Handle, inst.Handle)
	return inst
}

// addEdge records from→to once in from's Dependencies and a mirrored
// to→from edge in to's Dependents, per spec §3.
func (g *Graph) addEdge(from, to Handle) {
	g.arena[from].Dependencies = append(g.arena[from].Dependencies, Edge{From: from, To: to})
	g.arena[to].Dependents = append(g.arena[to].Dependents, Edge{From: to, To: from})
}

// reachable reports whether target is reachable from start by
// following Dependencies edges. Traversal does not descend past an
// ExcludeAll group vertex, since such groups express a negative
// dependency rather than a true prerequisite chain (spec §4.4).
func (g *Graph) reachable(start, target Handle) bool {
	if start == target {
		return true
	}
	seen := map[Handle]bool{start: true}
	stack := []Handle{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		v := g.arena[cur]
		if v.Kind == KindDepGroup && v.Group != nil && v.Group.Kind == ExcludeAll {
			continue
		}
		for _, e := range v.Dependencies {
			if e.To == target {
				return true
			}
			if !seen[e.To] {
				seen[e.To] = true
				stack = append(stack, e.To)
			}
		}
	}
	return false
}

// Setup is vertex setup (spec §4.4): idempotent. It fetches v's
// dependency groups from cat, synthesizes a group vertex per group
// under a unique "#depgroups/<n>" path suffix, links owner→group, and
// links group→target for each referenced path. Every edge is guarded
// by a reachability check from the prospective target back to the
// owner; a check that trips is refused and logged, not fatal.
func (g *Graph) Setup(v *Vertex, cat Catalog) error {
	if v.IsSetup {
		return nil
	}
	specs, err := cat.DependencyGroups(v.Path)
	if err != nil {
		return fmt.Errorf("graph: dependency groups for %s: %w", v.Path, err)
	}

	for _, spec := range specs {
		n := g.groupSeq[v.Path.String()]
		g.groupSeq[v.Path.String()] = n + 1
		groupPath := v.Path.DepGroup(n)

		group := g.alloc(groupPath, KindDepGroup)
		group.Group = &GroupPayload{Kind: spec.Kind, RestartOn: spec.RestartOn}
		group.IsSetup = true
		group.IsEnabled = true

		if g.reachable(group.Handle, v.Handle) {
			g.log.For(v.Path.String()).Errorf("cyclical dependency: %s would reach its own owner", groupPath)
			continue
		}
		g.addEdge(v.Handle, group.Handle)

		for _, targetPath := range spec.Targets {
			target := g.resolveOrInstall(targetPath)
			if g.reachable(target.Handle, group.Handle) {
				g.log.For(v.Path.String()).Errorf("cyclical dependency: %s -> %s", groupPath, targetPath)
				continue
			}
			g.addEdge(group.Handle, target.Handle)
		}
	}

	v.IsSetup = true
	return nil
}

func (g *Graph) resolveOrInstall(path svcpath.Path) *Vertex {
	if v, ok := g.Find(path); ok {
		return v
	}
	if path.IsInstance() {
		return g.InstallInst(path)
	}
	return g.InstallService(path)
}
