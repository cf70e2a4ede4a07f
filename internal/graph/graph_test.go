package graph

import (
	"testing"

	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/svcpath"
)

// fakeCatalog hands back a fixed set of dependency groups per path,
// configured by the test.
type fakeCatalog struct {
	groups map[string][]GroupSpec
}

func newFakeCatalog() *fakeCatalog { return &fakeCatalog{groups: make(map[string][]GroupSpec)} }

func (c *fakeCatalog) set(path svcpath.Path, specs ...GroupSpec) {
	c.groups[path.String()] = specs
}

func (c *fakeCatalog) DependencyGroups(path svcpath.Path) ([]GroupSpec, error) {
	return c.groups[path.String()], nil
}

func TestInstallInstLinksOwningService(t *testing.T) {
	g := New(note.NewBus())
	inst := g.InstallInst(svcpath.NewInstance("web", "a"))
	svc, ok := g.Find(svcpath.New("web"))
	if !ok {
		t.Fatalf("expected InstallInst to install the owning service too")
	}
	if len(svc.Dependencies) != 1 || g.Vertex(svc.Dependencies[0].To) != inst {
		t.Fatalf("expected a service->instance dependency edge")
	}
	if len(inst.Dependents) != 1 || g.Vertex(inst.Dependents[0].To) != svc {
		t.Fatalf("expected the mirrored instance->service dependents edge")
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	g := New(note.NewBus())
	a := g.InstallService(svcpath.New("web"))
	b := g.InstallService(svcpath.New("web"))
	if a != b {
		t.Fatalf("InstallService should find-or-add, got distinct vertices")
	}
}

func TestSetupRejectsCyclicalDependency(t *testing.T) {
	g := New(note.NewBus())
	cat := newFakeCatalog()

	a := g.InstallInst(svcpath.NewInstance("a", "1"))
	b := g.InstallInst(svcpath.NewInstance("b", "1"))

	cat.set(a.Path, GroupSpec{Kind: RequireAll, Targets: []svcpath.Path{b.Path}})
	cat.set(b.Path, GroupSpec{Kind: RequireAll, Targets: []svcpath.Path{a.Path}})

	if err := g.Setup(a, cat); err != nil {
		t.Fatalf("setup a: %v", err)
	}
	if err := g.Setup(b, cat); err != nil {
		t.Fatalf("setup b: %v", err)
	}

	// b's group would reach back to b's own owner (b) through a, so the
	// edge is refused rather than accepted. b's group should therefore
	// have no targets linked.
	bGroupPath := b.Path.DepGroup(0)
	bGroup, ok := g.Find(bGroupPath)
	if !ok {
		t.Fatalf("expected b's group vertex to exist even with a refused edge")
	}
	if len(bGroup.Dependencies) != 0 {
		t.Fatalf("expected the cyclical edge b->a to be refused, got %d dependencies", len(bGroup.Dependencies))
	}
}

func TestSetupIsIdempotent(t *testing.T) {
	g := New(note.NewBus())
	cat := newFakeCatalog()
	a := g.InstallInst(svcpath.NewInstance("a", "1"))
	b := g.InstallInst(svcpath.NewInstance("b", "1"))
	cat.set(a.Path, GroupSpec{Kind: RequireAll, Targets: []svcpath.Path{b.Path}})

	if err := g.Setup(a, cat); err != nil {
		t.Fatalf("first setup: %v", err)
	}
	deps := len(a.Dependencies)
	if err := g.Setup(a, cat); err != nil {
		t.Fatalf("second setup: %v", err)
	}
	if len(a.Dependencies) != deps {
		t.Fatalf("repeat Setup should be a no-op, dependency count changed from %d to %d", deps, len(a.Dependencies))
	}
}

// TestSatisfiabilityTable exercises spec §4.4's non-recursive/recursive
// table directly against each VState.
func TestSatisfiabilityTable(t *testing.T) {
	g := New(note.NewBus())
	cases := []struct {
		state      VState
		nonRec     Satisfiability
		recNoGroup Satisfiability
	}{
		{VUninitialised, Unsatisfied, Unsatisfied},
		{VOffline, Unsatisfied, Unsatisfied},
		{VOnline, Satisfied, Satisfied},
		{VDegraded, Satisfied, Satisfied},
		{VDisabled, Unsatisfiable, Unsatisfiable},
		{VMaintenance, Unsatisfiable, Unsatisfiable},
	}
	for _, c := range cases {
		v := g.InstallService(svcpath.New(c.state.String()))
		v.State = c.state
		if got := g.SatisfiabilityNonRecursive(v); got != c.nonRec {
			t.Errorf("%s: non-recursive got %s, want %s", c.state, got, c.nonRec)
		}
		if got := g.SatisfiabilityRecursive(v); got != c.recNoGroup {
			t.Errorf("%s: recursive (no groups) got %s, want %s", c.state, got, c.recNoGroup)
		}
	}
}

func TestRequireAllSatisfiabilityIsWorstOfTargets(t *testing.T) {
	g := New(note.NewBus())
	cat := newFakeCatalog()

	owner := g.InstallInst(svcpath.NewInstance("web", "1"))
	dep1 := g.InstallInst(svcpath.NewInstance("db", "1"))
	dep2 := g.InstallInst(svcpath.NewInstance("cache", "1"))
	dep1.State = VOnline
	dep2.State = VOffline

	cat.set(owner.Path, GroupSpec{Kind: RequireAll, Targets: []svcpath.Path{dep1.Path, dep2.Path}})
	if err := g.Setup(owner, cat); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if got := g.groupAggregate(owner); got != Unsatisfied {
		t.Fatalf("RequireAll with one Online, one Offline dependency should be Unsatisfied, got %s", got)
	}

	dep2.State = VDisabled
	if got := g.groupAggregate(owner); got != Unsatisfiable {
		t.Fatalf("RequireAll with a Disabled dependency should be Unsatisfiable, got %s", got)
	}
}

func TestRequireAnySatisfiedByOneTarget(t *testing.T) {
	g := New(note.NewBus())
	cat := newFakeCatalog()

	owner := g.InstallInst(svcpath.NewInstance("web", "1"))
	dep1 := g.InstallInst(svcpath.NewInstance("primary", "1"))
	dep2 := g.InstallInst(svcpath.NewInstance("backup", "1"))
	dep1.State = VDisabled
	dep2.State = VOnline

	cat.set(owner.Path, GroupSpec{Kind: RequireAny, Targets: []svcpath.Path{dep1.Path, dep2.Path}})
	if err := g.Setup(owner, cat); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if got := g.groupAggregate(owner); got != Satisfied {
		t.Fatalf("RequireAny with one Online target should be Satisfied, got %s", got)
	}

	dep2.State = VOffline
	if got := g.groupAggregate(owner); got != Unsatisfied {
		t.Fatalf("RequireAny with no Online but not all Unsatisfiable should be Unsatisfied, got %s", got)
	}

	dep2.State = VDisabled
	if got := g.groupAggregate(owner); got != Unsatisfiable {
		t.Fatalf("RequireAny with every target Unsatisfiable should be Unsatisfiable, got %s", got)
	}
}

func TestOptionalAllNeverUnsatisfiable(t *testing.T) {
	g := New(note.NewBus())
	cat := newFakeCatalog()

	owner := g.InstallInst(svcpath.NewInstance("web", "1"))
	dep := g.InstallInst(svcpath.NewInstance("metrics", "1"))
	dep.State = VDisabled

	cat.set(owner.Path, GroupSpec{Kind: OptionalAll, Targets: []svcpath.Path{dep.Path}})
	if err := g.Setup(owner, cat); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if got := g.groupAggregate(owner); got != Satisfied {
		t.Fatalf("OptionalAll should downgrade Unsatisfiable to Satisfied, got %s", got)
	}
}

// TestExcludeAllBlocksConflictingPeer mirrors spec §8 scenario 3: an
// ExcludeAll group is Unsatisfiable exactly when a conflicting target is
// actually running and enabled.
func TestExcludeAllBlocksConflictingPeer(t *testing.T) {
	g := New(note.NewBus())
	cat := newFakeCatalog()

	owner := g.InstallInst(svcpath.NewInstance("web", "blue"))
	peer := g.InstallInst(svcpath.NewInstance("web", "green"))
	peer.IsEnabled = true
	peer.State = VOffline

	cat.set(owner.Path, GroupSpec{Kind: ExcludeAll, Targets: []svcpath.Path{peer.Path}})
	if err := g.Setup(owner, cat); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if got := g.groupAggregate(owner); got != Unsatisfied {
		t.Fatalf("peer enabled but not running should leave the exclusion Unsatisfied, got %s", got)
	}

	peer.State = VOnline
	if got := g.groupAggregate(owner); got != Unsatisfiable {
		t.Fatalf("peer running and enabled should make the exclusion Unsatisfiable, got %s", got)
	}

	peer.IsEnabled = false
	peer.ToOffline = true
	if got := g.groupAggregate(owner); got != Unsatisfied {
		t.Fatalf("peer running but disabled-and-heading-offline should not block forever, got %s", got)
	}
}

func TestReachableStopsAtExcludeAllGroup(t *testing.T) {
	g := New(note.NewBus())
	cat := newFakeCatalog()

	a := g.InstallInst(svcpath.NewInstance("a", "1"))
	b := g.InstallInst(svcpath.NewInstance("b", "1"))
	cat.set(a.Path, GroupSpec{Kind: ExcludeAll, Targets: []svcpath.Path{b.Path}})
	if err := g.Setup(a, cat); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// b does not become reachable from a's exclusion group, since
	// ExcludeAll expresses a negative dependency, not a prerequisite.
	groupHandle := a.Dependencies[0].To
	if g.reachable(groupHandle, b.Handle) {
		t.Fatalf("reachable should not descend through an ExcludeAll group")
	}
}

func TestOnOnlineNotifiesDependentsThatCanComeUp(t *testing.T) {
	bus := note.NewBus()
	g := New(bus)
	cat := newFakeCatalog()

	db := g.InstallInst(svcpath.NewInstance("db", "1"))
	web := g.InstallInst(svcpath.NewInstance("web", "1"))
	web.IsEnabled = true
	web.State = VOffline

	cat.set(web.Path, GroupSpec{Kind: RequireAll, Targets: []svcpath.Path{db.Path}})
	if err := g.Setup(web, cat); err != nil {
		t.Fatalf("setup: %v", err)
	}

	g.ProcessNote(note.StateChange(db.Path, note.StateOnline, note.ReasonNone))

	if db.State != VOnline {
		t.Fatalf("expected db's vertex state to be set Online")
	}
	notes := bus.Drain()
	if len(notes) != 1 || notes[0].Kind != note.KindRestarterRequest || notes[0].RestartSub != note.RestarterStart {
		t.Fatalf("expected a RestarterRequest(Start) for web, got %+v", notes)
	}
	if notes[0].Path != web.Path {
		t.Fatalf("expected the start request addressed to web, got %s", notes[0].Path)
	}
}

// TestNotifyStopGatedBySeverity exercises the restart-on gate on
// notifyStop: a group cuts propagation once the incoming reason is
// strictly more severe than the group's own RestartOn threshold.
func TestNotifyStopGatedBySeverity(t *testing.T) {
	newGraph := func() (*Graph, *Vertex, *Vertex) {
		bus := note.NewBus()
		g := New(bus)
		cat := newFakeCatalog()
		db := g.InstallInst(svcpath.NewInstance("db", "1"))
		web := g.InstallInst(svcpath.NewInstance("web", "1"))
		web.State = VOnline
		cat.set(web.Path, GroupSpec{Kind: RequireAll, RestartOn: note.ReasonError, Targets: []svcpath.Path{db.Path}})
		if err := g.Setup(web, cat); err != nil {
			t.Fatalf("setup: %v", err)
		}
		return g, db, web
	}

	g, db, web := newGraph()
	g.ProcessNote(note.StateChange(db.Path, note.StateOffline, note.ReasonRefresh))
	for _, n := range g.bus.Drain() {
		if n.Path == web.Path {
			t.Fatalf("ReasonRefresh exceeding a RestartOn=Error group should not reach web, got %+v", n)
		}
	}

	g, db, web = newGraph()
	g.ProcessNote(note.StateChange(db.Path, note.StateOffline, note.ReasonError))
	found := false
	for _, n := range g.bus.Drain() {
		if n.Path == web.Path && n.Kind == note.KindStateChange && n.StateSub == note.StateOffline {
			found = true
		}
	}
	if !found {
		t.Fatalf("ReasonError meeting the group's threshold should stop web")
	}
}

func TestAdminDisableCascadesWhenClear(t *testing.T) {
	bus := note.NewBus()
	g := New(bus)
	cat := newFakeCatalog()

	db := g.InstallInst(svcpath.NewInstance("db", "1"))
	web := g.InstallInst(svcpath.NewInstance("web", "1"))
	web.IsEnabled = true

	cat.set(web.Path, GroupSpec{Kind: RequireAll, Targets: []svcpath.Path{db.Path}})
	if err := g.Setup(web, cat); err != nil {
		t.Fatalf("setup: %v", err)
	}

	g.ProcessNote(note.AdminReq(db.Path, note.AdminDisable, note.ReasonNone))

	if !db.ToDisable || !db.ToOffline {
		t.Fatalf("expected db to be marked ToDisable/ToOffline")
	}
	notes := bus.Drain()
	found := false
	for _, n := range notes {
		if n.Path == db.Path && n.Kind == note.KindStateChange && n.StateSub == note.StateOffline {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected db itself to be offlined once nothing depends on it running, got %+v", notes)
	}
}

func TestStatusReportsDependenciesAndDependents(t *testing.T) {
	g := New(note.NewBus())
	cat := newFakeCatalog()
	db := g.InstallInst(svcpath.NewInstance("db", "1"))
	web := g.InstallInst(svcpath.NewInstance("web", "1"))
	cat.set(web.Path, GroupSpec{Kind: RequireAll, Targets: []svcpath.Path{db.Path}})
	if err := g.Setup(web, cat); err != nil {
		t.Fatalf("setup: %v", err)
	}

	snap, ok := g.Status(web.Path)
	if !ok {
		t.Fatalf("expected a snapshot for web")
	}
	if len(snap.Dependencies) != 1 || snap.Dependencies[0] != web.Path.DepGroup(0) {
		t.Fatalf("expected web's dependency to be its own depgroup vertex, got %+v", snap.Dependencies)
	}

	dbSnap, ok := g.Status(db.Path)
	if !ok {
		t.Fatalf("expected a snapshot for db")
	}
	foundGroup := false
	for _, p := range dbSnap.Dependents {
		if p == web.Path.DepGroup(0) {
			foundGroup = true
		}
	}
	if !foundGroup {
		t.Fatalf("expected db's dependents to include web's depgroup vertex, got %+v", dbSnap.Dependents)
	}
}
