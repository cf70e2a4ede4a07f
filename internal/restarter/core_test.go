package restarter

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/proctrack"
	"github.com/harrowgate/svcmgr/internal/svcconfig"
	"github.com/harrowgate/svcmgr/internal/svcpath"
	"github.com/harrowgate/svcmgr/internal/timerset"
)

// fakeTracker records Watch/Disregard calls; it never emits events
// itself, since these tests drive UnitPTEvent directly.
type fakeTracker struct {
	mu      sync.Mutex
	watched map[int]bool
}

func newFakeTracker() *fakeTracker { return &fakeTracker{watched: make(map[int]bool)} }

func (t *fakeTracker) Watch(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watched[pid] = true
}

func (t *fakeTracker) Disregard(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.watched, pid)
}

func (t *fakeTracker) isWatched(pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watched[pid]
}

// fakeForker hands out sequential fake PIDs without spawning anything.
// release/kill are no-ops that just record whether they were called.
type fakeForker struct {
	nextPID  int32
	forkErr  error
	released []int
	killed   []int
}

func (f *fakeForker) Fork(argv []string, env []string) (int, func() error, func() error, error) {
	if f.forkErr != nil {
		return 0, nil, nil, f.forkErr
	}
	pid := int(atomic.AddInt32(&f.nextPID, 1))
	release := func() error {
		f.released = append(f.released, pid)
		return nil
	}
	kill := func() error {
		f.killed = append(f.killed, pid)
		return nil
	}
	return pid, release, kill, nil
}

func testConfig() svcconfig.Data {
	return svcconfig.Data{
		MethodTimeoutMS:   2000,
		RestartCooldownMS: 5000,
		RestartReentryMS:  500,
		MaxMethodFailures: 5,
		StopTermTimeoutMS: 2000,
		StopKillTimeoutMS: 2000,
	}
}

func newTestCore(forker Forker) (*Core, *fakeTracker, *note.Bus) {
	tracker := newFakeTracker()
	bus := note.NewBus()
	timers := timerset.New()
	core := New(tracker, timers, bus, forker, testConfig(), "/tmp/notify.sock")
	return core, tracker, bus
}

func simpleMethods() map[MethodKind]Method {
	return map[MethodKind]Method{
		MethodStart: {Argv: []string{"/bin/true"}},
	}
}

func TestUnitAddIdempotent(t *testing.T) {
	core, _, _ := newTestCore(&fakeForker{})
	path := svcpath.New("web")
	u1 := core.UnitAdd(path, Simple, simpleMethods())
	u2 := core.UnitAdd(path, Simple, map[MethodKind]Method{MethodStart: {Argv: []string{"/bin/false"}}})
	if u1 != u2 {
		t.Fatalf("UnitAdd should return the existing unit on repeat calls")
	}
	if !u1.Methods[MethodStart].Defined() || u1.Methods[MethodStart].Argv[0] != "/bin/true" {
		t.Fatalf("second UnitAdd call mutated the existing unit's methods")
	}
}

func TestSimpleUnitStartToOnline(t *testing.T) {
	forker := &fakeForker{}
	core, tracker, bus := newTestCore(forker)
	u := core.UnitAdd(svcpath.New("web"), Simple, simpleMethods())

	core.UnitMsg(u, note.RestarterRequest(u.Path, note.RestarterStart, note.ReasonNone))

	if u.State != Online {
		t.Fatalf("Simple unit with no prestart/poststart should reach Online immediately, got %s", u.State)
	}
	if u.MainPID == 0 {
		t.Fatalf("expected a main PID to be recorded")
	}
	if !tracker.isWatched(u.MainPID) {
		t.Fatalf("main PID should be watched by the tracker")
	}
	notes := bus.Drain()
	if len(notes) != 1 || notes[0].Kind != note.KindStateChange || notes[0].StateSub != note.StateOnline {
		t.Fatalf("expected a single StateChange(Online) note, got %+v", notes)
	}
}

func TestForksUnitWaitsForReadiness(t *testing.T) {
	forker := &fakeForker{}
	core, _, _ := newTestCore(forker)
	u := core.UnitAdd(svcpath.New("daemon"), Forks, simpleMethods())

	core.UnitMsg(u, note.RestarterRequest(u.Path, note.RestarterStart, note.ReasonNone))
	if u.State != Start {
		t.Fatalf("Forks unit should remain in Start until notified ready, got %s", u.State)
	}

	core.UnitNotifyReady(u)
	if u.State != Online {
		t.Fatalf("expected notify-ready to advance through PostStart (no poststart method) to Online, got %s", u.State)
	}
}

func TestForkFailureEntersMaintenance(t *testing.T) {
	forker := &fakeForker{forkErr: assertErr}
	core, _, bus := newTestCore(forker)
	u := core.UnitAdd(svcpath.New("web"), Simple, simpleMethods())

	core.UnitMsg(u, note.RestarterRequest(u.Path, note.RestarterStart, note.ReasonNone))

	if u.State != Maintenance {
		t.Fatalf("fork failure should land the unit in Maintenance immediately, got %s", u.State)
	}
	notes := bus.Drain()
	if len(notes) != 1 || notes[0].StateSub != note.StateDisabled {
		t.Fatalf("expected StateChange(Disabled) note, got %+v", notes)
	}
}

func TestAbnormalMainExitInOnlineStopsUnconditionally(t *testing.T) {
	forker := &fakeForker{}
	core, _, bus := newTestCore(forker)
	u := core.UnitAdd(svcpath.New("web"), Simple, simpleMethods())
	core.UnitMsg(u, note.RestarterRequest(u.Path, note.RestarterStart, note.ReasonNone))
	bus.Drain()

	mainPID := u.MainPID
	core.UnitPTEvent(u, proctrack.NewExit(mainPID, proctrack.Abnormal, 11))

	if u.Target != Offline {
		t.Fatalf("abnormal exit from Online should set target Offline, got %s", u.Target)
	}
	if u.State != Stop && u.State != StopTerm && u.State != Offline {
		t.Fatalf("expected the unit to enter the stop sequence, got %s", u.State)
	}
}

func TestMethodFailureCounterGatesIntoMaintenance(t *testing.T) {
	forker := &fakeForker{}
	core, _, _ := newTestCore(forker)
	u := core.UnitAdd(svcpath.New("flaky"), Simple, simpleMethods())
	u.State = PreStart

	for i := 1; i <= core.cfg.MaxMethodFailures; i++ {
		core.handleAbnormalMethod(u, MethodPreStart)
		if u.State == Maintenance {
			t.Fatalf("should not reach Maintenance before exceeding MaxMethodFailures (failure %d of %d)", i, core.cfg.MaxMethodFailures)
		}
		if u.FailCount[MethodPreStart] != i {
			t.Fatalf("expected FailCount %d after %d failures, got %d", i, i, u.FailCount[MethodPreStart])
		}
	}

	// One more failure past the ceiling lands in Maintenance.
	core.handleAbnormalMethod(u, MethodPreStart)
	if u.State != Maintenance {
		t.Fatalf("expected Maintenance after exceeding MaxMethodFailures, got %s (failcount=%d)", u.State, u.FailCount[MethodPreStart])
	}
}

func TestStopSequenceEscalatesOnStopTermTimeout(t *testing.T) {
	forker := &fakeForker{}
	core, _, _ := newTestCore(forker)
	u := core.UnitAdd(svcpath.New("web"), Simple, simpleMethods())
	core.UnitMsg(u, note.RestarterRequest(u.Path, note.RestarterStart, note.ReasonNone))

	core.UnitMsg(u, note.RestarterRequest(u.Path, note.RestarterStop, note.ReasonNone))
	if u.State != StopTerm {
		t.Fatalf("unit with no stop method should go straight to StopTerm, got %s", u.State)
	}

	core.HandleTimerFiring(timerset.Firing{Payload: escalateTimerPayload{unit: u}})
	if u.State != StopKill {
		t.Fatalf("StopTerm escalate timeout should move to StopKill, got %s", u.State)
	}
}

func TestStopSequenceAdvancesToTargetWhenPIDsExhausted(t *testing.T) {
	forker := &fakeForker{}
	core, _, _ := newTestCore(forker)
	u := core.UnitAdd(svcpath.New("web"), Simple, simpleMethods())
	core.UnitMsg(u, note.RestarterRequest(u.Path, note.RestarterStart, note.ReasonNone))
	mainPID := u.MainPID

	core.UnitMsg(u, note.RestarterRequest(u.Path, note.RestarterStop, note.ReasonNone))
	if u.State != StopTerm {
		t.Fatalf("expected StopTerm, got %s", u.State)
	}

	core.UnitPTEvent(u, proctrack.NewExit(mainPID, proctrack.Normal, 0))
	if u.State != Offline {
		t.Fatalf("once the last tracked PID exits, the unit should land in its target state, got %s", u.State)
	}
}

func TestMethodTimeoutRetriesThenReentersState(t *testing.T) {
	forker := &fakeForker{}
	core, _, _ := newTestCore(forker)
	u := core.UnitAdd(svcpath.New("flaky"), Simple, simpleMethods())
	u.State = PreStart

	core.onMethodTimeout(u)
	if u.FailCount[MethodPreStart] != 1 {
		t.Fatalf("expected FailCount 1 after one method timeout, got %d", u.FailCount[MethodPreStart])
	}
	if u.RestartTimerID == 0 {
		t.Fatalf("expected a restart cooldown timer to be armed")
	}
	if u.State != PreStart {
		t.Fatalf("state should not change while the cooldown timer is pending, got %s", u.State)
	}

	core.HandleTimerFiring(timerset.Firing{Payload: retryTimerPayload{unit: u, state: PreStart}})
	if u.RestartTimerID == 0 {
		t.Fatalf("cooldown firing should arm the re-entry timer")
	}
	if u.State != PreStart {
		t.Fatalf("cooldown firing should not itself change state, got %s", u.State)
	}

	core.HandleTimerFiring(timerset.Firing{Payload: reentryTimerPayload{unit: u, state: PreStart}})
	if u.RestartTimerID != 0 {
		t.Fatalf("re-entry firing should clear RestartTimerID")
	}
	if u.State != Online {
		t.Fatalf("re-entering PreStart with no prestart method should fall through Start to Online for a Simple unit, got %s", u.State)
	}
}

func TestPostStopForksBeforeLandingInTarget(t *testing.T) {
	forker := &fakeForker{}
	core, _, _ := newTestCore(forker)
	methods := map[MethodKind]Method{
		MethodStart:    {Argv: []string{"/bin/true"}},
		MethodPostStop: {Argv: []string{"/bin/true", "cleanup"}},
	}
	u := core.UnitAdd(svcpath.New("web"), Simple, methods)
	core.UnitMsg(u, note.RestarterRequest(u.Path, note.RestarterStart, note.ReasonNone))
	mainPID := u.MainPID

	core.UnitMsg(u, note.RestarterRequest(u.Path, note.RestarterStop, note.ReasonNone))
	if u.State != StopTerm {
		t.Fatalf("expected StopTerm, got %s", u.State)
	}

	core.UnitPTEvent(u, proctrack.NewExit(mainPID, proctrack.Normal, 0))
	if u.State != PostStop {
		t.Fatalf("once the stop sequence's PIDs are exhausted, a unit with a poststop method should fork it, got %s", u.State)
	}
	postStopPID := u.SecondaryPID
	if postStopPID == 0 {
		t.Fatalf("expected poststop to be forked as the secondary PID")
	}

	core.UnitPTEvent(u, proctrack.NewExit(postStopPID, proctrack.Normal, 0))
	if u.State != Offline {
		t.Fatalf("poststop completing should land the unit in its target state, got %s", u.State)
	}
}

var assertErr = fakeForkError("fork failed")

type fakeForkError string

func (e fakeForkError) Error() string { return string(e) }
