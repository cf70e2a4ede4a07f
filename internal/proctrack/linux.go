//go:build linux

package proctrack

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// LinuxTracker reaps every child of this process via SIGCHLD + Wait4(-1,
// WNOHANG), the technique used throughout the pack's process-supervisor
// examples: set ourselves as a child subreaper so unit processes that
// double-fork and orphan still land on us instead of PID 1, then drain
// zombies on every SIGCHLD until ECHILD. Watch/Disregard filter which
// PIDs are surfaced as Events; unwatched children are reaped silently
// (their exit status is discarded) so the kernel's process table never
// fills with zombies regardless of whether the restarter core is
// tracking that particular PID.
type LinuxTracker struct {
	mu      sync.Mutex
	watched map[int]struct{}
	known   map[int]int // child pid -> parent pid, for watched parents

	events chan Event
}

// NewLinuxTracker constructs a tracker and attempts to become a child
// subreaper. Failure to do so (kernel predates Linux 3.4) is not fatal:
// reaping of directly-forked children still works, only grandchildren of
// a unit that double-forks and exits will escape to PID 1.
func NewLinuxTracker() *LinuxTracker {
	_ = unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
	return &LinuxTracker{
		watched: make(map[int]struct{}),
		known:   make(map[int]int),
		events:  make(chan Event, 64),
	}
}

func (t *LinuxTracker) Watch(pid int) {
	t.mu.Lock()
	t.watched[pid] = struct{}{}
	t.mu.Unlock()
}

func (t *LinuxTracker) Disregard(pid int) {
	t.mu.Lock()
	delete(t.watched, pid)
	t.mu.Unlock()
}

func (t *LinuxTracker) Events() <-chan Event { return t.events }

// Run installs the SIGCHLD handler and reaps until ctx is cancelled.
// Child events for grandchildren cannot be synthesized from Wait4 alone
// (the kernel does not report who forked whom past the immediate
// parent); this backend therefore only emits Exit events, which is
// sufficient because the restarter core only ever Watches PIDs it
// itself forked and whose direct children it is not expected to track.
func (t *LinuxTracker) Run(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGCHLD)
	defer signal.Stop(sigCh)

	t.reapAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			t.reapAll()
		}
	}
}

func (t *LinuxTracker) reapAll() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err == unix.ECHILD {
			return
		}
		if err != nil {
			return
		}
		if pid <= 0 {
			return
		}

		t.mu.Lock()
		_, watched := t.watched[pid]
		if watched {
			delete(t.watched, pid)
		}
		t.mu.Unlock()
		if !watched {
			continue
		}

		flags := Normal
		code := status.ExitStatus()
		if status.Signaled() {
			flags = Abnormal
			code = int(status.Signal())
		}
		t.events <- NewExit(pid, flags, code)
	}
}
