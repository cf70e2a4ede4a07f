package restarter

import (
	"fmt"
	"os"
	"os/exec"
)

// Forker is the fork-and-wait handshake primitive of spec §4.3 and §9:
// the child is blocked immediately after creation until the parent has
// recorded its PID with the tracker and added it to the unit's PID set,
// at which point the parent calls Release to let it proceed. This closes
// the race where a short-lived child exits before the tracker is
// watching it.
//
// Fork returns as soon as the child process exists (but before it runs
// the requested argv); Release must be called exactly once to let it
// continue, and Kill may be used to abandon it without ever releasing.
type Forker interface {
	Fork(argv []string, env []string) (pid int, release func() error, kill func() error, err error)
}

// ShellForker implements Forker with a tiny /bin/sh handshake: the
// child process is started running a shell that blocks on a read from
// an inherited pipe before exec-ing the real argv. This achieves the
// "blocked after fork, released by the parent" discipline using only
// the process-creation primitives os/exec exposes safely, without
// resorting to a raw fork() call in a multi-threaded Go runtime.
type ShellForker struct{}

func NewShellForker() *ShellForker { return &ShellForker{} }

func (f *ShellForker) Fork(argv []string, env []string) (pid int, release func() error, kill func() error, err error) {
	if len(argv) == 0 {
		return 0, nil, nil, fmt.Errorf("restarter: empty argv")
	}

	r, w, err := os.Pipe()
	if err != nil {
		return 0, nil, nil, fmt.Errorf("restarter: sync pipe: %w", err)
	}

	shArgs := append([]string{"-c", `read -r _ <&3; exec "$@"`, "sh"}, argv...)
	cmd := exec.Command("/bin/sh", shArgs...)
	cmd.Env = env
	cmd.ExtraFiles = []*os.File{r}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return 0, nil, nil, fmt.Errorf("restarter: fork %v: %w", argv, err)
	}
	r.Close()

	released := false
	release = func() error {
		if released {
			return nil
		}
		released = true
		_, err := w.Write([]byte("go\n"))
		w.Close()
		return err
	}
	kill = func() error {
		if !released {
			w.Close()
		}
		return cmd.Process.Kill()
	}

	return cmd.Process.Pid, release, kill, nil
}
