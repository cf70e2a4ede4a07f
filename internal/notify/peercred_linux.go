//go:build linux

package notify

import (
	"golang.org/x/sys/unix"
)

// peerPID resolves the sending process's PID via SO_PEERCRED. Unix
// datagram sockets only carry peer credentials when the kernel recorded
// them at connect/send time; a best-effort PID=<n> line remains the
// portable fallback handled in parse.
func (r *Receiver) peerPID() int {
	raw, err := r.conn.SyscallConn()
	if err != nil {
		return 0
	}
	var pid int
	_ = raw.Control(func(fd uintptr) {
		cred, err := unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
		if err != nil {
			return
		}
		pid = int(cred.Pid)
	})
	return pid
}
