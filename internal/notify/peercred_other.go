//go:build !linux

package notify

// peerPID has no portable datagram-socket peer-credential mechanism
// outside Linux's SO_PEERCRED; callers fall back to the sender
// announcing its own PID in the datagram body.
func (r *Receiver) peerPID() int { return 0 }
