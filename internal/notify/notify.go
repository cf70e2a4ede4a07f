// Package notify implements the readiness/status datagram receiver of
// spec §6: a datagram socket at a well-known filesystem path, to which
// every forked child has NOTIFY_SOCKET pointed via its environment.
// Messages are newline-separated KEY=VALUE lines.
package notify

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/harrowgate/svcmgr/internal/svclog"
)

// Datagram is one parsed readiness/status message, annotated with the
// sending PID recovered from the socket's peer credentials.
type Datagram struct {
	PID     int
	Ready   bool
	Status  string
	MainPID int
}

// Receiver listens on a unix datagram socket and parses incoming
// messages into Datagram values delivered on the event loop goroutine.
type Receiver struct {
	conn *net.UnixConn
	out  chan Datagram
	log  svclog.Logger
}

// Listen creates (or replaces) the datagram socket at path.
func Listen(path string) (*Receiver, error) {
	_ = os.Remove(path)
	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, err
	}
	return &Receiver{
		conn: conn,
		out:  make(chan Datagram, 64),
		log:  svclog.New("notify"),
	}, nil
}

// Datagrams returns the channel of parsed messages.
func (r *Receiver) Datagrams() <-chan Datagram { return r.out }

// Close shuts down the listening socket.
func (r *Receiver) Close() error { return r.conn.Close() }

// Run reads datagrams until the socket is closed. The sending PID is
// resolved via SO_PEERCRED where available (Linux); elsewhere the
// sender is expected to additionally announce itself with a "PID=<n>"
// line, which parse also understands.
func (r *Receiver) Run() {
	buf := make([]byte, 4096)
	for {
		n, err := r.conn.Read(buf)
		if err != nil {
			return
		}
		dg := parse(buf[:n])
		if pid := r.peerPID(); pid != 0 {
			dg.PID = pid
		}
		if dg.PID != 0 {
			r.out <- dg
		} else {
			r.log.Warnf("datagram without resolvable sender PID, discarding")
		}
	}
}

func parse(raw []byte) Datagram {
	var dg Datagram
	sc := bufio.NewScanner(strings.NewReader(string(raw)))
	for sc.Scan() {
		line := sc.Text()
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "READY":
			dg.Ready = val == "1"
		case "STATUS":
			dg.Status = val
		case "MAINPID":
			if n, err := strconv.Atoi(val); err == nil {
				dg.MainPID = n
			}
		case "PID":
			if n, err := strconv.Atoi(val); err == nil {
				dg.PID = n
			}
		}
	}
	return dg
}
