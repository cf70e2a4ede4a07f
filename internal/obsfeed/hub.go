// Package obsfeed serves the Note Bus as a read-only WebSocket feed, the
// server side of the same gorilla/websocket wire style the admin client
// dials with. Every note the event loop drains is re-broadcast here as an
// rpcenvelope.Envelope so an external observer can watch state changes
// without polling.
package obsfeed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/rpcenvelope"
	"github.com/harrowgate/svcmgr/internal/svclog"
)

// upgrader permits any origin: this feed is read-only and meant to sit
// behind the same local/trusted boundary as the RPC inbox.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscriber is one connected WebSocket client and its serialised writer.
type subscriber struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	out     chan []byte
}

func (s *subscriber) send(raw []byte) {
	select {
	case s.out <- raw:
	default:
		// Slow subscriber: drop rather than block the broadcaster.
	}
}

func (s *subscriber) pump() {
	for raw := range s.out {
		s.writeMu.Lock()
		err := s.conn.WriteMessage(websocket.TextMessage, raw)
		s.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// Hub fans every Note posted to it out to all connected WebSocket clients.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
	log  svclog.Logger
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{}), log: svclog.New("obsfeed")}
}

// Broadcast encodes n and fans it out to every connected subscriber. The
// event loop calls this once per note drained from the bus; a note that
// fails to encode (no known wire kind) is logged and dropped rather than
// breaking the drain loop.
func (h *Hub) Broadcast(n note.Note) {
	env, err := rpcenvelope.Encode(n)
	if err != nil {
		h.log.Warnf("obsfeed: dropping unencodable note: %v", err)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		h.log.Warnf("obsfeed: marshal: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.send(raw)
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection as a subscriber until it disconnects. Subscribers are
// write-only from the feed's perspective; any inbound frame is read and
// discarded, matching the ping/pong keepalive gorilla/websocket expects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("obsfeed: upgrade failed: %v", err)
		return
	}
	sub := &subscriber{conn: conn, out: make(chan []byte, 32)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go sub.pump()
	defer func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		close(sub.out)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Count reports the number of currently connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
