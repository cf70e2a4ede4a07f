// Package rpcenvelope defines the wire shape that carries a note.Note
// across process boundaries: the admin CLI and any external caller speak
// this JSON envelope over the RPC inbox, and the obsfeed hub re-emits the
// same shape for every note it forwards to subscribers. See spec §6.
package rpcenvelope

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/svcpath"
)

// kindWire/subWire are the lowercase, underscore-separated wire spellings of note.Kind and
// its per-kind Sub* enums, kept distinct from their String() methods so the
// wire format doesn't drift if those change for log readability.
var kindWire = map[note.Kind]string{
	note.KindStateChange:      "state_change",
	note.KindAdminReq:         "admin_req",
	note.KindRestarterRequest: "restarter_req",
}

var kindFromWire = reverseStrMap(kindWire)

var stateSubWire = map[note.StateChangeSub]string{
	note.StateOnline:   "online",
	note.StateOffline:  "offline",
	note.StateDisabled: "disabled",
}
var stateSubFromWire = reverseStrMap(stateSubWire)

var adminSubWire = map[note.AdminReqSub]string{
	note.AdminEnable:  "enable",
	note.AdminDisable: "disable",
	note.AdminRestart: "restart",
}
var adminSubFromWire = reverseStrMap(adminSubWire)

var restartSubWire = map[note.RestarterReqSub]string{
	note.RestarterStart: "start",
	note.RestarterStop:  "stop",
}
var restartSubFromWire = reverseStrMap(restartSubWire)

func reverseStrMap[K comparable](m map[K]string) map[string]K {
	out := make(map[string]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// wirePath is svcpath.Path's wire shape: inst is null for a bare service.
type wirePath struct {
	Svc  string  `json:"svc"`
	Inst *string `json:"inst"`
}

// Envelope is the bit-exact JSON shape of a Note crossing a process
// boundary. Correlation IDs are carried out-of-band by the transport
// (rpc request/response pairing, obsfeed subscriber framing) rather than
// embedded here, keeping the envelope identical for every transport.
type Envelope struct {
	Kind   string   `json:"kind"`
	Sub    string   `json:"sub"`
	Path   wirePath `json:"path"`
	Reason int      `json:"reason"`
}

// Encode renders n as its wire Envelope.
func Encode(n note.Note) (Envelope, error) {
	kind, ok := kindWire[n.Kind]
	if !ok {
		return Envelope{}, fmt.Errorf("rpcenvelope: unknown note kind %d", n.Kind)
	}
	var sub string
	switch n.Kind {
	case note.KindStateChange:
		sub, ok = stateSubWire[n.StateSub]
	case note.KindAdminReq:
		sub, ok = adminSubWire[n.AdminSub]
	case note.KindRestarterRequest:
		sub, ok = restartSubWire[n.RestartSub]
	}
	if !ok {
		return Envelope{}, fmt.Errorf("rpcenvelope: unknown sub for kind %s", kind)
	}
	wp := wirePath{Svc: n.Path.Service}
	if n.Path.IsInstance() {
		inst := n.Path.Instance
		wp.Inst = &inst
	}
	return Envelope{Kind: kind, Sub: sub, Path: wp, Reason: int(n.Reason)}, nil
}

// Decode parses an Envelope back into a note.Note.
func Decode(e Envelope) (note.Note, error) {
	kind, ok := kindFromWire[e.Kind]
	if !ok {
		return note.Note{}, fmt.Errorf("rpcenvelope: unknown kind %q", e.Kind)
	}
	path := svcpath.New(e.Path.Svc)
	if e.Path.Inst != nil {
		path = svcpath.NewInstance(e.Path.Svc, *e.Path.Inst)
	}
	reason := note.Reason(e.Reason)
	switch kind {
	case note.KindStateChange:
		sub, ok := stateSubFromWire[e.Sub]
		if !ok {
			return note.Note{}, fmt.Errorf("rpcenvelope: unknown state_change sub %q", e.Sub)
		}
		return note.StateChange(path, sub, reason), nil
	case note.KindAdminReq:
		sub, ok := adminSubFromWire[e.Sub]
		if !ok {
			return note.Note{}, fmt.Errorf("rpcenvelope: unknown admin_req sub %q", e.Sub)
		}
		return note.AdminReq(path, sub, reason), nil
	case note.KindRestarterRequest:
		sub, ok := restartSubFromWire[e.Sub]
		if !ok {
			return note.Note{}, fmt.Errorf("rpcenvelope: unknown restarter_req sub %q", e.Sub)
		}
		return note.RestarterRequest(path, sub, reason), nil
	default:
		return note.Note{}, fmt.Errorf("rpcenvelope: unhandled kind %q", e.Kind)
	}
}

// Marshal is a convenience wrapper producing the raw JSON bytes for n.
func Marshal(n note.Note) ([]byte, error) {
	env, err := Encode(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Unmarshal is a convenience wrapper parsing raw JSON bytes into a Note.
func Unmarshal(raw []byte) (note.Note, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return note.Note{}, fmt.Errorf("rpcenvelope: decode: %w", err)
	}
	return Decode(env)
}

// Request wraps an Envelope with the correlation ID the admin CLI waits on
// for its matching Response, mirroring the overseer client's id-tagged
// request/response pairing.
type Request struct {
	ID       uuid.UUID `json:"id"`
	Envelope Envelope  `json:"envelope"`
	Token    string    `json:"token,omitempty"`
}

// NewRequest builds a Request with a fresh correlation ID.
func NewRequest(n note.Note, token string) (Request, error) {
	env, err := Encode(n)
	if err != nil {
		return Request{}, err
	}
	return Request{ID: uuid.New(), Envelope: env, Token: token}, nil
}

// Response carries the outcome of a Request back to its caller.
type Response struct {
	ID    uuid.UUID `json:"id"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}
