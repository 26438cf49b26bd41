// Package rpcfabric implements the in-process message dispatch fabric
// (spec §4.5, C10/C11): topic-addressed envelopes routed by a registry to
// the service that owns them, plus the periodic housekeeping ticks that
// keep the fabric's bookkeeping bounded.
package rpcfabric

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moonramp/moonramp/internal/merr"
)

// Topic addresses an envelope at a registered service, a private reply
// destination, or instructs the registry to drop it outright.
type Topic struct {
	kind string
	name string
}

func Public(name string) Topic  { return Topic{kind: "public", name: name} }
func Private(name string) Topic { return Topic{kind: "private", name: name} }
func DropTopic() Topic          { return Topic{kind: "drop"} }

func (t Topic) isPublic() bool { return t.kind == "public" }

// Envelope is what crosses the registry's inbound channel: a topic plus
// the JSON-encoded wireTunnel it addresses (spec §4.5).
type Envelope struct {
	Topic Topic
	Bytes []byte
}

// wireTunnel is an Envelope's payload once deserialized — the reply
// channel itself never crosses the wire, it's looked up out-of-band by
// UUID in the registry's pending-call table.
type wireTunnel struct {
	UUID   uuid.UUID       `json:"uuid"`
	Target string          `json:"target,omitempty"`
	JSON   json.RawMessage `json:"json"`
}

// Tunnel is the form a Handler actually receives: a deserialized
// wireTunnel reunited with its reply destination.
type Tunnel struct {
	UUID   uuid.UUID
	Target string
	JSON   json.RawMessage
}

// Reply is what a service's method handler produces for a dispatched
// Tunnel.
type Reply struct {
	JSON json.RawMessage
	Err  *merr.Error
}

// Handler processes one dispatched Tunnel's JSON-RPC payload and returns
// the result (or error) to send back through its reply channel.
type Handler func(t Tunnel) (json.RawMessage, error)

type pendingCall struct {
	reply        chan Reply
	registeredAt time.Time
}

// Registry is the in-process service directory (C11): a mapping of
// well-known service name to inbound sender, mutated only during boot and
// read-only afterward (spec §5 "Registry map").
type Registry struct {
	mu       sync.RWMutex
	inboxes  map[string]chan Envelope
	handlers map[string]Handler

	pendingMu sync.Mutex
	pending   map[uuid.UUID]pendingCall

	stats *Stats
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inboxes:  make(map[string]chan Envelope),
		handlers: make(map[string]Handler),
		pending:  make(map[uuid.UUID]pendingCall),
		stats:    newStats(),
	}
}

// Register binds name to handler and starts its listen loop, returning a
// Service the caller can later Stop. Registration only happens during
// boot; there is no unregister path in steady state (spec §5).
func (r *Registry) Register(name string, handler Handler) *Service {
	r.mu.Lock()
	inbox := make(chan Envelope, 64)
	r.inboxes[name] = inbox
	r.handlers[name] = handler
	r.mu.Unlock()

	svc := &Service{
		name:     name,
		inbox:    inbox,
		done:     make(chan struct{}),
		registry: r,
	}
	go svc.listen(handler)
	return svc
}

// send routes an envelope to its addressed service's inbox, dropping
// envelopes whose topic is not Public(known) (spec §4.5).
func (r *Registry) send(env Envelope) error {
	r.stats.recordRequest()
	if !env.Topic.isPublic() {
		r.stats.recordDrop()
		return merr.New(merr.Invalid, "envelope addressed to a non-public topic")
	}
	r.mu.RLock()
	inbox, ok := r.inboxes[env.Topic.name]
	r.mu.RUnlock()
	if !ok {
		r.stats.recordDrop()
		return merr.New(merr.NotFound, "no service registered under this topic")
	}
	select {
	case inbox <- env:
		return nil
	default:
		r.stats.recordDrop()
		return merr.New(merr.Timeout, "service inbox is full")
	}
}

// Dispatch is the synchronous path the HTTP edge uses (spec §4.8 step 3):
// it wraps payload in a Tunnel addressed to name, sends it through the
// registry, and waits for the reply or the timeout, whichever comes
// first. On timeout the pending-call entry is left for housekeeping's
// sweep to evict (spec §4.5/§5 cancellation semantics).
func (r *Registry) Dispatch(name string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	r.mu.RLock()
	_, known := r.inboxes[name]
	r.mu.RUnlock()
	if !known {
		return nil, merr.New(merr.NotFound, "no service registered under this topic")
	}

	id := uuid.New()
	reply := make(chan Reply, 1)
	r.pendingMu.Lock()
	r.pending[id] = pendingCall{reply: reply, registeredAt: time.Now()}
	r.pendingMu.Unlock()

	wire := wireTunnel{UUID: id, Target: name, JSON: payload}
	body, err := json.Marshal(wire)
	if err != nil {
		r.evictPending(id)
		return nil, merr.Wrap(merr.Invalid, "marshal envelope payload", err)
	}

	if err := r.send(Envelope{Topic: Public(name), Bytes: body}); err != nil {
		r.evictPending(id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case rep := <-reply:
		r.evictPending(id)
		if rep.Err != nil {
			return nil, rep.Err
		}
		return rep.JSON, nil
	case <-timer.C:
		return nil, merr.New(merr.Timeout, "reply channel exceeded its deadline")
	}
}

func (r *Registry) evictPending(id uuid.UUID) {
	r.pendingMu.Lock()
	delete(r.pending, id)
	r.pendingMu.Unlock()
}

func (r *Registry) deliverReply(id uuid.UUID, rep Reply) {
	r.pendingMu.Lock()
	call, ok := r.pending[id]
	r.pendingMu.Unlock()
	if !ok {
		// Reply channel already evicted — the caller timed out or the
		// fabric's sweep reclaimed it first.
		return
	}
	select {
	case call.reply <- rep:
	default:
	}
}
