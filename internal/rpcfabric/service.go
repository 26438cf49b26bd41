package rpcfabric

import (
	"encoding/json"

	"github.com/moonramp/moonramp/internal/merr"
)

// Service is a registered service's listen loop: it consumes its inbox,
// deserializes each envelope into a Tunnel, dispatches to its handler, and
// delivers the result through the registry's pending-call table.
type Service struct {
	name     string
	inbox    chan Envelope
	done     chan struct{}
	registry *Registry
}

func (s *Service) listen(handler Handler) {
	for {
		select {
		case env := <-s.inbox:
			s.handle(env, handler)
		case <-s.done:
			return
		}
	}
}

func (s *Service) handle(env Envelope, handler Handler) {
	var wire wireTunnel
	if err := json.Unmarshal(env.Bytes, &wire); err != nil {
		return
	}
	tunnel := Tunnel{UUID: wire.UUID, Target: wire.Target, JSON: wire.JSON}

	result, err := handler(tunnel)
	if err != nil {
		var me *merr.Error
		if !merr.As(err, &me) {
			me = merr.Wrap(merr.StoreFailure, "unhandled service error", err)
		}
		s.registry.deliverReply(wire.UUID, Reply{Err: me})
		return
	}
	s.registry.deliverReply(wire.UUID, Reply{JSON: result})
}

// Stop ends the service's listen loop. Used on graceful shutdown only —
// the registry map itself is never mutated again afterward.
func (s *Service) Stop() {
	close(s.done)
}
