package rpcfabric

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/moonramp/moonramp/internal/merr"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	r := NewRegistry()
	svc := r.Register("wallet", func(tun Tunnel) (json.RawMessage, error) {
		return json.RawMessage(`{"echo":true}`), nil
	})
	defer svc.Stop()

	result, err := r.Dispatch("wallet", json.RawMessage(`{"ping":1}`), time.Second)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if string(result) != `{"echo":true}` {
		t.Fatalf("got %s, want echo body", result)
	}
}

func TestDispatchUnknownServiceIsNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch("ghost", json.RawMessage(`{}`), time.Second)
	if merr.KindOf(err) != merr.NotFound {
		t.Fatalf("got %v, want NotFound", err)
	}
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	r := NewRegistry()
	svc := r.Register("sale", func(tun Tunnel) (json.RawMessage, error) {
		return nil, merr.New(merr.Invalid, "bad request")
	})
	defer svc.Stop()

	_, err := r.Dispatch("sale", json.RawMessage(`{}`), time.Second)
	if merr.KindOf(err) != merr.Invalid {
		t.Fatalf("got %v, want Invalid", err)
	}
}

func TestDispatchTimesOutWhenHandlerNeverReplies(t *testing.T) {
	r := NewRegistry()
	blocked := make(chan struct{})
	svc := r.Register("program", func(tun Tunnel) (json.RawMessage, error) {
		<-blocked
		return json.RawMessage(`{}`), nil
	})
	defer func() {
		close(blocked)
		svc.Stop()
	}()

	_, err := r.Dispatch("program", json.RawMessage(`{}`), 20*time.Millisecond)
	if merr.KindOf(err) != merr.Timeout {
		t.Fatalf("got %v, want Timeout", err)
	}
}

func TestSendDropsNonPublicTopic(t *testing.T) {
	r := NewRegistry()
	err := r.send(Envelope{Topic: DropTopic(), Bytes: []byte(`{}`)})
	if merr.KindOf(err) != merr.Invalid {
		t.Fatalf("got %v, want Invalid", err)
	}
}

func TestHousekeepingSweepEvictsStalePendingCalls(t *testing.T) {
	r := NewRegistry()
	stale := uuid.New()
	fresh := uuid.New()
	r.pendingMu.Lock()
	r.pending[stale] = pendingCall{reply: make(chan Reply, 1), registeredAt: time.Now().Add(-livelinessTTL - time.Second)}
	r.pending[fresh] = pendingCall{reply: make(chan Reply, 1), registeredAt: time.Now()}
	r.pendingMu.Unlock()

	hk := NewHousekeeping(r, nil)
	hk.sweep()

	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if _, ok := r.pending[stale]; ok {
		t.Fatal("expected stale pending call to be evicted")
	}
	if _, ok := r.pending[fresh]; !ok {
		t.Fatal("expected fresh pending call to survive the sweep")
	}
}

func TestStatsTickRPSAccumulates(t *testing.T) {
	s := newStats()
	s.recordRequest()
	s.recordRequest()
	s.recordDrop()
	s.tickRPS()
	snap := s.snapshot(0)
	if snap.RollingRPS <= 0 {
		t.Fatalf("got rolling RPS %v, want > 0", snap.RollingRPS)
	}
	if snap.TotalSent != 2 || snap.TotalDropped != 1 {
		t.Fatalf("got sent=%d dropped=%d, want 2/1", snap.TotalSent, snap.TotalDropped)
	}
}
