package mesh

import (
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/swarmdb/node/pkg/errs"
	"github.com/swarmdb/node/pkg/wire"
)

type fakeLog struct {
	mu     sync.Mutex
	events []wire.Event
}

func (f *fakeLog) ReadRange(streamID string, from, to uint64) ([]wire.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wire.Event
	for _, e := range f.events {
		if e.StreamID == streamID && e.Offset >= from && e.Offset <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeAcceptor struct {
	mu       sync.Mutex
	accepted []wire.Event
	reject   map[uint64]bool
}

func (f *fakeAcceptor) AppendRemote(e wire.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject != nil && f.reject[e.Offset] {
		return errs.InvariantViolation(e.StreamID, e.Offset)
	}
	f.accepted = append(f.accepted, e)
	return nil
}

func newPullTestPair(t *testing.T) (*nats.Conn, *nats.Conn, SwarmConfig) {
	t.Helper()
	s := runTestNATSServer(t)
	key, err := GenerateSwarmKey()
	if err != nil {
		t.Fatalf("GenerateSwarmKey: %v", err)
	}
	cfg := SwarmConfig{Fingerprint: "swarm-pull", Key: key}

	server, err := Dial(s.ClientURL(), "server")
	if err != nil {
		t.Fatalf("Dial server: %v", err)
	}
	t.Cleanup(server.Close)
	client, err := Dial(s.ClientURL(), "client")
	if err != nil {
		t.Fatalf("Dial client: %v", err)
	}
	t.Cleanup(client.Close)
	return server, client, cfg
}

func TestPullUpTo_AppliesEventsInOrder(t *testing.T) {
	server, client, cfg := newPullTestPair(t)

	log := &fakeLog{events: []wire.Event{
		{StreamID: "node-b-0", Offset: 0, Lamport: 1},
		{StreamID: "node-b-0", Offset: 1, Lamport: 2},
		{StreamID: "node-b-0", Offset: 2, Lamport: 3},
	}}
	sub, err := ServePulls(server, cfg, "node-b-0", log)
	if err != nil {
		t.Fatalf("ServePulls: %v", err)
	}
	defer sub.Unsubscribe()

	acceptor := &fakeAcceptor{}
	breaker := NewCircuitBreaker("test-stream", 5, time.Second)
	session := NewPullSession(client, cfg, breaker)

	reached, err := session.PullUpTo(acceptor, "node-b-0", 0, 2)
	if err != nil {
		t.Fatalf("PullUpTo: %v", err)
	}
	if reached != 3 {
		t.Fatalf("reached = %d, want 3", reached)
	}
	if len(acceptor.accepted) != 3 {
		t.Fatalf("accepted %d events, want 3", len(acceptor.accepted))
	}
	for i, e := range acceptor.accepted {
		if e.Offset != uint64(i) {
			t.Fatalf("accepted[%d].Offset = %d, want %d", i, e.Offset, i)
		}
	}
}

func TestPullUpTo_ResumesFromPartialProgress(t *testing.T) {
	server, client, cfg := newPullTestPair(t)

	log := &fakeLog{events: []wire.Event{
		{StreamID: "node-b-0", Offset: 3, Lamport: 10},
		{StreamID: "node-b-0", Offset: 4, Lamport: 11},
	}}
	sub, err := ServePulls(server, cfg, "node-b-0", log)
	if err != nil {
		t.Fatalf("ServePulls: %v", err)
	}
	defer sub.Unsubscribe()

	acceptor := &fakeAcceptor{}
	breaker := NewCircuitBreaker("test-stream", 5, time.Second)
	session := NewPullSession(client, cfg, breaker)

	reached, err := session.PullUpTo(acceptor, "node-b-0", 3, 4)
	if err != nil {
		t.Fatalf("PullUpTo: %v", err)
	}
	if reached != 5 {
		t.Fatalf("reached = %d, want 5", reached)
	}
}

func TestPullUpTo_AbortsOnInvariantViolationFromAcceptor(t *testing.T) {
	server, client, cfg := newPullTestPair(t)

	log := &fakeLog{events: []wire.Event{
		{StreamID: "node-b-0", Offset: 0, Lamport: 1},
		{StreamID: "node-b-0", Offset: 1, Lamport: 2},
	}}
	sub, err := ServePulls(server, cfg, "node-b-0", log)
	if err != nil {
		t.Fatalf("ServePulls: %v", err)
	}
	defer sub.Unsubscribe()

	acceptor := &fakeAcceptor{reject: map[uint64]bool{1: true}}
	breaker := NewCircuitBreaker("test-stream", 5, time.Second)
	session := NewPullSession(client, cfg, breaker)

	reached, err := session.PullUpTo(acceptor, "node-b-0", 0, 1)
	if err == nil {
		t.Fatalf("expected an error from the rejecting acceptor")
	}
	if !errs.Is(err, errs.KindInvariantViolation) {
		t.Fatalf("expected InvariantViolation, got %v", err)
	}
	if reached != 1 {
		t.Fatalf("reached = %d, want 1 (stopped at the offset that failed)", reached)
	}
}

func TestPullUpTo_OpenCircuitRejectsImmediately(t *testing.T) {
	_, client, cfg := newPullTestPair(t)

	breaker := NewCircuitBreaker("test-stream", 1, time.Hour)
	breaker.Failure() // trips the breaker open
	session := NewPullSession(client, cfg, breaker)

	_, err := session.PullUpTo(&fakeAcceptor{}, "node-b-0", 0, 5)
	if err == nil || !errs.Is(err, errs.KindPeerUnreachable) {
		t.Fatalf("expected PeerUnreachable from an open circuit, got %v", err)
	}
}

func TestServePulls_UnknownStreamReturnsEmptyNotError(t *testing.T) {
	server, client, cfg := newPullTestPair(t)

	log := &fakeLog{}
	sub, err := ServePulls(server, cfg, "node-b-0", log)
	if err != nil {
		t.Fatalf("ServePulls: %v", err)
	}
	defer sub.Unsubscribe()

	acceptor := &fakeAcceptor{}
	breaker := NewCircuitBreaker("test-stream", 5, time.Second)
	session := NewPullSession(client, cfg, breaker)

	reached, err := session.PullUpTo(acceptor, "node-b-0", 0, 3)
	if err != nil {
		t.Fatalf("PullUpTo: %v", err)
	}
	if reached != 0 {
		t.Fatalf("reached = %d, want 0 (no events yet available)", reached)
	}
}
