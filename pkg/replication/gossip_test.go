package mesh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/swarmdb/node/pkg/wire"
)

func TestGossiper_PublishesAndReceivesPresentMaps(t *testing.T) {
	s := runTestNATSServer(t)
	key, err := GenerateSwarmKey()
	if err != nil {
		t.Fatalf("GenerateSwarmKey: %v", err)
	}
	cfg := SwarmConfig{Fingerprint: "swarm-1", Key: key}

	ncA, err := Dial(s.ClientURL(), "a")
	if err != nil {
		t.Fatalf("Dial a: %v", err)
	}
	defer ncA.Close()
	ncB, err := Dial(s.ClientURL(), "b")
	if err != nil {
		t.Fatalf("Dial b: %v", err)
	}
	defer ncB.Close()

	var mu sync.Mutex
	var received wire.OffsetMap
	gotSignal := make(chan struct{}, 1)

	gossiperA := NewGossiper(ncA, cfg, func() wire.OffsetMap {
		return wire.OffsetMap{"node-a-0": 7}
	}, func(wire.OffsetMap) {})
	gossiperA.interval = 20 * time.Millisecond

	gossiperB := NewGossiper(ncB, cfg, func() wire.OffsetMap {
		return wire.OffsetMap{}
	}, func(present wire.OffsetMap) {
		mu.Lock()
		received = present
		mu.Unlock()
		select {
		case gotSignal <- struct{}{}:
		default:
		}
	})
	gossiperB.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gossiperA.Run(ctx)
	go gossiperB.Run(ctx)

	select {
	case <-gotSignal:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for gossip to be received")
	}

	mu.Lock()
	defer mu.Unlock()
	if received["node-a-0"] != 7 {
		t.Fatalf("received present map = %+v, want node-a-0:7", received)
	}
}

func TestGossiper_WrongSwarmKeyIsSilentlyDropped(t *testing.T) {
	s := runTestNATSServer(t)
	keyA, err := GenerateSwarmKey()
	if err != nil {
		t.Fatalf("GenerateSwarmKey: %v", err)
	}
	keyB, err := GenerateSwarmKey()
	if err != nil {
		t.Fatalf("GenerateSwarmKey: %v", err)
	}

	ncA, err := Dial(s.ClientURL(), "a")
	if err != nil {
		t.Fatalf("Dial a: %v", err)
	}
	defer ncA.Close()
	ncB, err := Dial(s.ClientURL(), "b")
	if err != nil {
		t.Fatalf("Dial b: %v", err)
	}
	defer ncB.Close()

	var calls int
	var mu sync.Mutex

	gossiperA := NewGossiper(ncA, SwarmConfig{Fingerprint: "swarm-2", Key: keyA}, func() wire.OffsetMap {
		return wire.OffsetMap{"node-a-0": 1}
	}, func(wire.OffsetMap) {})
	gossiperA.interval = 20 * time.Millisecond

	gossiperB := NewGossiper(ncB, SwarmConfig{Fingerprint: "swarm-2", Key: keyB}, func() wire.OffsetMap {
		return wire.OffsetMap{}
	}, func(wire.OffsetMap) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	gossiperB.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gossiperA.Run(ctx)
	go gossiperB.Run(ctx)

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected gossip sealed under a different key to never be decoded, got %d calls", calls)
	}
}

func TestJitter_StaysWithinTwentyPercent(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := jitter(base)
		if d < 79*time.Millisecond || d > 121*time.Millisecond {
			t.Fatalf("jitter(%v) = %v, out of +/-20%% bounds", base, d)
		}
	}
}
