package mesh

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/swarmdb/node/pkg/wire"
)

// DefaultGossipInterval matches spec.md §6's default gossip_interval.
const DefaultGossipInterval = time.Second

// Gossiper periodically announces this node's present offset map to
// the swarm and relays peers' announcements to onRemotePresent.
type Gossiper struct {
	nc       *nats.Conn
	cfg      SwarmConfig
	present  func() wire.OffsetMap
	onRemote func(present wire.OffsetMap)
	interval time.Duration
}

// NewGossiper creates a gossiper for cfg's swarm. present supplies this
// node's current offset map snapshot on demand; onRemote is invoked,
// from the NATS dispatch goroutine, whenever a peer's gossip is received
// and successfully opened and decoded.
func NewGossiper(nc *nats.Conn, cfg SwarmConfig, present func() wire.OffsetMap, onRemote func(wire.OffsetMap)) *Gossiper {
	return &Gossiper{nc: nc, cfg: cfg, present: present, onRemote: onRemote, interval: DefaultGossipInterval}
}

// Run subscribes to the swarm's gossip subject and publishes this
// node's own present map every jittered interval, until ctx is done.
func (g *Gossiper) Run(ctx context.Context) error {
	sub, err := g.nc.Subscribe(g.cfg.subjectGossip(), func(msg *nats.Msg) {
		g.handleIncoming(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("mesh: subscribing to gossip subject: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		if err := g.publishOnce(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(jitter(g.interval)):
		}
	}
}

func (g *Gossiper) handleIncoming(sealed []byte) {
	plain, err := Open(g.cfg.Key, sealed)
	if err != nil {
		return // wrong/missing swarm key or corrupt frame; silently dropped
	}
	msg, err := wire.DecodeGossipMessage(plain)
	if err != nil {
		return
	}
	g.onRemote(wire.OffsetMap(msg.Present))
}

func (g *Gossiper) publishOnce() error {
	msg := wire.GossipMessage{Present: map[string]uint64(g.present())}
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("mesh: encoding gossip message: %w", err)
	}
	sealed, err := Seal(g.cfg.Key, body)
	if err != nil {
		return fmt.Errorf("mesh: sealing gossip message: %w", err)
	}
	return g.nc.Publish(g.cfg.subjectGossip(), sealed)
}

// jitter returns d randomly adjusted by +/-20%, per spec.md §6.
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
