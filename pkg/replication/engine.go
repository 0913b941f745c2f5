package mesh

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/swarmdb/node/pkg/streamreg"
	"github.com/swarmdb/node/pkg/taskpool"
	"github.com/swarmdb/node/pkg/wire"
)

// BreakerThreshold and BreakerResetTimeout configure every per-stream
// CircuitBreaker the engine creates, per spec.md §4.E.5's
// PeerUnreachable retry-with-backoff without surfacing to publishers.
const (
	BreakerThreshold    = 5
	BreakerResetTimeout = 10 * time.Second
)

// Engine is the top-level Replication Engine: it gossips this node's
// present offset map, reacts to peers' gossip by pulling forward any
// stream whose remote tail has advanced past what is locally durable,
// and serves pull requests for this node's own stream.
type Engine struct {
	nc  *nats.Conn
	cfg SwarmConfig
	reg *streamreg.Registry
	log Acceptor

	readLog LocalLog

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	pulling  map[string]bool

	pool taskpool.Executor

	gossiper *Gossiper
	pullSub  *nats.Subscription
}

// SetPool bounds how many pull sessions can run at once: pull tasks are
// submitted to pool instead of launched as a raw goroutine per stream.
// Without one (the zero value), a gossip round that discovers many
// lagging streams at once still launches one goroutine per stream —
// fine for a handful of peers, unbounded for a swarm with thousands of
// streams. Call before Start.
func (e *Engine) SetPool(pool taskpool.Executor) {
	e.pool = pool
}

// Log is the subset of the Event Log the engine needs: it both accepts
// pulled-in remote events and serves this node's own history to peers.
type Log interface {
	Acceptor
	LocalLog
}

// New builds a replication engine bound to reg (the Stream Registry)
// and log (the local Event Log), not yet running.
func New(nc *nats.Conn, cfg SwarmConfig, reg *streamreg.Registry, log Log) *Engine {
	e := &Engine{
		nc:       nc,
		cfg:      cfg,
		reg:      reg,
		log:      log,
		readLog:  log,
		breakers: make(map[string]*CircuitBreaker),
		pulling:  make(map[string]bool),
	}
	e.gossiper = NewGossiper(nc, cfg, e.presentSnapshot, e.handleRemotePresent)
	return e
}

func (e *Engine) presentSnapshot() wire.OffsetMap {
	return wire.OffsetMap(e.reg.PresentSnapshot())
}

// Start begins serving pull requests for this node's own stream and
// runs the gossip loop until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	sub, err := ServePulls(e.nc, e.cfg, e.reg.LocalStreamID(), e.readLog)
	if err != nil {
		return err
	}
	e.pullSub = sub
	return e.gossiper.Run(ctx)
}

// Close stops serving pull requests for this node's own stream.
// The gossip loop stops on its own once Start's ctx is done.
func (e *Engine) Close() error {
	if e.pullSub != nil {
		return e.pullSub.Unsubscribe()
	}
	return nil
}

// handleRemotePresent reacts to a peer's gossiped present map: every
// stream the peer claims is ahead of what this node holds locally is
// discovered (if new) and pulled forward, one pull goroutine per
// stream at a time.
func (e *Engine) handleRemotePresent(remote wire.OffsetMap) {
	for streamID, remoteOffset := range remote {
		if streamID == e.reg.LocalStreamID() {
			continue
		}
		e.reg.Discover(streamID)

		localOffset, known := e.reg.PresentOffset(streamID)
		var from uint64
		if known {
			if remoteOffset <= localOffset {
				continue
			}
			from = localOffset + 1
		}

		if !e.tryClaimPull(streamID) {
			continue
		}
		e.launchPull(streamID, from, remoteOffset)
	}
}

// launchPull runs one pullStream round, through e.pool when configured
// so the engine's total in-flight pulls stay within the pool's worker
// count instead of growing one goroutine per lagging stream.
func (e *Engine) launchPull(streamID string, from, remoteOffset uint64) {
	task := taskpool.NewNamedTask("replication_pull:"+streamID, func(context.Context) error {
		e.pullStream(streamID, from, remoteOffset)
		return nil
	})
	if e.pool == nil {
		go func() { _ = task.Execute(context.Background()) }()
		return
	}
	if err := e.pool.Submit(task); err != nil {
		// Pool is saturated or closed: release the claim so the next
		// gossip round retries this stream instead of leaving it
		// permanently marked as "pulling".
		e.releasePull(streamID)
	}
}

func (e *Engine) tryClaimPull(streamID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pulling[streamID] {
		return false
	}
	e.pulling[streamID] = true
	return true
}

func (e *Engine) releasePull(streamID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pulling, streamID)
}

func (e *Engine) breakerFor(streamID string) *CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.breakers[streamID]
	if !ok {
		b = NewCircuitBreaker(streamID, BreakerThreshold, BreakerResetTimeout)
		e.breakers[streamID] = b
	}
	return b
}

// BreakerSnapshot returns a stats snapshot for every stream this engine
// has ever tripped or probed a breaker for. Streams never unreachable
// never appear: breakers are created lazily in breakerFor.
func (e *Engine) BreakerSnapshot() []BreakerStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]BreakerStats, 0, len(e.breakers))
	for _, b := range e.breakers {
		out = append(out, b.Stats())
	}
	return out
}

// pullStream drives one catch-up round for streamID. A failure (peer
// unreachable, invariant violation) is left for the next gossip round
// to retry from wherever PullUpTo reached; it is never surfaced to a
// local publisher.
func (e *Engine) pullStream(streamID string, from, remoteOffset uint64) {
	defer e.releasePull(streamID)

	session := NewPullSession(e.nc, e.cfg, e.breakerFor(streamID))
	// reached is the next offset PullUpTo still expects, i.e. one past
	// the highest offset it actually appended; it equals from verbatim
	// when nothing was appended (peer unreachable, empty response, or
	// an immediate ordering violation), which the next gossip round
	// retries rather than surfacing here.
	reached, _ := session.PullUpTo(e.log, streamID, from, remoteOffset)
	if reached == from {
		return
	}
	e.reg.Advance(streamID, reached-1)
}
