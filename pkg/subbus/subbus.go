// Package subbus implements the Subscription Bus: fan-out of
// newly-durable events to live subscribers, each holding its own
// cursor into the merged log, per spec.md §4.F. Grounded on the
// teacher's pkg/bus topic -> subscriber fan-out map, generalized from
// topic names to tag selectors and from component-name subscriber keys
// to uuid subscription ids, each carrying its own mode and bound
// channel instead of a shared mailbox type.
package subbus

import (
	"sync"

	"github.com/google/uuid"
	"github.com/swarmdb/node/pkg/wire"
)

// Selector reports whether e should be delivered to a subscription.
type Selector func(e wire.Event) bool

// MatchAll selects every event.
func MatchAll() Selector {
	return func(wire.Event) bool { return true }
}

// MatchAnyTag selects events carrying at least one of tags.
func MatchAnyTag(tags []string) Selector {
	want := append([]string(nil), tags...)
	return func(e wire.Event) bool {
		for _, t := range want {
			if e.HasTag(t) {
				return true
			}
		}
		return false
	}
}

// MatchAllTags selects events carrying every one of tags.
func MatchAllTags(tags []string) Selector {
	want := append([]string(nil), tags...)
	return func(e wire.Event) bool {
		for _, t := range want {
			if !e.HasTag(t) {
				return false
			}
		}
		return true
	}
}

// Mode selects a subscription's termination behavior.
type Mode int

const (
	// ModeUnbounded delivers matching events forever until cancelled.
	ModeUnbounded Mode = iota
	// ModeBounded delivers matching events until every stream in the
	// subscription's upper bound has been reached, then closes.
	ModeBounded
	// ModeUntilTimeTravel delivers like ModeUnbounded but terminates the
	// instant a delivered event's lamport regresses below one already
	// delivered (the subscriber's derived state is now stale).
	ModeUntilTimeTravel
)

// Delivery is one item pushed to a subscriber's channel.
type Delivery struct {
	Event      *wire.Event // nil for marker deliveries
	CaughtUp   bool
	TimeTravel bool
}

// Subscription is a live (selector, cursor, mode) triple, per spec.md §4.F.
type Subscription struct {
	ID string

	mu         sync.Mutex
	selector   Selector
	mode       Mode
	cursor     wire.OffsetMap
	upperBound wire.OffsetMap
	maxLamport uint64
	closed     bool

	out chan Delivery
}

// Close stops delivery and closes the subscriber's channel. Idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

// Bus fans out durable event batches to every matching subscription.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// New creates an empty subscription bus.
func New() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscribe registers a new subscription and returns its receive
// channel. lowerBound is the cursor to start from (the caller — the
// Query Engine's subscribe() operation — has already delivered any
// historical prefix below lowerBound, so the bus immediately reports
// caught_up since it owns only the live tail from here).
func (b *Bus) Subscribe(selector Selector, lowerBound wire.OffsetMap, mode Mode, upperBound wire.OffsetMap, bufferSize int) (*Subscription, <-chan Delivery) {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	sub := &Subscription{
		ID:         uuid.New().String(),
		selector:   selector,
		mode:       mode,
		cursor:     lowerBound.Clone(),
		upperBound: upperBound.Clone(),
		out:        make(chan Delivery, bufferSize),
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	sub.out <- Delivery{CaughtUp: true}
	return sub, sub.out
}

// Unsubscribe removes and closes subscription id, a no-op if unknown.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// Publish fans a durable batch out to every matching subscription.
// batch must already be in the §3 tie-break order (the Stream
// Registry/Event Log hand batches through in that order).
func (b *Bus) Publish(batch []wire.Event) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliverBatch(sub, batch)
	}
}

func (b *Bus) deliverBatch(sub *Subscription, batch []wire.Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}

	for i := range batch {
		e := batch[i]
		if !sub.selector(e) || !sub.cursor.AboveLowerBound(e) {
			continue
		}
		if sub.mode == ModeBounded && !sub.upperBound.WithinUpperBound(e) {
			continue
		}
		if sub.mode == ModeUntilTimeTravel && e.Lamport < sub.maxLamport {
			sub.out <- Delivery{TimeTravel: true}
			sub.closeLocked()
			return
		}

		sub.out <- Delivery{Event: &e}
		sub.cursor.Advance(e.StreamID, e.Offset)
		if e.Lamport > sub.maxLamport {
			sub.maxLamport = e.Lamport
		}
	}

	if sub.mode == ModeBounded && sub.boundedComplete() {
		sub.closeLocked()
	}
}

// boundedComplete reports whether every stream named in the
// subscription's upper bound has had its cursor reach that bound.
// Caller must hold sub.mu.
func (s *Subscription) boundedComplete() bool {
	for streamID, upper := range s.upperBound {
		cur, ok := s.cursor[streamID]
		if !ok || cur < upper {
			return false
		}
	}
	return true
}
