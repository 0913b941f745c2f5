package query

import (
	"context"

	"github.com/swarmdb/node/pkg/errs"
	"github.com/swarmdb/node/pkg/subbus"
	"github.com/swarmdb/node/pkg/wire"
)

// Delivery is one item pushed to a running subscription: a matched
// (optionally filtered/projected) result, a caught_up marker once the
// historical backlog has been flushed, or a terminal time-travel signal.
type Delivery struct {
	Result     *Result
	CaughtUp   bool
	TimeTravel bool
}

// Subscription is a live subscribe() call: the historical backlog
// followed by the unbounded live tail, as one ordered channel.
type Subscription struct {
	id  string
	bus *subbus.Bus
	out chan Delivery
}

// Out returns the subscription's delivery channel.
func (s *Subscription) Out() <-chan Delivery {
	return s.out
}

// Close unsubscribes from the bus and stops further delivery.
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s.id)
}

// Subscribe emits a finite bounded prefix of events already durable at
// or below the current present snapshot and matching plan, then a
// caught_up marker, then continues unbounded from the Subscription Bus.
// Aggregation plans are rejected: groups are never emitted in
// subscription mode per the aggregation contract.
func (eng *Engine) Subscribe(ctx context.Context, plan *Plan, lowerBound wire.OffsetMap, bufferSize int) (*Subscription, error) {
	if hasAggregate(plan) {
		return nil, errs.QueryError("aggregation plans cannot run in subscription mode")
	}

	src := sourceSpec(plan)
	if src == nil {
		return nil, errs.QueryError("plan has no source stage")
	}

	presentAtStart := wire.OffsetMap(eng.reg.PresentSnapshot())

	backlogEvents, err := eng.sourceEvents(ctx, src, lowerBound, presentAtStart)
	if err != nil {
		return nil, err
	}
	backlog, err := materialize(plan, backlogEvents)
	if err != nil {
		return nil, err
	}

	selector := planSelector(src)
	sub, busCh := eng.bus.Subscribe(selector, presentAtStart, subbus.ModeUnbounded, nil, bufferSize)

	if bufferSize <= 0 {
		bufferSize = 64
	}
	out := make(chan Delivery, bufferSize)
	go pumpSubscription(ctx, plan, backlog, busCh, out)

	return &Subscription{id: sub.ID, bus: eng.bus, out: out}, nil
}

func planSelector(src *Source) subbus.Selector {
	if src == nil || len(src.Tags) == 0 {
		return subbus.MatchAll()
	}
	if src.Mode == TagModeAll {
		return subbus.MatchAllTags(src.Tags)
	}
	return subbus.MatchAnyTag(src.Tags)
}

// pumpSubscription relays the already-materialized backlog, then every
// live delivery from the bus, translating matched events through the
// plan's remaining (non-source) stages as they arrive.
func pumpSubscription(ctx context.Context, plan *Plan, backlog []Result, busCh <-chan subbus.Delivery, out chan<- Delivery) {
	defer close(out)

	for i := range backlog {
		row := backlog[i]
		select {
		case out <- Delivery{Result: &row}:
		case <-ctx.Done():
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-busCh:
			if !ok {
				return
			}
			if d.TimeTravel {
				select {
				case out <- Delivery{TimeTravel: true}:
				case <-ctx.Done():
				}
				return
			}
			if d.CaughtUp {
				select {
				case out <- Delivery{CaughtUp: true}:
				case <-ctx.Done():
					return
				}
				continue
			}
			if d.Event == nil {
				continue
			}
			results, err := materialize(plan, []wire.Event{*d.Event})
			if err != nil || len(results) == 0 {
				continue
			}
			row := results[0]
			select {
			case out <- Delivery{Result: &row}:
			case <-ctx.Done():
				return
			}
		}
	}
}
