package query

import (
	"context"
	"sort"
	"strconv"

	"github.com/swarmdb/node/pkg/errs"
	"github.com/swarmdb/node/pkg/eventlog"
	"github.com/swarmdb/node/pkg/streamreg"
	"github.com/swarmdb/node/pkg/subbus"
	"github.com/swarmdb/node/pkg/tagindex"
	"github.com/swarmdb/node/pkg/taskpool"
	"github.com/swarmdb/node/pkg/tracing"
	"github.com/swarmdb/node/pkg/wire"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Result is one output row: a matched (optionally projected) event, or
// an aggregate row for a plan ending in an aggregation stage.
type Result struct {
	Event     *wire.Event            `json:"event,omitempty"`
	Projected map[string]interface{} `json:"projected,omitempty"`
	Aggregate *AggregateRow          `json:"aggregate,omitempty"`
}

// Engine executes plans against the Event Log and Tag Index, reading
// source events through pkg/taskpool's executor so long bounded scans
// check for cancellation at every batch boundary per the concurrency
// model's suspension-point requirement.
type Engine struct {
	log  *eventlog.EventLog
	tags *tagindex.Index
	reg  *streamreg.Registry
	bus  *subbus.Bus
	pool taskpool.Executor
}

// NewEngine builds a query engine bound to the node's log, tag index,
// stream registry, and subscription bus.
func NewEngine(log *eventlog.EventLog, tags *tagindex.Index, reg *streamreg.Registry, bus *subbus.Bus, pool taskpool.Executor) *Engine {
	return &Engine{log: log, tags: tags, reg: reg, bus: bus, pool: pool}
}

// QueryRange runs plan bounded to the half-open per-stream intervals
// implied by lowerBound/upperBound (offset > lowerBound[stream] and
// offset <= upperBound[stream]; a stream absent from upperBound is
// excluded entirely), in forward or reverse merged-log order.
func (eng *Engine) QueryRange(ctx context.Context, plan *Plan, lowerBound, upperBound wire.OffsetMap, order Order) ([]Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "query.Engine.QueryRange")
	span.SetAttributes(attribute.Int("swarmdb.order", int(order)))
	defer span.End()

	select {
	case <-ctx.Done():
		err := errs.Cancelled("query_range cancelled before starting")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	default:
	}

	src := sourceSpec(plan)
	if src == nil {
		err := errs.QueryError("plan has no source stage")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	events, err := eng.runBounded(ctx, "query_range_scan", func(taskCtx context.Context) ([]wire.Event, error) {
		return eng.sourceEvents(taskCtx, src, lowerBound, upperBound)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("swarmdb.events_scanned", len(events)))

	if order == OrderReverse {
		reverseEvents(events)
	}

	results, err := materialize(plan, events)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return results, err
}

// runBounded executes fn as a task on the engine's executor when one is
// configured, so a bounded scan's batch-boundary cancellation checks
// run on a worker goroutine the executor owns rather than the caller's;
// without a configured pool it just runs fn inline.
func (eng *Engine) runBounded(ctx context.Context, label string, fn func(context.Context) ([]wire.Event, error)) ([]wire.Event, error) {
	if eng.pool == nil {
		return fn(ctx)
	}

	type outcome struct {
		events []wire.Event
		err    error
	}
	done := make(chan outcome, 1)
	task := taskpool.NewNamedTask(label, func(taskCtx context.Context) error {
		events, err := fn(taskCtx)
		done <- outcome{events: events, err: err}
		return err
	})
	if err := eng.pool.Submit(task); err != nil {
		return nil, errs.Backpressure(err.Error())
	}

	select {
	case o := <-done:
		return o.events, o.err
	case <-ctx.Done():
		return nil, errs.Cancelled("query_range cancelled")
	}
}

func reverseEvents(events []wire.Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}

// sourceEvents reads the plan's source stage, in merged-log order.
func (eng *Engine) sourceEvents(ctx context.Context, src *Source, lower, upper wire.OffsetMap) ([]wire.Event, error) {
	if len(src.Tags) == 0 {
		return eng.scanAllStreams(ctx, lower, upper)
	}
	return eng.scanByTags(src, lower, upper)
}

// scanAllStreams reads every known stream's bounded range, one stream
// after another; ctx is checked between streams so a cancelled scan
// stops before reading the next one.
func (eng *Engine) scanAllStreams(ctx context.Context, lower, upper wire.OffsetMap) ([]wire.Event, error) {
	var out []wire.Event
	for _, streamID := range eng.reg.KnownStreams() {
		select {
		case <-ctx.Done():
			return nil, errs.Cancelled("query_range cancelled mid-scan")
		default:
		}

		upperOff, ok := upper.Get(streamID)
		if !ok {
			continue
		}
		from := uint64(0)
		if lo, ok := lower.Get(streamID); ok {
			from = lo + 1
		}
		to := upperOff
		if to < from {
			continue
		}

		events, err := eng.log.ReadRange(streamID, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Precedes(out[j]) })
	return out, nil
}

// scanByTags resolves the source's tag expression against the Tag
// Index and materializes each surviving posting's event.
func (eng *Engine) scanByTags(src *Source, lower, upper wire.OffsetMap) ([]wire.Event, error) {
	var postings []tagindex.Posting
	if src.Mode == TagModeAll {
		postings = intersectTagPostings(eng.tags, src.Tags)
	} else {
		postings = eng.tags.Merge(src.Tags)
	}

	out := make([]wire.Event, 0, len(postings))
	for _, p := range postings {
		probe := wire.Event{StreamID: p.StreamID, Offset: p.Offset}
		if !lower.AboveLowerBound(probe) || !upper.WithinUpperBound(probe) {
			continue
		}
		e, found, err := eng.log.ReadOne(p.StreamID, p.Offset)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func postingKey(p tagindex.Posting) string {
	return p.StreamID + "/" + strconv.FormatUint(p.Offset, 10)
}

// intersectTagPostings returns the postings common to every tag in
// tags (an AllOf source), in merged-log order.
func intersectTagPostings(idx *tagindex.Index, tags []string) []tagindex.Posting {
	if len(tags) == 0 {
		return nil
	}
	sets := make([]map[string]tagindex.Posting, len(tags))
	for i, t := range tags {
		m := make(map[string]tagindex.Posting)
		for _, p := range idx.Postings(t) {
			m[postingKey(p)] = p
		}
		sets[i] = m
	}

	smallest := 0
	for i := range sets {
		if len(sets[i]) < len(sets[smallest]) {
			smallest = i
		}
	}

	var result []tagindex.Posting
	for key, p := range sets[smallest] {
		inAll := true
		for i := range sets {
			if i == smallest {
				continue
			}
			if _, ok := sets[i][key]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			result = append(result, p)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Lamport != b.Lamport {
			return a.Lamport < b.Lamport
		}
		return a.StreamID < b.StreamID
	})
	return result
}

// materialize runs every non-source stage of plan over events, in
// leaf-to-root order, producing either one Result per surviving event
// or, for a plan ending in an aggregation, one Result per group.
func materialize(plan *Plan, events []wire.Event) ([]Result, error) {
	var project []string
	var agg *Aggregate

	for _, stage := range stagesLeafFirst(plan) {
		switch stage.Op {
		case OpFilter:
			events = applyFilter(events, stage.FilterSpec)
		case OpProject:
			project = stage.ProjectSpec
		case OpAggregate:
			agg = stage.AggregateSpec
		}
	}

	if agg != nil {
		a := newAggregator(agg)
		for _, e := range events {
			a.add(e)
		}
		rows := a.results()
		out := make([]Result, len(rows))
		for i := range rows {
			row := rows[i]
			out[i] = Result{Aggregate: &row}
		}
		return out, nil
	}

	out := make([]Result, len(events))
	for i := range events {
		e := events[i]
		r := Result{Event: &e}
		if project != nil {
			doc := decodePayload(e.Payload)
			proj := make(map[string]interface{}, len(project))
			for _, f := range project {
				if v, ok := fieldValue(doc, f); ok {
					proj[f] = v
				}
			}
			r.Projected = proj
		}
		out[i] = r
	}
	return out, nil
}

func applyFilter(events []wire.Event, pred *Predicate) []wire.Event {
	if pred == nil {
		return events
	}
	kept := events[:0]
	for _, e := range events {
		if matchPredicate(e, pred) {
			kept = append(kept, e)
		}
	}
	return kept
}
