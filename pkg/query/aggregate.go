package query

import (
	"fmt"

	"github.com/swarmdb/node/pkg/wire"
)

// AggregateRow is one group's folded result, emitted at the upper bound
// of a bounded query (aggregation plans never run in subscription mode).
type AggregateRow struct {
	GroupKey string  `json:"group_key,omitempty"`
	Value    float64 `json:"value"`
}

type groupFold struct {
	count int64
	sum   float64
	min   float64
	max   float64
	seen  bool
}

func (g *groupFold) add(v float64, hasValue bool) {
	g.count++
	if !hasValue {
		return
	}
	g.sum += v
	if !g.seen || v < g.min {
		g.min = v
	}
	if !g.seen || v > g.max {
		g.max = v
	}
	g.seen = true
}

func (g *groupFold) result(fn AggFunc) float64 {
	switch fn {
	case AggCount:
		return float64(g.count)
	case AggSum:
		return g.sum
	case AggMin:
		return g.min
	case AggMax:
		return g.max
	case AggAvg:
		if g.count == 0 {
			return 0
		}
		return g.sum / float64(g.count)
	}
	return 0
}

// aggregator accumulates one fold state per group key, in first-seen
// order so emission is deterministic across runs of the same input.
type aggregator struct {
	spec   *Aggregate
	groups map[string]*groupFold
	order  []string
}

func newAggregator(spec *Aggregate) *aggregator {
	return &aggregator{spec: spec, groups: make(map[string]*groupFold)}
}

func (a *aggregator) add(e wire.Event) {
	doc := decodePayload(e.Payload)

	key := ""
	if a.spec.GroupBy != "" {
		if v, ok := fieldValue(doc, a.spec.GroupBy); ok {
			key = fmt.Sprint(v)
		}
	}

	g, ok := a.groups[key]
	if !ok {
		g = &groupFold{}
		a.groups[key] = g
		a.order = append(a.order, key)
	}

	if a.spec.Func == AggCount {
		g.add(0, false)
		return
	}

	val, ok := fieldValue(doc, a.spec.Field)
	f, numOK := toFloat(val)
	g.add(f, ok && numOK)
}

func (a *aggregator) results() []AggregateRow {
	out := make([]AggregateRow, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, AggregateRow{GroupKey: key, Value: a.groups[key].result(a.spec.Func)})
	}
	return out
}
