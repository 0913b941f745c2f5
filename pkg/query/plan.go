// Package query implements the Query Engine: execution of an
// already-parsed plan tree (source selection, filter, projection,
// aggregation) over the merged log, in bounded and subscription modes.
// Parsing AQL text into a Plan is out of scope; callers hand in a Plan
// built however they like.
package query

// TagMode selects how a source stage's tag list combines.
type TagMode int

const (
	// TagModeAny selects events carrying at least one of the source's tags.
	TagModeAny TagMode = iota
	// TagModeAll selects events carrying every one of the source's tags.
	TagModeAll
)

// Source is a plan's leaf stage: which tag(s) to read from, or every
// known stream when Tags is empty.
type Source struct {
	Tags []string `json:"tags,omitempty"`
	Mode TagMode  `json:"mode,omitempty"`
}

// CompareOp is a predicate's comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
)

// Predicate filters events by a dotted field path into the JSON payload.
type Predicate struct {
	Field string      `json:"field"`
	Op    CompareOp   `json:"op"`
	Value interface{} `json:"value"`
}

// Order controls bounded-mode emission direction.
type Order int

const (
	OrderForward Order = iota
	OrderReverse
)

// AggFunc is a supported aggregation function.
type AggFunc int

const (
	AggCount AggFunc = iota
	AggSum
	AggMin
	AggMax
	AggAvg
)

// Aggregate folds matched events into one row per GroupBy key. GroupBy
// empty groups every event into a single row.
type Aggregate struct {
	GroupBy string  `json:"group_by,omitempty"`
	Func    AggFunc `json:"func"`
	Field   string  `json:"field,omitempty"` // ignored for AggCount
}

// Op tags which variant of a Plan node is populated, dispatched with a
// type switch rather than an interface hierarchy.
type Op string

const (
	OpSource    Op = "source"
	OpFilter    Op = "filter"
	OpProject   Op = "project"
	OpAggregate Op = "aggregate"
)

// Plan is one stage of a query plan. Exactly one of the Op-matching
// fields is populated; Child points toward the source leaf, so a plan
// reads root-to-leaf as project->filter->source, for instance, and
// executes leaf-to-root.
type Plan struct {
	Op Op `json:"op"`

	SourceSpec    *Source    `json:"source,omitempty"`
	FilterSpec    *Predicate `json:"filter,omitempty"`
	ProjectSpec   []string   `json:"project,omitempty"`
	AggregateSpec *Aggregate `json:"aggregate,omitempty"`

	Child *Plan `json:"child,omitempty"`
}

// SourcePlan builds a source leaf stage.
func SourcePlan(src Source) *Plan {
	return &Plan{Op: OpSource, SourceSpec: &src}
}

// FilterPlan appends a predicate stage on top of child.
func FilterPlan(child *Plan, pred Predicate) *Plan {
	return &Plan{Op: OpFilter, FilterSpec: &pred, Child: child}
}

// ProjectPlan appends a projection stage on top of child.
func ProjectPlan(child *Plan, fields []string) *Plan {
	return &Plan{Op: OpProject, ProjectSpec: fields, Child: child}
}

// AggregatePlan appends an aggregation stage on top of child.
func AggregatePlan(child *Plan, agg Aggregate) *Plan {
	return &Plan{Op: OpAggregate, AggregateSpec: &agg, Child: child}
}

// sourceSpec walks the Child chain down to the source leaf.
func sourceSpec(plan *Plan) *Source {
	for p := plan; p != nil; p = p.Child {
		if p.Op == OpSource {
			return p.SourceSpec
		}
	}
	return nil
}

// hasAggregate reports whether plan contains an aggregate stage.
func hasAggregate(plan *Plan) bool {
	for p := plan; p != nil; p = p.Child {
		if p.Op == OpAggregate {
			return true
		}
	}
	return false
}

// stagesLeafFirst flattens plan into leaf(source)-first order, the
// order in which stages must be applied to a batch of events.
func stagesLeafFirst(plan *Plan) []*Plan {
	var rootFirst []*Plan
	for p := plan; p != nil; p = p.Child {
		rootFirst = append(rootFirst, p)
	}
	out := make([]*Plan, len(rootFirst))
	for i, p := range rootFirst {
		out[len(rootFirst)-1-i] = p
	}
	return out
}
