package query

import (
	"math"
	"testing"

	"github.com/swarmdb/node/pkg/wire"
)

func TestFieldValue_ResolvesDottedPath(t *testing.T) {
	doc := decodePayload([]byte(`{"user":{"id":42,"name":"ada"}}`))
	v, ok := fieldValue(doc, "user.id")
	if !ok {
		t.Fatalf("expected user.id to resolve")
	}
	n, ok := toNumeric(v)
	if !ok || !n.isInt || n.i != 42 {
		t.Fatalf("got %+v, want int 42", n)
	}
}

func TestFieldValue_MissingFieldIsNotFound(t *testing.T) {
	doc := decodePayload([]byte(`{"a":1}`))
	if _, ok := fieldValue(doc, "b"); ok {
		t.Fatalf("expected missing field to report not found")
	}
}

func TestCompareNumeric_IntegerExactEquality(t *testing.T) {
	a := numeric{isInt: true, i: 9223372036854775807}
	b := numeric{isInt: true, i: 9223372036854775807}
	if !compareNumeric(a, b, OpEq) {
		t.Fatalf("expected large int64 values to compare equal without float rounding")
	}
}

func TestCompareNumeric_NaNNeverComparable(t *testing.T) {
	nan := numeric{f: math.NaN()}
	one := numeric{f: 1}
	for _, op := range []CompareOp{OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte} {
		if compareNumeric(nan, one, op) {
			t.Fatalf("op %v: expected NaN comparison to be false", op)
		}
	}
}

func TestMatchPredicate_StringEquality(t *testing.T) {
	e := wire.Event{Payload: []byte(`{"kind":"order"}`)}
	pred := &Predicate{Field: "kind", Op: OpEq, Value: "order"}
	if !matchPredicate(e, pred) {
		t.Fatalf("expected kind==order to match")
	}
	pred2 := &Predicate{Field: "kind", Op: OpEq, Value: "invoice"}
	if matchPredicate(e, pred2) {
		t.Fatalf("expected kind==invoice to not match")
	}
}

func TestMatchPredicate_NumericOrdering(t *testing.T) {
	e := wire.Event{Payload: []byte(`{"amount":150}`)}
	pred := &Predicate{Field: "amount", Op: OpGt, Value: float64(100)}
	if !matchPredicate(e, pred) {
		t.Fatalf("expected amount>100 to match")
	}
}

func TestMatchPredicate_MissingFieldNeverMatches(t *testing.T) {
	e := wire.Event{Payload: []byte(`{"amount":150}`)}
	pred := &Predicate{Field: "currency", Op: OpEq, Value: "USD"}
	if matchPredicate(e, pred) {
		t.Fatalf("expected a missing field to never match")
	}
}
