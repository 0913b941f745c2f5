package query

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/swarmdb/node/pkg/wire"
)

// decodePayload parses e's payload as a JSON object, preserving numbers
// as json.Number so integer fields keep their full 64-bit precision
// instead of being rounded through float64. A non-object or malformed
// payload decodes to a nil map, not an error, since queries treat a
// missing field as "doesn't match" rather than aborting the scan.
func decodePayload(payload []byte) map[string]interface{} {
	if len(payload) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v map[string]interface{}
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// fieldValue resolves a dotted path (e.g. "user.id") against doc.
func fieldValue(doc map[string]interface{}, path string) (interface{}, bool) {
	if doc == nil || path == "" {
		return nil, false
	}
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// numeric is a field value's numeric interpretation: exact int64 where
// the JSON number has no fractional part, float64 otherwise.
type numeric struct {
	isInt bool
	i     int64
	f     float64
}

func (n numeric) asFloat() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

func toNumeric(v interface{}) (numeric, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return numeric{isInt: true, i: i}, true
		}
		f, err := n.Float64()
		if err != nil {
			return numeric{}, false
		}
		return numeric{f: f}, true
	case float64:
		return numeric{f: n}, true
	}
	return numeric{}, false
}

func toFloat(v interface{}) (float64, bool) {
	n, ok := toNumeric(v)
	if !ok {
		return 0, false
	}
	return n.asFloat(), true
}

// compareNumeric implements the numeric comparison semantics: exact
// 64-bit integer comparison when both sides parsed as integers (wrapping
// is an arithmetic concern, not a comparison one, so ordinary signed
// int64 compare already matches it), otherwise IEEE-754 float compare
// with NaN never comparable — any comparison touching NaN is false and
// the owning predicate short-circuits to "not matched".
func compareNumeric(a, b numeric, op CompareOp) bool {
	if a.isInt && b.isInt {
		switch op {
		case OpEq:
			return a.i == b.i
		case OpNeq:
			return a.i != b.i
		case OpLt:
			return a.i < b.i
		case OpLte:
			return a.i <= b.i
		case OpGt:
			return a.i > b.i
		case OpGte:
			return a.i >= b.i
		}
		return false
	}

	af, bf := a.asFloat(), b.asFloat()
	if math.IsNaN(af) || math.IsNaN(bf) {
		return false
	}
	switch op {
	case OpEq:
		return af == bf
	case OpNeq:
		return af != bf
	case OpLt:
		return af < bf
	case OpLte:
		return af <= bf
	case OpGt:
		return af > bf
	case OpGte:
		return af >= bf
	}
	return false
}

// matchPredicate reports whether e's payload satisfies pred. A missing
// field or a type mismatch between the predicate's value and the
// field's actual type never matches, rather than erroring the scan.
func matchPredicate(e wire.Event, pred *Predicate) bool {
	if pred == nil {
		return true
	}
	doc := decodePayload(e.Payload)
	val, ok := fieldValue(doc, pred.Field)
	if !ok {
		return false
	}

	switch want := pred.Value.(type) {
	case int:
		return matchAgainstInt(val, int64(want), pred.Op)
	case int64:
		return matchAgainstInt(val, want, pred.Op)
	case float64:
		got, ok := toNumeric(val)
		if !ok {
			return false
		}
		return compareNumeric(got, numeric{f: want}, pred.Op)
	case string:
		gotStr, ok := val.(string)
		if !ok {
			return false
		}
		switch pred.Op {
		case OpEq:
			return gotStr == want
		case OpNeq:
			return gotStr != want
		default:
			return false
		}
	case bool:
		gotBool, ok := val.(bool)
		if !ok {
			return false
		}
		switch pred.Op {
		case OpEq:
			return gotBool == want
		case OpNeq:
			return gotBool != want
		default:
			return false
		}
	}
	return false
}

func matchAgainstInt(val interface{}, want int64, op CompareOp) bool {
	got, ok := toNumeric(val)
	if !ok {
		return false
	}
	return compareNumeric(got, numeric{isInt: true, i: want}, op)
}
