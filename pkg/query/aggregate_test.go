package query

import (
	"testing"

	"github.com/swarmdb/node/pkg/wire"
)

func event(payload string) wire.Event {
	return wire.Event{Payload: []byte(payload)}
}

func TestAggregator_CountWithoutGroupBy(t *testing.T) {
	a := newAggregator(&Aggregate{Func: AggCount})
	a.add(event(`{}`))
	a.add(event(`{}`))
	a.add(event(`{}`))

	rows := a.results()
	if len(rows) != 1 || rows[0].Value != 3 {
		t.Fatalf("got %+v, want a single row with count 3", rows)
	}
}

func TestAggregator_SumGroupedByField(t *testing.T) {
	a := newAggregator(&Aggregate{GroupBy: "region", Func: AggSum, Field: "amount"})
	a.add(event(`{"region":"eu","amount":10}`))
	a.add(event(`{"region":"eu","amount":5}`))
	a.add(event(`{"region":"us","amount":7}`))

	rows := a.results()
	if len(rows) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(rows))
	}
	byKey := map[string]float64{}
	for _, r := range rows {
		byKey[r.GroupKey] = r.Value
	}
	if byKey["eu"] != 15 || byKey["us"] != 7 {
		t.Fatalf("got %+v, want eu:15 us:7", byKey)
	}
}

func TestAggregator_MinMaxAvg(t *testing.T) {
	min := newAggregator(&Aggregate{Func: AggMin, Field: "v"})
	max := newAggregator(&Aggregate{Func: AggMax, Field: "v"})
	avg := newAggregator(&Aggregate{Func: AggAvg, Field: "v"})
	for _, v := range []string{"1", "5", "3"} {
		p := event(`{"v":` + v + `}`)
		min.add(p)
		max.add(p)
		avg.add(p)
	}

	if got := min.results()[0].Value; got != 1 {
		t.Fatalf("min = %v, want 1", got)
	}
	if got := max.results()[0].Value; got != 5 {
		t.Fatalf("max = %v, want 5", got)
	}
	if got := avg.results()[0].Value; got != 3 {
		t.Fatalf("avg = %v, want 3", got)
	}
}

func TestAggregator_GroupOrderIsFirstSeen(t *testing.T) {
	a := newAggregator(&Aggregate{GroupBy: "k", Func: AggCount})
	a.add(event(`{"k":"b"}`))
	a.add(event(`{"k":"a"}`))
	a.add(event(`{"k":"b"}`))

	rows := a.results()
	if len(rows) != 2 || rows[0].GroupKey != "b" || rows[1].GroupKey != "a" {
		t.Fatalf("got %+v, want first-seen order [b, a]", rows)
	}
}
