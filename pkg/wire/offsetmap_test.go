package wire

import "testing"

func TestOffsetMap_AboveLowerBound(t *testing.T) {
	lower := OffsetMap{"node-a-0": 2}
	if lower.AboveLowerBound(Event{StreamID: "node-a-0", Offset: 2}) {
		t.Fatalf("offset equal to lower bound should not be above it")
	}
	if !lower.AboveLowerBound(Event{StreamID: "node-a-0", Offset: 3}) {
		t.Fatalf("offset above lower bound should report true")
	}
	if !lower.AboveLowerBound(Event{StreamID: "node-b-0", Offset: 0}) {
		t.Fatalf("stream absent from lower bound should be treated as above it")
	}
}

func TestOffsetMap_WithinUpperBound(t *testing.T) {
	upper := OffsetMap{"node-a-0": 5}
	if !upper.WithinUpperBound(Event{StreamID: "node-a-0", Offset: 4}) {
		t.Fatalf("offset below upper bound should be included")
	}
	if !upper.WithinUpperBound(Event{StreamID: "node-a-0", Offset: 5}) {
		t.Fatalf("upper bound is inclusive; offset == upper should be included")
	}
	if upper.WithinUpperBound(Event{StreamID: "node-a-0", Offset: 6}) {
		t.Fatalf("offset above upper bound should be excluded")
	}
	if upper.WithinUpperBound(Event{StreamID: "node-b-0", Offset: 0}) {
		t.Fatalf("stream absent from upper bound should be excluded")
	}
}

func TestOffsetMap_Advance(t *testing.T) {
	m := OffsetMap{}
	m.Advance("node-a-0", 3)
	m.Advance("node-a-0", 1) // lower, ignored
	m.Advance("node-a-0", 7)
	if got := m["node-a-0"]; got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestOffsetMap_Clone_IsIndependent(t *testing.T) {
	m := OffsetMap{"node-a-0": 1}
	c := m.Clone()
	c["node-a-0"] = 99
	if m["node-a-0"] != 1 {
		t.Fatalf("cloning must not mutate the original")
	}
}
