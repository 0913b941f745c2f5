package wire

import (
	"bufio"
	"bytes"
	"testing"
)

func TestFormatEventID_ZeroPadded(t *testing.T) {
	if got, want := FormatEventID(0, "node-a-0"), "00000000000/node-a-0"; got != want {
		t.Fatalf("FormatEventID(0, ...) = %q, want %q", got, want)
	}
}

func TestFormatEventID_LargeValueStillPadded(t *testing.T) {
	got := FormatEventID(4294967295, "node-a-0")
	want := "04294967295/node-a-0"
	if got != want {
		t.Fatalf("FormatEventID(4294967295, ...) = %q, want %q", got, want)
	}
}

func TestEvent_PrecedesOrdersByLamportThenStreamID(t *testing.T) {
	a := Event{Lamport: 5, StreamID: "node-a-0"}
	b := Event{Lamport: 5, StreamID: "node-b-0"}
	if !a.Precedes(b) {
		t.Fatalf("expected a to precede b on tie-break")
	}
	if b.Precedes(a) {
		t.Fatalf("expected b to not precede a")
	}

	c := Event{Lamport: 4, StreamID: "node-z-0"}
	if !c.Precedes(a) {
		t.Fatalf("expected lower lamport to precede regardless of stream id")
	}
}

func TestWriteReadFramed_RoundTrip(t *testing.T) {
	e := Event{
		StreamID:  "node-a-0",
		Offset:    7,
		Lamport:   42,
		Timestamp: 1000,
		Tags:      []string{"x", "y"},
		AppID:     "com.example.app",
		Payload:   []byte(`{"v":1}`),
	}

	var buf bytes.Buffer
	if err := WriteFramed(&buf, e); err != nil {
		t.Fatalf("WriteFramed: %v", err)
	}

	got, err := ReadFramed(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadFramed: %v", err)
	}

	if got.StreamID != e.StreamID || got.Offset != e.Offset || got.Lamport != e.Lamport ||
		got.AppID != e.AppID || string(got.Payload) != string(e.Payload) || len(got.Tags) != len(e.Tags) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestGossipMessage_RoundTrip(t *testing.T) {
	g := GossipMessage{Present: map[string]uint64{"node-a-0": 12, "node-b-0": 3}}
	data, err := g.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeGossipMessage(data)
	if err != nil {
		t.Fatalf("DecodeGossipMessage: %v", err)
	}
	if got.Present["node-a-0"] != 12 || got.Present["node-b-0"] != 3 {
		t.Fatalf("got %+v, want %+v", got.Present, g.Present)
	}
}

func TestPullRequestResponse_RoundTrip(t *testing.T) {
	req := PullRequest{StreamID: "node-a-0", FromOffset: 5, Limit: 10}
	data, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotReq, err := DecodePullRequest(data)
	if err != nil {
		t.Fatalf("DecodePullRequest: %v", err)
	}
	if gotReq != req {
		t.Fatalf("got %+v, want %+v", gotReq, req)
	}

	resp := PullResponse{Events: []Event{{StreamID: "node-a-0", Offset: 5, Lamport: 9}}}
	data, err = resp.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotResp, err := DecodePullResponse(data)
	if err != nil {
		t.Fatalf("DecodePullResponse: %v", err)
	}
	if len(gotResp.Events) != 1 || gotResp.Events[0].Offset != 5 {
		t.Fatalf("got %+v, want %+v", gotResp, resp)
	}
}
