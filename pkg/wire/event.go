// Package wire defines the event envelope exchanged between peers and
// with local callers, its length-prefixed framing for the replication
// transport, and the externally-visible Event ID rendering.
package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Event is the node's immutable event envelope, per the data model:
// stream_id + offset + lamport + timestamp + tags + app_id + payload.
type Event struct {
	StreamID  string   `json:"stream_id"`
	Offset    uint64   `json:"offset"`
	Lamport   uint64   `json:"lamport"`
	Timestamp uint64   `json:"timestamp"` // wall-clock microseconds, advisory
	Tags      []string `json:"tags"`
	AppID     string   `json:"app_id"`
	Payload   []byte   `json:"payload"`
}

// ID renders the externally-visible Event ID: a zero-padded 11-digit
// lamport, "/", and the stream id. Chosen over the source's unpadded
// alternative so that lexicographic and lamport order agree (§9 open
// question, decided zero-padded).
func (e Event) ID() string {
	return FormatEventID(e.Lamport, e.StreamID)
}

// FormatEventID renders an Event ID for a (lamport, stream_id) pair
// without requiring a full Event value.
func FormatEventID(lamport uint64, streamID string) string {
	return fmt.Sprintf("%011d/%s", lamport, streamID)
}

// Precedes implements the merged-log tie-break order from the data
// model: e precedes f iff e.lamport < f.lamport, or equal lamports and
// e.stream_id sorts lexicographically before f.stream_id.
func (e Event) Precedes(f Event) bool {
	if e.Lamport != f.Lamport {
		return e.Lamport < f.Lamport
	}
	return e.StreamID < f.StreamID
}

// HasTag reports whether e carries tag.
func (e Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// WriteFramed writes e to w as a length-prefixed frame: [len u32][json bytes].
// Used for the per-pull replication transport.
func WriteFramed(w io.Writer, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("wire: marshal event: %w", err)
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFramed reads one length-prefixed event frame from r.
func ReadFramed(r *bufio.Reader) (Event, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Event{}, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Event{}, err
	}
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("wire: unmarshal event: %w", err)
	}
	return e, nil
}

// GossipMessage is the periodic present-offset-map announcement
// exchanged between peers: { present: { stream_id: offset } }.
type GossipMessage struct {
	Present map[string]uint64 `json:"present"`
}

// Encode serializes the gossip message for transport over the swarm overlay.
func (g GossipMessage) Encode() ([]byte, error) {
	return json.Marshal(g)
}

// DecodeGossipMessage parses a gossip message received from a peer.
func DecodeGossipMessage(data []byte) (GossipMessage, error) {
	var g GossipMessage
	if err := json.Unmarshal(data, &g); err != nil {
		return GossipMessage{}, fmt.Errorf("wire: unmarshal gossip message: %w", err)
	}
	return g, nil
}

// PullRequest asks a peer for events in [FromOffset, FromOffset+Limit)
// of StreamID, per the Replication Engine's credit-windowed pulls.
type PullRequest struct {
	StreamID   string `json:"stream_id"`
	FromOffset uint64 `json:"from_offset"`
	Limit      int    `json:"limit"`
}

// Encode serializes a pull request for transport.
func (r PullRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodePullRequest parses a pull request received from a peer.
func DecodePullRequest(data []byte) (PullRequest, error) {
	var r PullRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return PullRequest{}, fmt.Errorf("wire: unmarshal pull request: %w", err)
	}
	return r, nil
}

// PullResponse carries the events satisfying a PullRequest, in strict
// offset order. Err is set (and Events empty) when the peer could not
// satisfy the request, e.g. an unknown stream.
type PullResponse struct {
	Events []Event `json:"events"`
	Err    string  `json:"err,omitempty"`
}

// Encode serializes a pull response for transport.
func (r PullResponse) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodePullResponse parses a pull response received from a peer.
func DecodePullResponse(data []byte) (PullResponse, error) {
	var r PullResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return PullResponse{}, fmt.Errorf("wire: unmarshal pull response: %w", err)
	}
	return r, nil
}
