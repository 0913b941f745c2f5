// Package streamreg implements the Stream Registry: the stream_id ->
// handle map, the "present" offset map (a copy-on-write snapshot
// published under a short lock, never a long-held read lock in the hot
// path per the concurrency model), and the synthesis of time-travel
// markers when a remote stream's tail advances past what it was at the
// last observation.
package streamreg

import (
	"sync"

	"github.com/swarmdb/node/pkg/identity"
)

// TailExtension describes a remote stream's tail moving forward,
// published so a running query can decide whether to suspend and
// restart against the new upper bound.
type TailExtension struct {
	StreamID       string
	PreviousOffset uint64
	NewOffset      uint64
}

// Watcher receives Stream Registry notifications. The Subscription Bus
// implements this to fan watermark and time-travel events out to
// live subscribers and queries.
type Watcher interface {
	OnPresentAdvanced(present map[string]uint64)
	OnTailExtended(ext TailExtension)
}

// noopWatcher discards notifications; used when a registry is built
// without a watcher wired in yet (e.g. during tests).
type noopWatcher struct{}

func (noopWatcher) OnPresentAdvanced(map[string]uint64) {}
func (noopWatcher) OnTailExtended(TailExtension)         {}

// Registry holds the node's view of every stream it knows about: its
// own local stream plus every remote stream discovered through gossip.
type Registry struct {
	localStreamID string

	mu      sync.RWMutex
	present map[string]uint64 // stream_id -> highest contiguous offset present locally
	remote  map[string]struct{}

	watcher Watcher
}

// New creates a registry whose local stream is id.localStreamID
// (typically identity.StreamID(0)).
func New(id *identity.Identity) *Registry {
	return &Registry{
		localStreamID: id.StreamID(0),
		present:       make(map[string]uint64),
		remote:        make(map[string]struct{}),
		watcher:       noopWatcher{},
	}
}

// SetWatcher wires the registry's notification sink. Must be called
// before any Advance to avoid dropping early notifications.
func (r *Registry) SetWatcher(w Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watcher = w
}

// LocalStreamID returns this node's own stream id.
func (r *Registry) LocalStreamID() string {
	return r.localStreamID
}

// Discover materializes streamID as a known remote stream on first
// observation (e.g. the first gossip announcement mentioning it), a
// no-op if it is already known.
func (r *Registry) Discover(streamID string) {
	if streamID == r.localStreamID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote[streamID] = struct{}{}
}

// Advance records that streamID's highest contiguous durable offset is
// now newOffset, publishing a present-map snapshot and, for remote
// streams whose tail moved forward, a TailExtension notification.
func (r *Registry) Advance(streamID string, newOffset uint64) {
	r.mu.Lock()
	prev, known := r.present[streamID]
	if known && newOffset <= prev {
		r.mu.Unlock()
		return
	}
	if !known && streamID != r.localStreamID {
		r.remote[streamID] = struct{}{}
	}
	r.present[streamID] = newOffset
	_, isRemote := r.remote[streamID]
	snapshot := r.snapshotLocked()
	watcher := r.watcher
	r.mu.Unlock()

	watcher.OnPresentAdvanced(snapshot)
	if isRemote && known {
		watcher.OnTailExtended(TailExtension{StreamID: streamID, PreviousOffset: prev, NewOffset: newOffset})
	}
}

// snapshotLocked copies the present map under the caller's held lock.
func (r *Registry) snapshotLocked() map[string]uint64 {
	out := make(map[string]uint64, len(r.present))
	for k, v := range r.present {
		out[k] = v
	}
	return out
}

// PresentSnapshot returns a copy-on-write snapshot of the present
// offset map, taken under a short read lock.
func (r *Registry) PresentSnapshot() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// PresentOffset returns streamID's highest contiguous offset, if known.
func (r *Registry) PresentOffset(streamID string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.present[streamID]
	return o, ok
}

// KnownStreams returns every stream id the registry has discovered,
// local and remote, regardless of whether any offset is durable yet.
func (r *Registry) KnownStreams() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]struct{}{r.localStreamID: {}}
	for id := range r.present {
		seen[id] = struct{}{}
	}
	for id := range r.remote {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// IsRemote reports whether streamID is a remote (not this node's own)
// stream.
func (r *Registry) IsRemote(streamID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.remote[streamID]
	return ok
}

// DeleteTopic removes every stream in streamIDs from the registry, as
// part of an operator-initiated topic delete. The local stream is
// never removable.
func (r *Registry) DeleteTopic(streamIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range streamIDs {
		if id == r.localStreamID {
			continue
		}
		delete(r.present, id)
		delete(r.remote, id)
	}
}
