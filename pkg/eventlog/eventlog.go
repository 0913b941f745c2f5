// Package eventlog implements the Event Log component: per-stream,
// append-only, durable storage with a strictly monotone offset index.
// It wraps pkg/appendlog's segmented file store, one store per stream,
// and enforces the offset/lamport monotonicity invariants from the
// data model on top of it.
package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/swarmdb/node/pkg/appendlog"
	"github.com/swarmdb/node/pkg/errs"
	"github.com/swarmdb/node/pkg/lamport"
	"github.com/swarmdb/node/pkg/wire"
)

// Config configures the Event Log's on-disk layout.
type Config struct {
	// Dir is the node's data directory; each stream gets its own
	// subdirectory under Dir/db/<stream_id>/.
	Dir string

	// Durability controls when append_local is acknowledged.
	Durability appendlog.Durability
}

// EventLog owns every stream's on-disk bytes and enforces single-writer,
// strictly-increasing-offset append semantics per stream.
type EventLog struct {
	cfg Config

	mu      sync.RWMutex
	streams map[string]*streamLog

	watermark uint64 // atomic: lamport up to which all prior appends are durable
}

// offsetState is the stream's current high-water mark, read and
// written as a single atomic pointer swap so a concurrent HighestOffset
// call never observes a torn (offset, hasData) pair. hasData is a
// separate flag rather than a sentinel offset value because every
// uint64, including math.MaxUint64, is a legitimate offset.
type offsetState struct {
	offset  uint64
	hasData bool
}

type streamLog struct {
	mu             sync.Mutex // serializes appends to this stream; single writer per spec.md §3 invariant 4
	store          appendlog.Store
	state          atomic.Pointer[offsetState]
	highestLamport uint64
}

func (s *streamLog) setHighestOffset(offset uint64) {
	s.state.Store(&offsetState{offset: offset, hasData: true})
}

// Open opens or creates the Event Log rooted at cfg.Dir.
func Open(cfg Config) (*EventLog, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("eventlog: Dir is required")
	}
	return &EventLog{
		cfg:     cfg,
		streams: make(map[string]*streamLog),
	}, nil
}

func (l *EventLog) streamDir(streamID string) string {
	return filepath.Join(l.cfg.Dir, "db", streamID)
}

// openStream returns the streamLog for streamID, opening its backing
// store on first use.
func (l *EventLog) openStream(streamID string) (*streamLog, error) {
	l.mu.RLock()
	s, ok := l.streams[streamID]
	l.mu.RUnlock()
	if ok {
		return s, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.streams[streamID]; ok {
		return s, nil
	}

	fsCfg := appendlog.DefaultFSStoreConfig(l.streamDir(streamID))
	fsCfg.Durability = l.cfg.Durability
	store, err := appendlog.NewFSStore(fsCfg)
	if err != nil {
		return nil, errs.Storage("open_stream", fmt.Sprintf("opening stream %s", streamID), err)
	}

	s = &streamLog{store: store}
	s.state.Store(&offsetState{})

	// fs_store recovers its own high-water mark from the segment
	// headers on open, so recovery here is O(1): no need to read back
	// and decode every record just to learn where the stream left off.
	if off, ok := store.HighestOffset(); ok {
		s.setHighestOffset(uint64(off))
	}
	s.highestLamport = store.HighestLamport()

	l.streams[streamID] = s
	return s, nil
}

// AppendLocal atomically assigns the next offset and lamport for
// streamID and durably appends the event. Only the local stream's
// single writer calls this.
func (l *EventLog) AppendLocal(streamID string, tags []string, payload []byte, appID string, clock *lamport.Clock, nowMicros uint64) (wire.Event, error) {
	s, err := l.openStream(streamID)
	if err != nil {
		return wire.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.Load()
	if st.hasData && st.offset == math.MaxUint64 {
		return wire.Event{}, errs.Storage("offset_exhausted", fmt.Sprintf("stream %s at max offset", streamID), nil)
	}
	nextOffset := uint64(0)
	if st.hasData {
		nextOffset = st.offset + 1
	}

	e := wire.Event{
		StreamID:  streamID,
		Offset:    nextOffset,
		Lamport:   clock.Next(),
		Timestamp: nowMicros,
		Tags:      append([]string(nil), tags...),
		AppID:     appID,
		Payload:   payload,
	}

	if err := l.writeLocked(s, e); err != nil {
		return wire.Event{}, errs.Storage("append_local", fmt.Sprintf("stream %s offset %d", streamID, nextOffset), err)
	}

	s.setHighestOffset(nextOffset)
	if e.Lamport > s.highestLamport {
		s.highestLamport = e.Lamport
	}
	l.advanceWatermark(e.Lamport)
	return e, nil
}

// AppendRemote durably appends an event received from a peer.
// Fails with ConflictAt if e.Offset isn't exactly the next expected
// offset; returns a Duplicate error without re-appending if
// (stream_id, offset) already holds identical bytes;
// returns InvariantViolation if the bytes differ.
func (l *EventLog) AppendRemote(e wire.Event) error {
	s, err := l.openStream(e.StreamID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.Load()
	expected := uint64(0)
	if st.hasData {
		if st.offset == math.MaxUint64 {
			return errs.Storage("offset_exhausted", fmt.Sprintf("stream %s at max offset", e.StreamID), nil)
		}
		expected = st.offset + 1
	}
	switch {
	case e.Offset == expected:
		// Fall through to append below.
	case st.hasData && e.Offset <= st.offset:
		existing, found, rerr := l.readOneLocked(s, e.Offset)
		if rerr != nil {
			return errs.Storage("append_remote", fmt.Sprintf("stream %s offset %d", e.StreamID, e.Offset), rerr)
		}
		if !found {
			return errs.ConflictAt(expected)
		}
		if bytes.Equal(existing.Payload, e.Payload) && existing.Lamport == e.Lamport {
			return errs.Duplicate(e.StreamID, e.Offset)
		}
		return errs.InvariantViolation(e.StreamID, e.Offset)
	default:
		return errs.ConflictAt(expected)
	}

	if err := l.writeLocked(s, e); err != nil {
		return errs.Storage("append_remote", fmt.Sprintf("stream %s offset %d", e.StreamID, e.Offset), err)
	}

	s.setHighestOffset(e.Offset)
	if e.Lamport > s.highestLamport {
		s.highestLamport = e.Lamport
	}
	l.advanceWatermark(e.Lamport)
	return nil
}

func (l *EventLog) writeLocked(s *streamLog, e wire.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.store.Append(appendlog.Offset(e.Offset), e.Lamport, body)
}

func (l *EventLog) readOneLocked(s *streamLog, offset uint64) (wire.Event, bool, error) {
	recs, err := s.store.Read(appendlog.Offset(offset), 1)
	if err != nil {
		return wire.Event{}, false, err
	}
	for _, rec := range recs {
		var e wire.Event
		if err := json.Unmarshal(rec.Data, &e); err != nil {
			return wire.Event{}, false, err
		}
		if e.Offset == offset {
			return e, true, nil
		}
	}
	return wire.Event{}, false, nil
}

// ReadRange returns events in streamID with offsets in
// [fromOffset, toOffsetInclusive].
func (l *EventLog) ReadRange(streamID string, fromOffset, toOffsetInclusive uint64) ([]wire.Event, error) {
	s, err := l.openStream(streamID)
	if err != nil {
		return nil, err
	}

	if toOffsetInclusive < fromOffset {
		return nil, nil
	}
	limit := int(toOffsetInclusive-fromOffset) + 1

	recs, err := s.store.Read(appendlog.Offset(fromOffset), limit)
	if err != nil {
		return nil, errs.Storage("read_range", fmt.Sprintf("stream %s", streamID), err)
	}

	out := make([]wire.Event, 0, len(recs))
	for _, rec := range recs {
		var e wire.Event
		if err := json.Unmarshal(rec.Data, &e); err != nil {
			return nil, errs.Storage("read_range", "decoding record", err)
		}
		if e.Offset > toOffsetInclusive {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

// ReadOne returns the single event at (streamID, offset), if present.
// Used by the Query Engine to materialize a tag posting into its event.
func (l *EventLog) ReadOne(streamID string, offset uint64) (wire.Event, bool, error) {
	events, err := l.ReadRange(streamID, offset, offset)
	if err != nil {
		return wire.Event{}, false, err
	}
	if len(events) == 0 {
		return wire.Event{}, false, nil
	}
	return events[0], true, nil
}

// HighestOffset returns the highest durable offset for streamID, if any.
func (l *EventLog) HighestOffset(streamID string) (uint64, bool) {
	l.mu.RLock()
	s, ok := l.streams[streamID]
	l.mu.RUnlock()
	if !ok {
		// Not opened since Open: recover it from disk if it exists there.
		if _, err := os.Stat(l.streamDir(streamID)); err != nil {
			return 0, false
		}
		var err error
		if s, err = l.openStream(streamID); err != nil {
			return 0, false
		}
	}
	st := s.state.Load()
	if !st.hasData {
		return 0, false
	}
	return st.offset, true
}

// FsyncWatermark returns the lamport value up to which all prior
// appends, across every stream, are known durable.
func (l *EventLog) FsyncWatermark() uint64 {
	return atomic.LoadUint64(&l.watermark)
}

func (l *EventLog) advanceWatermark(lamportVal uint64) {
	for {
		cur := atomic.LoadUint64(&l.watermark)
		if lamportVal <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&l.watermark, cur, lamportVal) {
			return
		}
	}
}

// Close flushes and closes every open stream store.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, s := range l.streams {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StreamIDs returns every stream currently open in this Event Log.
func (l *EventLog) StreamIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.streams))
	for id := range l.streams {
		out = append(out, id)
	}
	return out
}
