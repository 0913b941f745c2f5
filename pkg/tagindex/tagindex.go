// Package tagindex implements the per-tag inverted index: an ordered
// sequence of (lamport, stream_id, offset) postings per tag, and the
// ordered multi-way merge multi-tag queries need. Local events are
// appended in lamport order; remote events may arrive out of order and
// are inserted in place, so the index must tolerate non-monotone
// insertion without losing per-tag order.
package tagindex

import (
	"sort"
	"sync"

	"github.com/swarmdb/node/pkg/wire"
)

// Posting is one (lamport, stream_id, offset) entry in a tag's sequence.
type Posting struct {
	Lamport  uint64
	StreamID string
	Offset   uint64
}

// precedes applies the merged-log tie-break order (lamport, then
// stream_id) so every tag's postings and every merge agree with the
// rest of the system's total order.
func (p Posting) precedes(o Posting) bool {
	if p.Lamport != o.Lamport {
		return p.Lamport < o.Lamport
	}
	return p.StreamID < o.StreamID
}

// Index owns one ordered postings sequence per tag.
type Index struct {
	mu   sync.RWMutex
	tags map[string]*postings
}

type postings struct {
	mu      sync.RWMutex
	entries []Posting
}

// New creates an empty tag index.
func New() *Index {
	return &Index{tags: make(map[string]*postings)}
}

func (idx *Index) tagFor(tag string) *postings {
	idx.mu.RLock()
	t, ok := idx.tags[tag]
	idx.mu.RUnlock()
	if ok {
		return t
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if t, ok := idx.tags[tag]; ok {
		return t
	}
	t = &postings{}
	idx.tags[tag] = t
	return t
}

// Index records e's postings under every tag it carries. Safe to call
// with events arriving out of lamport order (remote inserts).
func (idx *Index) Index(e wire.Event) {
	p := Posting{Lamport: e.Lamport, StreamID: e.StreamID, Offset: e.Offset}
	for _, tag := range e.Tags {
		idx.tagFor(tag).insert(p)
	}
}

// insert places p in sequence order. Local appends land at the tail in
// O(1) amortized; out-of-order remote inserts pay a binary search plus
// a shift, which is acceptable since the hot path is append-at-tail.
func (s *postings) insert(p Posting) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	if n == 0 || s.entries[n-1].precedes(p) {
		s.entries = append(s.entries, p)
		return
	}
	i := sort.Search(n, func(i int) bool { return p.precedes(s.entries[i]) })
	s.entries = append(s.entries, Posting{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = p
}

// snapshot returns a read-only copy of the tag's current postings.
func (s *postings) snapshot() []Posting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Posting, len(s.entries))
	copy(out, s.entries)
	return out
}

// Postings returns a snapshot of tag's postings in order. Returns nil
// if the tag has never been indexed.
func (idx *Index) Postings(tag string) []Posting {
	idx.mu.RLock()
	t, ok := idx.tags[tag]
	idx.mu.RUnlock()
	if !ok {
		return nil
	}
	return t.snapshot()
}

// Merge performs an ordered multi-way merge over every tag in tags,
// returning the union of their postings in total order with duplicates
// (an event carrying more than one requested tag) collapsed.
func (idx *Index) Merge(tags []string) []Posting {
	seqs := make([][]Posting, 0, len(tags))
	for _, tag := range tags {
		if ps := idx.Postings(tag); len(ps) > 0 {
			seqs = append(seqs, ps)
		}
	}
	return mergeOrdered(seqs)
}

func mergeOrdered(seqs [][]Posting) []Posting {
	heads := make([]int, len(seqs))
	total := 0
	for _, s := range seqs {
		total += len(s)
	}
	out := make([]Posting, 0, total)

	for {
		best := -1
		for i, h := range heads {
			if h >= len(seqs[i]) {
				continue
			}
			if best == -1 || seqs[i][h].precedes(seqs[best][heads[best]]) {
				best = i
			}
		}
		if best == -1 {
			break
		}
		cand := seqs[best][heads[best]]
		heads[best]++
		if n := len(out); n > 0 && out[n-1].StreamID == cand.StreamID && out[n-1].Offset == cand.Offset {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// DeleteTopic tombstones every posting for the given stream ids, across
// every tag, as part of an operator-initiated topic delete (spec.md §4.E).
func (idx *Index) DeleteTopic(streamIDs []string) {
	dead := make(map[string]struct{}, len(streamIDs))
	for _, id := range streamIDs {
		dead[id] = struct{}{}
	}

	idx.mu.RLock()
	all := make([]*postings, 0, len(idx.tags))
	for _, t := range idx.tags {
		all = append(all, t)
	}
	idx.mu.RUnlock()

	for _, t := range all {
		t.removeStreams(dead)
	}
}

func (s *postings) removeStreams(dead map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, p := range s.entries {
		if _, ok := dead[p.StreamID]; ok {
			continue
		}
		kept = append(kept, p)
	}
	s.entries = kept
}

// Tags returns every tag currently indexed.
func (idx *Index) Tags() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.tags))
	for t := range idx.tags {
		out = append(out, t)
	}
	return out
}
