package streamreg

import (
	"testing"

	"github.com/swarmdb/node/pkg/identity"
)

type recordingWatcher struct {
	advances []map[string]uint64
	tails    []TailExtension
}

func (w *recordingWatcher) OnPresentAdvanced(present map[string]uint64) {
	w.advances = append(w.advances, present)
}

func (w *recordingWatcher) OnTailExtended(ext TailExtension) {
	w.tails = append(w.tails, ext)
}

func newTestIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return id
}

func TestRegistry_AdvanceLocalStream(t *testing.T) {
	r := New(newTestIdentity(t))
	w := &recordingWatcher{}
	r.SetWatcher(w)

	r.Advance(r.LocalStreamID(), 0)
	r.Advance(r.LocalStreamID(), 1)

	off, ok := r.PresentOffset(r.LocalStreamID())
	if !ok || off != 1 {
		t.Fatalf("PresentOffset = %d,%v want 1,true", off, ok)
	}
	if len(w.advances) != 2 {
		t.Fatalf("expected 2 present-advanced notifications, got %d", len(w.advances))
	}
	if len(w.tails) != 0 {
		t.Fatalf("local stream should never emit a tail extension, got %d", len(w.tails))
	}
}

func TestRegistry_Discover_MarksStreamRemoteWithoutAnOffsetYet(t *testing.T) {
	r := New(newTestIdentity(t))
	r.Discover("node-b-0")

	if _, ok := r.PresentOffset("node-b-0"); ok {
		t.Fatalf("expected no durable offset yet for a freshly discovered stream")
	}
	if !r.IsRemote("node-b-0") {
		t.Fatalf("expected node-b-0 to be remote")
	}
}

func TestRegistry_Advance_RemoteTailExtensionFires(t *testing.T) {
	r := New(newTestIdentity(t))
	w := &recordingWatcher{}
	r.SetWatcher(w)

	r.Discover("node-b-0")
	r.Advance("node-b-0", 0) // known=false (Discover never sets an offset) -> first sighting, no tail extension
	r.Advance("node-b-0", 5)

	if len(w.tails) != 1 {
		t.Fatalf("expected exactly 1 tail extension, got %d: %+v", len(w.tails), w.tails)
	}
	ext := w.tails[0]
	if ext.StreamID != "node-b-0" || ext.PreviousOffset != 0 || ext.NewOffset != 5 {
		t.Fatalf("unexpected tail extension: %+v", ext)
	}
}

func TestRegistry_Advance_IgnoresStaleOrEqualOffsets(t *testing.T) {
	r := New(newTestIdentity(t))
	w := &recordingWatcher{}
	r.SetWatcher(w)

	r.Advance("node-b-0", 5)
	r.Advance("node-b-0", 5) // equal, should be ignored
	r.Advance("node-b-0", 3) // stale, should be ignored

	off, _ := r.PresentOffset("node-b-0")
	if off != 5 {
		t.Fatalf("PresentOffset = %d, want 5 (unaffected by stale/equal advances)", off)
	}
	if len(w.advances) != 1 {
		t.Fatalf("expected 1 present-advanced notification, got %d", len(w.advances))
	}
}

func TestRegistry_PresentSnapshot_IsIndependentCopy(t *testing.T) {
	r := New(newTestIdentity(t))
	r.Advance("node-b-0", 2)

	snap := r.PresentSnapshot()
	snap["node-b-0"] = 999

	off, _ := r.PresentOffset("node-b-0")
	if off != 2 {
		t.Fatalf("mutating a snapshot must not affect the registry; got %d", off)
	}
}

func TestRegistry_DeleteTopic_RemovesRemoteStreamsNotLocal(t *testing.T) {
	r := New(newTestIdentity(t))
	r.Advance(r.LocalStreamID(), 1)
	r.Advance("node-b-0", 2)

	r.DeleteTopic([]string{"node-b-0", r.LocalStreamID()})

	if _, ok := r.PresentOffset("node-b-0"); ok {
		t.Fatalf("expected node-b-0 to be removed")
	}
	if _, ok := r.PresentOffset(r.LocalStreamID()); !ok {
		t.Fatalf("local stream must never be removed by DeleteTopic")
	}
}
