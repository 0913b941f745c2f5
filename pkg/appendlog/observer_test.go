package appendlog

import (
	"sync/atomic"
	"testing"
	"time"
)

type testObserver struct {
	enqueued   int64
	persisted  int64
	rejected   int64
	rotated    int64
	recovered  int64
	lastReason atomic.Value
	lastRecover RecoverInfo
}

func (o *testObserver) OnRecover(info RecoverInfo) {
	atomic.AddInt64(&o.recovered, 1)
	o.lastRecover = info
}
func (o *testObserver) OnAppendEnqueued(AppendInfo) {
	atomic.AddInt64(&o.enqueued, 1)
}
func (o *testObserver) OnAppendPersisted(PersistInfo) {
	atomic.AddInt64(&o.persisted, 1)
}
func (o *testObserver) OnAppendRejected(RejectInfo) { atomic.AddInt64(&o.rejected, 1) }
func (o *testObserver) OnRotate(info RotateInfo) {
	atomic.AddInt64(&o.rotated, 1)
	o.lastReason.Store(info.Reason)
}

func TestFSStore_Observer_SeesAppendAndPersist(t *testing.T) {
	dir := t.TempDir()
	obs := &testObserver{}

	s, err := NewFSStore(FSStoreConfig{
		Dir:              dir,
		MaxSegmentBytes:  1024,
		MaxBufferedBytes: 1024,
		Durability:       DurabilityFsync,
		Observer:         obs,
	})
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if atomic.LoadInt64(&obs.recovered) != 1 {
		t.Fatalf("expected one OnRecover call for a fresh store, got %d", obs.recovered)
	}
	if obs.lastRecover.HasData {
		t.Fatalf("expected HasData=false recovering an empty directory")
	}

	if err := s.Append(0, 42, []byte("x")); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Persist happens asynchronously; wait briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&obs.enqueued) >= 1 && atomic.LoadInt64(&obs.persisted) >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt64(&obs.enqueued) < 1 {
		t.Fatalf("expected observer enqueued>=1")
	}
	if atomic.LoadInt64(&obs.persisted) < 1 {
		t.Fatalf("expected observer persisted>=1")
	}
}

func TestFSStore_Observer_SeesRotateAndReject(t *testing.T) {
	dir := t.TempDir()
	obs := &testObserver{}

	s, err := NewFSStore(FSStoreConfig{
		Dir:              dir,
		MaxSegmentBytes:  32,
		MaxBufferedBytes: 8,
		Durability:       DurabilityFsync,
		Observer:         obs,
	})
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	// 8-byte payloads fit the buffer cap; with the 20-byte record header
	// each record is 28 bytes, so every record after the first rotates.
	for i := 0; i < 10; i++ {
		_ = s.Append(Offset(i), uint64(i), []byte("01234567"))
	}
	// A payload larger than the whole buffer cap is always rejected.
	_ = s.Append(Offset(10), 10, []byte("0123456789"))
	_ = s.Sync()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt64(&obs.rotated) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt64(&obs.rotated) == 0 {
		t.Fatalf("expected at least one rotation with a 32-byte segment cap")
	}
	if reason, _ := obs.lastReason.Load().(string); reason != "size" {
		t.Fatalf("expected rotate reason %q, got %q", "size", reason)
	}
	if atomic.LoadInt64(&obs.rejected) == 0 {
		t.Fatalf("expected at least one rejection with an 8-byte buffer cap")
	}
}
