package appendlog

// Observer receives best-effort lifecycle notifications from a Store.
// Every method is called on the store's hot path (Append, the
// background flush loop, or recovery) and must return quickly; a slow
// Observer slows the store down. A nil Observer is a no-op.
type Observer interface {
	OnRecover(RecoverInfo)
	OnAppendEnqueued(AppendInfo)
	OnAppendPersisted(PersistInfo)
	OnAppendRejected(RejectInfo)
	OnRotate(RotateInfo)
}

// RecoverInfo describes what NewFSStore found on disk at open time.
type RecoverInfo struct {
	Segments       int
	HasData        bool
	HighestOffset  Offset
	HighestLamport uint64
}

// AppendInfo describes a record accepted into the in-memory queue.
type AppendInfo struct {
	Offset  Offset
	Lamport uint64
	Bytes   int
}

// PersistInfo describes a record after the background flush loop has
// attempted to write it to its segment file. Err is nil on success.
type PersistInfo struct {
	Offset  Offset
	Lamport uint64
	Bytes   int
	Err     error
}

// RejectInfo describes an Append rejected by fail-fast backpressure.
type RejectInfo struct {
	Bytes  int
	Reason error
}

// RotateInfo describes a segment rotation.
type RotateInfo struct {
	SegmentID int
	// Reason is "size" when rotation was triggered by MaxSegmentBytes,
	// or "manual" when the caller called Store.Rotate directly.
	Reason string
}
