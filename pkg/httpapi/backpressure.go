package httpapi

import (
	"sync/atomic"
	"time"
)

// BackpressureController bounds concurrent in-flight requests to a target
// capacity, rejecting overflow immediately (fail-fast) instead of queueing
// unbounded work — the spec's Backpressure error kind at the HTTP edge.
//
// Grounded on github.com/fluxorio/fluxor pkg/web/backpressure.go, kept
// close to verbatim: it is already a domain-agnostic admission controller.
type BackpressureController struct {
	capacity      int64
	currentLoad   int64
	rejectedCount int64
	lastReset     int64
	resetInterval int64
}

// NewBackpressureController creates a controller bounding concurrent load
// to capacity. The current load count is reset to zero once more than
// resetIntervalSeconds have passed since the last reset; the rejection
// count is cumulative and never reset.
func NewBackpressureController(capacity int, resetIntervalSeconds int64) *BackpressureController {
	return &BackpressureController{
		capacity:      int64(capacity),
		lastReset:     time.Now().Unix(),
		resetInterval: resetIntervalSeconds,
	}
}

// TryAcquire attempts to admit one unit of work. Returns false when at
// capacity, in which case the caller must reject with Backpressure.
func (bc *BackpressureController) TryAcquire() bool {
	now := time.Now().Unix()
	if now-atomic.LoadInt64(&bc.lastReset) > bc.resetInterval {
		atomic.StoreInt64(&bc.currentLoad, 0)
		atomic.StoreInt64(&bc.lastReset, now)
	}

	if atomic.LoadInt64(&bc.currentLoad) >= bc.capacity {
		atomic.AddInt64(&bc.rejectedCount, 1)
		return false
	}
	atomic.AddInt64(&bc.currentLoad, 1)
	return true
}

// Release returns one unit of admitted work.
func (bc *BackpressureController) Release() {
	atomic.AddInt64(&bc.currentLoad, -1)
}

// Metrics reports current admission-controller state.
type BackpressureMetrics struct {
	Capacity    int64
	CurrentLoad int64
	Rejected    int64
	Utilization float64
}

func (bc *BackpressureController) Metrics() BackpressureMetrics {
	load := atomic.LoadInt64(&bc.currentLoad)
	util := 0.0
	if bc.capacity > 0 {
		util = float64(load) / float64(bc.capacity) * 100
	}
	return BackpressureMetrics{
		Capacity:    bc.capacity,
		CurrentLoad: load,
		Rejected:    atomic.LoadInt64(&bc.rejectedCount),
		Utilization: util,
	}
}
