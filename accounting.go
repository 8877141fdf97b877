package layerbuf

import (
	"fmt"
	"sync"
)

// MemoryTracker tracks the current and peak number of bytes held by live
// buffers. Every buffer constructor adds its backing size and every
// destruction subtracts it, so an external metrics consumer can observe
// the high-water mark of layer memory between samples.
//
// MemoryTracker is safe for concurrent use. Updates are O(1) under a
// single mutex; contention is negligible since buffers are created and
// destroyed at frame granularity.
type MemoryTracker struct {
	mu      sync.Mutex
	current uint64
	peak    uint64
}

// defaultTracker accounts for all buffers that are not given an explicit
// tracker. It lives for the whole process, like the buffers it counts.
var defaultTracker = &MemoryTracker{}

// DefaultTracker returns the process-wide tracker shared by all buffers
// constructed without an explicit one.
func DefaultTracker() *MemoryTracker { return defaultTracker }

// Add adjusts the current usage by delta bytes. A positive delta raises
// the peak if the new current total exceeds it. A negative delta clamps
// at zero rather than underflowing.
func (t *MemoryTracker) Add(delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if delta >= 0 {
		t.current += uint64(delta)
		if t.current > t.peak {
			t.peak = t.current
		}
		return
	}

	d := uint64(-delta)
	if d > t.current {
		t.current = 0
		return
	}
	t.current -= d
}

// Sample returns the peak usage observed since the previous Sample (or
// Reset) and resets the baseline to the current usage. The value is the
// maximum of the current totals seen across the sampling window.
func (t *MemoryTracker) Sample() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	peak := t.peak
	t.peak = t.current
	return peak
}

// Reset sets the peak to the current usage without returning a value.
func (t *MemoryTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.peak = t.current
}

// Stats returns a snapshot of the tracker's counters.
func (t *MemoryTracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TrackerStats{
		CurrentBytes: t.current,
		PeakBytes:    t.peak,
	}
}

// TrackerStats is a point-in-time snapshot of buffer memory usage.
type TrackerStats struct {
	// CurrentBytes is the sum of live buffer byte sizes.
	CurrentBytes uint64

	// PeakBytes is the maximum of CurrentBytes observed since the last
	// Sample or Reset. PeakBytes >= CurrentBytes always holds.
	PeakBytes uint64
}

// String returns a human-readable string of the snapshot.
func (s TrackerStats) String() string {
	return fmt.Sprintf("LayerMemory[current %d B, peak %d B]", s.CurrentBytes, s.PeakBytes)
}
