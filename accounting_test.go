package layerbuf

import (
	"strings"
	"sync"
	"testing"
)

func TestTrackerAdd(t *testing.T) {
	tr := &MemoryTracker{}

	tr.Add(100)
	tr.Add(50)
	if got := tr.Stats(); got.CurrentBytes != 150 || got.PeakBytes != 150 {
		t.Errorf("Stats() = %+v, want current 150, peak 150", got)
	}

	tr.Add(-50)
	if got := tr.Stats(); got.CurrentBytes != 100 {
		t.Errorf("CurrentBytes = %d, want 100", got.CurrentBytes)
	}
	if got := tr.Stats(); got.PeakBytes != 150 {
		t.Errorf("PeakBytes = %d, want 150 (peak must not drop on release)", got.PeakBytes)
	}
}

func TestTrackerPeakInvariant(t *testing.T) {
	tr := &MemoryTracker{}

	deltas := []int64{10, 20, -5, 100, -100, 3, -3, -25}
	for _, d := range deltas {
		tr.Add(d)
		s := tr.Stats()
		if s.PeakBytes < s.CurrentBytes {
			t.Fatalf("after Add(%d): peak %d < current %d", d, s.PeakBytes, s.CurrentBytes)
		}
	}
}

func TestTrackerUnderflowClamps(t *testing.T) {
	tr := &MemoryTracker{}
	tr.Add(10)
	tr.Add(-30)
	if got := tr.Stats().CurrentBytes; got != 0 {
		t.Errorf("CurrentBytes = %d, want 0 after over-release", got)
	}
}

func TestTrackerSample(t *testing.T) {
	tr := &MemoryTracker{}

	tr.Add(200)
	tr.Add(-200)
	tr.Add(80)

	// Peak across the window was 200 even though only 80 bytes are live.
	if got := tr.Sample(); got != 200 {
		t.Errorf("Sample() = %d, want 200", got)
	}

	// Sampling reset the baseline to the current total.
	if got := tr.Sample(); got != 80 {
		t.Errorf("second Sample() = %d, want 80", got)
	}
}

func TestTrackerReset(t *testing.T) {
	tr := &MemoryTracker{}

	tr.Add(500)
	tr.Add(-400)
	tr.Reset()

	if got := tr.Stats(); got.PeakBytes != 100 || got.CurrentBytes != 100 {
		t.Errorf("after Reset: %+v, want peak == current == 100", got)
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := &MemoryTracker{}

	const workers = 8
	const rounds = 1000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				tr.Add(64)
				tr.Add(-64)
			}
		}()
	}
	wg.Wait()

	if got := tr.Stats().CurrentBytes; got != 0 {
		t.Errorf("CurrentBytes = %d, want 0 after balanced adds", got)
	}
	if got := tr.Stats().PeakBytes; got < 64 {
		t.Errorf("PeakBytes = %d, want >= 64", got)
	}
}

func TestTrackerStatsString(t *testing.T) {
	s := TrackerStats{CurrentBytes: 1024, PeakBytes: 4096}
	str := s.String()
	if !strings.Contains(str, "1024") || !strings.Contains(str, "4096") {
		t.Errorf("String() = %q, want both counters present", str)
	}
}

func TestDefaultTrackerShared(t *testing.T) {
	if DefaultTracker() != DefaultTracker() {
		t.Error("DefaultTracker must return the same instance")
	}
}
