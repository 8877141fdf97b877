package layerbuf

import (
	"image"
	"testing"
	"time"
)

func TestPaintingStateString(t *testing.T) {
	tests := []struct {
		state PaintingState
		want  string
	}{
		{PaintingComplete, "Complete"},
		{PaintingInProgress, "InProgress"},
		{PaintingState(7), "Unknown(7)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// mustPanic asserts that fn panics.
func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestPaintGateAlternation(t *testing.T) {
	g := newPaintGate()

	if g.current() != PaintingComplete {
		t.Fatalf("initial state = %v, want Complete", g.current())
	}

	for i := 0; i < 3; i++ {
		g.begin(nil)
		if g.current() != PaintingInProgress {
			t.Fatalf("after begin: state = %v", g.current())
		}
		g.complete()
		if g.current() != PaintingComplete {
			t.Fatalf("after complete: state = %v", g.current())
		}
	}
}

func TestPaintGateViolations(t *testing.T) {
	t.Run("double begin", func(t *testing.T) {
		g := newPaintGate()
		g.begin(nil)
		mustPanic(t, "begin while InProgress", func() { g.begin(nil) })
	})

	t.Run("complete without begin", func(t *testing.T) {
		g := newPaintGate()
		mustPanic(t, "complete while Complete", func() { g.complete() })
	})
}

func TestPaintGatePrepareRunsBeforeTransition(t *testing.T) {
	g := newPaintGate()
	var seen PaintingState
	g.begin(func() { seen = g.state })
	if seen != PaintingComplete {
		t.Errorf("prepare observed state %v, want Complete", seen)
	}
}

func TestPaintGateWaitBlocksUntilComplete(t *testing.T) {
	g := newPaintGate()
	g.begin(nil)

	done := make(chan struct{})
	go func() {
		g.wait(nil)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned while painting in progress")
	case <-time.After(20 * time.Millisecond):
	}

	g.complete()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after complete")
	}
}

func TestPaintGateWaitIdleReturnsImmediately(t *testing.T) {
	g := newPaintGate()
	done := make(chan struct{})
	go func() {
		g.wait(nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait blocked with no paint in flight")
	}
}

func TestPaintGateWaitThenRunsUnderLock(t *testing.T) {
	g := newPaintGate()
	ran := false
	g.wait(func() { ran = true })
	if !ran {
		t.Error("then callback did not run")
	}
}

func TestRefShared(t *testing.T) {
	released := 0
	var r refShared
	r.initRef(func() { released++ })

	if !r.HasOneRef() {
		t.Error("fresh object should have exactly one ref")
	}

	r.Ref()
	if r.HasOneRef() {
		t.Error("HasOneRef true with two refs")
	}

	r.Unref()
	if released != 0 {
		t.Error("released too early")
	}
	r.Unref()
	if released != 1 {
		t.Errorf("released %d times, want 1", released)
	}
}

func TestRefSharedMisuse(t *testing.T) {
	t.Run("unref past zero", func(t *testing.T) {
		var r refShared
		r.initRef(func() {})
		r.Unref()
		mustPanic(t, "extra Unref", func() { r.Unref() })
	})

	t.Run("ref after destroy", func(t *testing.T) {
		var r refShared
		r.initRef(func() {})
		r.Unref()
		mustPanic(t, "Ref after destroy", func() { r.Ref() })
	})
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		size image.Point
		want uint64
	}{
		{image.Pt(100, 100), 40000},
		{image.Pt(1, 1), 4},
		{image.Pt(0, 100), 0},
		{image.Pt(-1, 5), 0},
	}
	for _, tt := range tests {
		if got := byteSize(tt.size); got != tt.want {
			t.Errorf("byteSize(%v) = %d, want %d", tt.size, got, tt.want)
		}
	}
}
