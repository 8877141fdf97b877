package layerbuf

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/layerbuf/display"
)

// mockSurface records the calls a SurfaceBuffer makes.
type mockSurface struct {
	size     image.Point
	saves    int
	restores int
	clears   int
	flushes  []bool // sync flag of each Flush call
	texture  display.TextureID
	released bool
}

func (s *mockSurface) Size() image.Point              { return s.size }
func (s *mockSurface) Format() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (s *mockSurface) Save()                          { s.saves++ }
func (s *mockSurface) Restore()                       { s.restores++ }
func (s *mockSurface) Clear()                         { s.clears++ }
func (s *mockSurface) Texture() display.TextureID     { return s.texture }
func (s *mockSurface) Release()                       { s.released = true }

func (s *mockSurface) Flush(syncCPU bool) error {
	s.flushes = append(s.flushes, syncCPU)
	return nil
}

// mockFence records waits.
type mockFence struct {
	waits    int
	policies []display.FlushPolicy
}

func (f *mockFence) Wait(p display.FlushPolicy) {
	f.waits++
	f.policies = append(f.policies, p)
}

// mockDisplay controls fence availability.
type mockDisplay struct {
	noFences bool
	fenceErr error
	fences   []*mockFence
}

func (d *mockDisplay) FencesSupported() bool { return !d.noFences }

func (d *mockDisplay) CreateFence() (display.Fence, error) {
	if d.fenceErr != nil {
		return nil, d.fenceErr
	}
	f := &mockFence{}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *mockDisplay) CreateExternalImage(display.AttributeList) (display.ExternalImage, error) {
	return nil, display.ErrExternalImagesUnsupported
}

func (d *mockDisplay) BindExternalTexture(display.ExternalImage) (display.TextureID, error) {
	return 0, display.ErrExternalImagesUnsupported
}

func (d *mockDisplay) DestroyTexture(display.TextureID) {}

func newMockSurface(w, h int) *mockSurface {
	return &mockSurface{size: image.Pt(w, h), texture: 7}
}

func TestSurfaceBufferSizeFromSurface(t *testing.T) {
	s := newMockSurface(320, 240)
	b := NewSurfaceBuffer(&mockDisplay{}, s, FlagSupportsAlpha, &MemoryTracker{})
	defer b.Unref()

	if got := b.Size(); got != image.Pt(320, 240) {
		t.Errorf("Size() = %v, want (320,240)", got)
	}

	// Queried live, not cached.
	s.size = image.Pt(64, 64)
	if got := b.Size(); got != image.Pt(64, 64) {
		t.Errorf("Size() = %v, want live surface size", got)
	}
}

func TestSurfaceBufferBeginPainting(t *testing.T) {
	s := newMockSurface(10, 10)
	b := NewSurfaceBuffer(&mockDisplay{}, s, NoFlags, &MemoryTracker{})
	defer b.Unref()

	b.BeginPainting()
	if s.saves != 1 || s.clears != 1 {
		t.Errorf("saves = %d, clears = %d, want 1 each", s.saves, s.clears)
	}
}

func TestSurfaceBufferFencePath(t *testing.T) {
	s := newMockSurface(10, 10)
	d := &mockDisplay{}
	b := NewSurfaceBuffer(d, s, NoFlags, &MemoryTracker{})
	defer b.Unref()

	b.BeginPainting()
	b.CompletePainting()

	if s.restores != 1 {
		t.Errorf("restores = %d, want 1", s.restores)
	}
	if len(s.flushes) != 1 || s.flushes[0] != false {
		t.Errorf("flushes = %v, want one async flush", s.flushes)
	}
	if len(d.fences) != 1 {
		t.Fatalf("fences created = %d, want 1", len(d.fences))
	}
	if got := b.Texture(); got != 7 {
		t.Errorf("Texture() = %d, want 7", got)
	}

	b.WaitUntilComplete()
	f := d.fences[0]
	if f.waits != 1 {
		t.Errorf("fence waits = %d, want 1", f.waits)
	}
	if f.policies[0] != display.FlushNone {
		t.Errorf("wait policy = %v, want FlushNone", f.policies[0])
	}

	// Fence discarded: second wait is a no-op.
	b.WaitUntilComplete()
	if f.waits != 1 {
		t.Errorf("fence waits after second call = %d, want 1", f.waits)
	}
}

func TestSurfaceBufferFenceCreationFails(t *testing.T) {
	s := newMockSurface(10, 10)
	d := &mockDisplay{fenceErr: errors.New("exhausted")}
	b := NewSurfaceBuffer(d, s, NoFlags, &MemoryTracker{})
	defer b.Unref()

	b.BeginPainting()
	b.CompletePainting()

	// Async flush attempted, then blocking fallback.
	want := []bool{false, true}
	if len(s.flushes) != 2 || s.flushes[0] != want[0] || s.flushes[1] != want[1] {
		t.Errorf("flushes = %v, want %v", s.flushes, want)
	}

	// No fence: wait is a no-op.
	b.WaitUntilComplete()
}

func TestSurfaceBufferNoFenceSupport(t *testing.T) {
	s := newMockSurface(10, 10)
	d := &mockDisplay{noFences: true}
	b := NewSurfaceBuffer(d, s, NoFlags, &MemoryTracker{})
	defer b.Unref()

	b.BeginPainting()
	b.CompletePainting()

	if len(s.flushes) != 1 || s.flushes[0] != true {
		t.Errorf("flushes = %v, want one blocking flush", s.flushes)
	}
}

func TestSurfaceBufferMissingTexturePanics(t *testing.T) {
	s := newMockSurface(10, 10)
	s.texture = 0
	b := NewSurfaceBuffer(&mockDisplay{}, s, NoFlags, &MemoryTracker{})
	defer func() {
		if recover() == nil {
			t.Error("expected panic on missing backend texture")
		}
		b.Unref()
	}()

	b.BeginPainting()
	b.CompletePainting()
}

func TestSurfaceBufferRelease(t *testing.T) {
	tr := &MemoryTracker{}
	s := newMockSurface(16, 16)
	b := NewSurfaceBuffer(&mockDisplay{}, s, NoFlags, tr)

	if got := tr.Stats().CurrentBytes; got != 16*16*4 {
		t.Errorf("CurrentBytes = %d, want %d", got, 16*16*4)
	}

	b.Unref()
	if !s.released {
		t.Error("surface not released with last reference")
	}
	if got := tr.Stats().CurrentBytes; got != 0 {
		t.Errorf("CurrentBytes = %d, want 0 after release", got)
	}
}
