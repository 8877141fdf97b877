package layerbuf

import (
	"image"
	"sync"

	"github.com/gogpu/layerbuf/display"
)

// SurfaceBuffer is a buffer backed by a GPU-drawable surface. The
// painting handoff rides on GPU fences instead of CPU blocking: the
// semantic guarantee ("has the previous paint's GPU work finished")
// is the same as the explicit state machine of the other variants,
// without a CPU-visible state flag.
//
// Surface ownership transfers in at construction and the surface is
// released with the buffer's last reference.
type SurfaceBuffer struct {
	refShared

	flags   Flags
	dpy     display.Display
	surface display.Surface
	tracker *MemoryTracker
	bytes   uint64

	mu      sync.Mutex
	fence   display.Fence
	texture display.TextureID
}

var _ Buffer = (*SurfaceBuffer)(nil)

// NewSurfaceBuffer wraps an existing GPU surface. dpy provides fence
// primitives for the painting handoff. A nil tracker selects the
// process-wide default.
func NewSurfaceBuffer(dpy display.Display, surface display.Surface, flags Flags, tracker *MemoryTracker) *SurfaceBuffer {
	if tracker == nil {
		tracker = DefaultTracker()
	}

	b := &SurfaceBuffer{
		flags:   flags,
		dpy:     dpy,
		surface: surface,
		tracker: tracker,
		bytes:   byteSize(surface.Size()),
	}
	b.initRef(b.release)
	b.tracker.Add(int64(b.bytes))
	return b
}

func (b *SurfaceBuffer) release() {
	b.surface.Release()
	b.tracker.Add(-int64(b.bytes))
}

// Size returns the surface dimensions, queried live from the surface.
func (b *SurfaceBuffer) Size() image.Point { return b.surface.Size() }

// SupportsAlpha reports whether the buffer carries an alpha channel.
func (b *SurfaceBuffer) SupportsAlpha() bool { return b.flags&FlagSupportsAlpha != 0 }

// BeginPainting saves the surface drawing state and clears it to fully
// transparent.
func (b *SurfaceBuffer) BeginPainting() {
	b.surface.Save()
	b.surface.Clear()
}

// CompletePainting restores the drawing state and submits the recorded
// GPU work. When the display supports fences the submit is asynchronous
// and a fence carries completion; if fence creation fails the submit
// falls back to blocking until the GPU finishes. Afterward the backend
// texture handle is extracted and cached: rendering cannot proceed
// without it, so a missing handle is a fatal integrity violation.
func (b *SurfaceBuffer) CompletePainting() {
	b.surface.Restore()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dpy.FencesSupported() {
		_ = b.surface.Flush(false)
		fence, err := b.dpy.CreateFence()
		if err != nil {
			_ = b.surface.Flush(true)
		} else {
			b.fence = fence
		}
	} else {
		_ = b.surface.Flush(true)
	}

	texture := b.surface.Texture()
	if texture == 0 {
		panic("layerbuf: surface produced no backend texture after flush")
	}
	b.texture = texture
}

// WaitUntilComplete waits on the fence from the previous paint, if one
// exists, without flushing, then discards it. Idempotent: no fence means
// the paint has already been observed and the call is a no-op.
func (b *SurfaceBuffer) WaitUntilComplete() {
	b.mu.Lock()
	fence := b.fence
	b.fence = nil
	b.mu.Unlock()

	if fence == nil {
		return
	}
	fence.Wait(display.FlushNone)
}

// Texture returns the backend texture handle cached by the last
// CompletePainting, or zero before the first paint.
func (b *SurfaceBuffer) Texture() display.TextureID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.texture
}
