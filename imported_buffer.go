package layerbuf

import (
	"image"

	"github.com/gogpu/layerbuf/alloc"
	"github.com/gogpu/layerbuf/display"
)

// ImportedBuffer is a buffer backed by kernel-allocated memory shared
// with the GPU via zero-copy import. Painting happens through an
// on-demand CPU mapping; once painting completes and the consumer has
// observed it, the mapping is dropped and the stable memory can be
// imported as a GPU texture (see EnsureTexture).
type ImportedBuffer struct {
	refShared
	gate *paintGate

	flags   Flags
	size    image.Point
	tracker *MemoryTracker
	bytes   uint64

	// bo is nil when allocation failed; the buffer is then degraded and
	// Usable reports false.
	bo alloc.BufferObject

	// CPU mapping state, guarded by the paint gate's lock through the
	// single-painter contract.
	data   []byte
	stride uint32
	paint  *image.RGBA

	// GPU import state, written once by EnsureTexture.
	dpy     display.Display
	img     display.ExternalImage
	texture display.TextureID
}

var _ Buffer = (*ImportedBuffer)(nil)

// NewImportedBuffer allocates kernel memory for a size.X by size.Y buffer
// in ARGB8888, preferring a linear layout and falling back to an
// unconstrained allocation. Allocation failure leaves the buffer in a
// degraded state surfaced through a log and Usable() == false;
// construction still returns the buffer. A nil tracker selects the
// process-wide default.
func NewImportedBuffer(dev alloc.Device, size image.Point, flags Flags, tracker *MemoryTracker) *ImportedBuffer {
	if tracker == nil {
		tracker = DefaultTracker()
	}

	b := &ImportedBuffer{
		gate:    newPaintGate(),
		flags:   flags,
		size:    size,
		tracker: tracker,
		bytes:   byteSize(size),
	}
	b.initRef(b.release)
	b.createBufferObject(dev)

	b.tracker.Add(int64(b.bytes))
	return b
}

func (b *ImportedBuffer) createBufferObject(dev alloc.Device) {
	if dev == nil {
		Logger().Warn("layerbuf: cannot allocate kernel buffer",
			"width", b.size.X, "height", b.size.Y, "error", alloc.ErrNoDevice)
		return
	}

	bo, err := dev.CreateBuffer(b.size, alloc.FormatARGB8888, []uint64{alloc.ModifierLinear})
	if err != nil {
		bo, err = dev.CreateBuffer(b.size, alloc.FormatARGB8888, nil)
	}
	if err != nil {
		Logger().Warn("layerbuf: cannot allocate kernel buffer",
			"width", b.size.X, "height", b.size.Y, "error", err)
		return
	}
	b.bo = bo
}

func (b *ImportedBuffer) release() {
	if b.texture != 0 {
		b.dpy.DestroyTexture(b.texture)
		b.texture = 0
	}
	if b.img != nil {
		b.img.Destroy()
		b.img = nil
	}
	if b.bo != nil {
		b.unmap()
		b.bo.Destroy()
		b.bo = nil
	}
	b.tracker.Add(-int64(b.bytes))
}

// Size returns the buffer's pixel dimensions.
func (b *ImportedBuffer) Size() image.Point { return b.size }

// SupportsAlpha reports whether the buffer carries an alpha channel.
func (b *ImportedBuffer) SupportsAlpha() bool { return b.flags&FlagSupportsAlpha != 0 }

// Usable reports whether the kernel allocation succeeded.
func (b *ImportedBuffer) Usable() bool { return b.bo != nil }

// Data maps the buffer if needed and returns the CPU view, or nil for a
// degraded buffer. The view is valid until WaitUntilComplete unmaps it.
func (b *ImportedBuffer) Data() []byte {
	b.mapBuffer()
	return b.data
}

// Stride returns the mapped row pitch in bytes, or zero before the first
// mapping.
func (b *ImportedBuffer) Stride() int { return int(b.stride) }

// Image returns the mapped pixels wrapped as a premultiplied RGBA paint
// target at the reported stride, or nil when unmapped.
func (b *ImportedBuffer) Image() *image.RGBA { return b.paint }

// mapBuffer maps the kernel memory on first use. Idempotent: re-entrant
// calls skip remapping.
func (b *ImportedBuffer) mapBuffer() {
	if b.paint != nil || b.bo == nil {
		return
	}
	data, stride, err := b.bo.Map()
	if err != nil {
		Logger().Warn("layerbuf: cannot map kernel buffer",
			"width", b.size.X, "height", b.size.Y, "error", err)
		return
	}
	b.data = data
	b.stride = stride
	b.paint = &image.RGBA{
		Pix:    data,
		Stride: int(stride),
		Rect:   image.Rectangle{Max: b.size},
	}
}

func (b *ImportedBuffer) unmap() {
	if b.data == nil {
		return
	}
	b.bo.Unmap()
	b.data = nil
	b.paint = nil
}

// BeginPainting transitions to PaintingInProgress, mapping the kernel
// memory into CPU-addressable space if it is not already mapped. Panics
// if a paint is already in flight.
func (b *ImportedBuffer) BeginPainting() {
	b.gate.begin(b.mapBuffer)
}

// CompletePainting transitions back to PaintingComplete and wakes a
// waiting consumer. The kernel memory is the source of truth, so no GPU
// synchronization is involved. Panics if no paint is in flight.
func (b *ImportedBuffer) CompletePainting() { b.gate.complete() }

// WaitUntilComplete blocks until no paint is in flight, then drops the
// CPU mapping: the buffer is about to be sampled by the GPU and the
// mapping must not outlive the paint.
func (b *ImportedBuffer) WaitUntilComplete() {
	b.gate.wait(b.unmap)
}

// Texture returns the GPU texture handle created by EnsureTexture, or
// zero while no import has succeeded.
func (b *ImportedBuffer) Texture() display.TextureID { return b.texture }
