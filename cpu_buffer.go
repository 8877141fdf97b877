package layerbuf

import (
	"image"
)

// CPUBuffer is a buffer backed by a plain zero-initialized heap
// allocation of width*height*4 bytes. Painting handoff is synchronous:
// BeginPainting/CompletePainting toggle the state under a lock and
// WaitUntilComplete blocks on the condition variable. No GPU interaction.
type CPUBuffer struct {
	refShared
	gate *paintGate

	flags   Flags
	size    image.Point
	tracker *MemoryTracker
	bytes   uint64

	data  []byte
	paint *image.RGBA
}

var _ Buffer = (*CPUBuffer)(nil)

// NewCPUBuffer creates a CPU-backed buffer. A nil tracker selects the
// process-wide default. If the requested dimensions cannot be allocated
// the buffer is returned unusable (see Usable) rather than nil; callers
// must check before painting.
func NewCPUBuffer(size image.Point, flags Flags, tracker *MemoryTracker) *CPUBuffer {
	if tracker == nil {
		tracker = DefaultTracker()
	}

	b := &CPUBuffer{
		gate:    newPaintGate(),
		flags:   flags,
		size:    size,
		tracker: tracker,
		bytes:   byteSize(size),
	}
	b.initRef(b.release)

	if b.bytes == 0 {
		Logger().Warn("layerbuf: cannot allocate CPU buffer", "width", size.X, "height", size.Y)
	} else {
		b.data = make([]byte, b.bytes)
		b.paint = &image.RGBA{
			Pix:    b.data,
			Stride: size.X * bytesPerPixel,
			Rect:   image.Rectangle{Max: size},
		}
	}

	b.tracker.Add(int64(b.bytes))
	return b
}

func (b *CPUBuffer) release() {
	b.data = nil
	b.paint = nil
	b.tracker.Add(-int64(b.bytes))
}

// Size returns the buffer's pixel dimensions.
func (b *CPUBuffer) Size() image.Point { return b.size }

// SupportsAlpha reports whether the buffer carries an alpha channel.
func (b *CPUBuffer) SupportsAlpha() bool { return b.flags&FlagSupportsAlpha != 0 }

// Usable reports whether the backing allocation succeeded.
func (b *CPUBuffer) Usable() bool { return b.data != nil }

// Data returns the raw pixel bytes, or nil for an unusable buffer.
func (b *CPUBuffer) Data() []byte { return b.data }

// Stride returns the row pitch in bytes.
func (b *CPUBuffer) Stride() int { return b.size.X * bytesPerPixel }

// Image returns the pixels wrapped as a premultiplied RGBA paint target,
// or nil for an unusable buffer.
func (b *CPUBuffer) Image() *image.RGBA { return b.paint }

// BeginPainting transitions to PaintingInProgress. Panics if a paint is
// already in flight.
func (b *CPUBuffer) BeginPainting() { b.gate.begin(nil) }

// CompletePainting transitions back to PaintingComplete and wakes a
// waiting consumer. Panics if no paint is in flight.
func (b *CPUBuffer) CompletePainting() { b.gate.complete() }

// WaitUntilComplete blocks until no paint is in flight.
func (b *CPUBuffer) WaitUntilComplete() { b.gate.wait(nil) }
