// Package layerbuf manages GPU-paintable pixel buffers for a compositing
// pipeline: allocation, double-buffered painting synchronization,
// cross-process texture import, and pooled reuse across frames.
//
// # Overview
//
// A painter acquires a buffer from a [BufferPool], paints into it between
// [Buffer.BeginPainting] and [Buffer.CompletePainting], and the compositor
// calls [Buffer.WaitUntilComplete] before sampling the result. Three buffer
// variants share this lifecycle:
//
//   - [CPUBuffer]: a plain heap allocation, painted and sampled on the CPU.
//   - [SurfaceBuffer]: wraps a GPU-drawable surface; the painting handoff
//     uses GPU fences instead of CPU blocking.
//   - [ImportedBuffer]: wraps kernel-allocated memory (dma-buf style),
//     painted through an on-demand CPU mapping and imported zero-copy into
//     a GPU texture via an external-image extension.
//
// # Collaborators
//
// The kernel allocator and the display/GPU stack are injected, not owned:
//
//   - [github.com/gogpu/layerbuf/alloc] defines the kernel buffer allocator
//     contract; alloc/memalloc provides a memfd-backed implementation.
//   - [github.com/gogpu/layerbuf/display] defines the display contract
//     (external images, fences, surfaces); display/haldisplay adapts a
//     gogpu/wgpu HAL device, display/softdisplay is a software stand-in.
//
// # Memory accounting
//
// Every buffer construction and destruction adjusts a process-wide
// [MemoryTracker]. An external metrics consumer samples the peak usage
// since its previous sample with [MemoryTracker.Sample].
//
// # Quick start
//
//	dev := memalloc.New()
//	pool := layerbuf.NewBufferPool(dev, layerbuf.PoolOptions{})
//	defer pool.Close()
//
//	buf := pool.AcquireBuffer(image.Pt(256, 256), true)
//	if buf == nil {
//	    // allocation failed; skip the frame
//	}
//	buf.BeginPainting()
//	// ... write pixels via buf.Data() / buf.Image() ...
//	buf.CompletePainting()
//
//	// compositor side:
//	buf.WaitUntilComplete()
//	_ = buf.EnsureTexture(dpy) // zero-copy GPU import
//	buf.Unref()
package layerbuf
