// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package softdisplay implements display.Display and display.Surface in
// software. External images map their first plane's memory directly, so
// pixels painted through a kernel buffer's CPU mapping are visible
// through the imported image without a copy, the same observable
// behavior an EGL dma-buf import gives on real hardware. Tests and
// CPU-only compositing paths use it in place of a GPU display.
package softdisplay

import (
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
	"golang.org/x/sys/unix"

	"github.com/gogpu/layerbuf/display"
)

// Display is a software display. The zero value supports fences and
// external images.
//
// The exported fields inject failures for tests; leave them zero in
// production use.
type Display struct {
	// NoFences makes FencesSupported report false.
	NoFences bool

	// FenceErr, when non-nil, is returned by every CreateFence call.
	FenceErr error

	// ImageErr, when non-nil, is returned by every CreateExternalImage
	// call (the caller keeps ownership of the plane descriptors).
	ImageErr error

	mu       sync.Mutex
	next     display.TextureID
	textures map[display.TextureID]*Image
}

// New returns a software display.
func New() *Display { return &Display{} }

// FencesSupported implements display.Display.
func (d *Display) FencesSupported() bool { return !d.NoFences }

// CreateFence implements display.Display. Software work is complete by
// submission time, so the fence is born signaled.
func (d *Display) CreateFence() (display.Fence, error) {
	if d.NoFences {
		return nil, display.ErrFencesUnsupported
	}
	if d.FenceErr != nil {
		return nil, d.FenceErr
	}
	return signaledFence{}, nil
}

type signaledFence struct{}

func (signaledFence) Wait(display.FlushPolicy) {}

// CreateExternalImage implements display.Display. The attribute list must
// carry width, height, a supported fourcc and at least one plane; the
// first plane's memory is mapped so the image's pixels alias the
// exporter's buffer. All plane descriptors are consumed on success.
func (d *Display) CreateExternalImage(attrs display.AttributeList) (display.ExternalImage, error) {
	if d.ImageErr != nil {
		return nil, d.ImageErr
	}

	width, okW := attrs.Lookup(display.AttrWidth)
	height, okH := attrs.Lookup(display.AttrHeight)
	fourcc, okF := attrs.Lookup(display.AttrLinuxDRMFourCC)
	if !okW || !okH || !okF || width <= 0 || height <= 0 {
		return nil, display.ErrBadAttributeList
	}
	if _, ok := display.FormatFromFourCC(uint32(fourcc)); !ok {
		return nil, fmt.Errorf("%w: fourcc %#x", display.ErrBadAttributeList, fourcc)
	}

	planes := attrs.PlaneCount()
	if planes == 0 {
		return nil, display.ErrBadAttributeList
	}

	fds := make([]int, 0, planes)
	for i := 0; i < planes; i++ {
		fd, _ := attrs.Lookup(display.PlaneFD(i))
		fds = append(fds, int(fd))
	}
	pitch, _ := attrs.Lookup(display.PlanePitch(0))
	offset, _ := attrs.Lookup(display.PlaneOffset(0))
	if pitch <= 0 {
		return nil, display.ErrBadAttributeList
	}

	length := int(offset) + int(pitch)*int(height)
	data, err := unix.Mmap(fds[0], 0, length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("softdisplay: map plane 0: %w", err)
	}

	return &Image{
		size:   image.Pt(int(width), int(height)),
		stride: int(pitch),
		offset: int(offset),
		fds:    fds,
		data:   data,
	}, nil
}

// BindExternalTexture implements display.Display.
func (d *Display) BindExternalTexture(img display.ExternalImage) (display.TextureID, error) {
	si, ok := img.(*Image)
	if !ok {
		return 0, fmt.Errorf("softdisplay: foreign external image %T", img)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.textures == nil {
		d.textures = make(map[display.TextureID]*Image)
	}
	d.next++
	d.textures[d.next] = si
	return d.next, nil
}

// DestroyTexture implements display.Display.
func (d *Display) DestroyTexture(id display.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

// Texture returns the image bound to id, or nil. Compositor-side test
// hook standing in for GPU sampling.
func (d *Display) Texture(id display.TextureID) *Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textures[id]
}

// Image is a software external image aliasing the exporter's memory.
type Image struct {
	size   image.Point
	stride int
	offset int
	fds    []int
	data   []byte
}

var _ display.ExternalImage = (*Image)(nil)

// Size implements display.ExternalImage.
func (i *Image) Size() image.Point { return i.size }

// Stride returns the first plane's row pitch in bytes.
func (i *Image) Stride() int { return i.stride }

// Pixels returns a read-only view of the first plane's mapped memory.
// The view aliases the exporting buffer: bytes painted through the
// buffer's CPU mapping are visible here without a copy.
func (i *Image) Pixels() []byte {
	if i.data == nil {
		return nil
	}
	return i.data[i.offset:]
}

// Destroy implements display.ExternalImage: drops the mapping and closes
// the consumed plane descriptors.
func (i *Image) Destroy() {
	if i.data != nil {
		_ = unix.Munmap(i.data)
		i.data = nil
	}
	for _, fd := range i.fds {
		_ = unix.Close(fd)
	}
	i.fds = nil
}

// Surface is a software GPU surface backed by an RGBA pixmap. Flush
// assigns the backend texture handle on first submission.
type Surface struct {
	// DropTexture makes Texture return zero even after a flush. Test
	// hook for the missing-backend-texture integrity check.
	DropTexture bool

	pix     *image.RGBA
	saved   int
	texture display.TextureID
}

var _ display.Surface = (*Surface)(nil)

// surfaceTextures hands out process-unique software texture handles.
var surfaceTextures struct {
	mu   sync.Mutex
	next display.TextureID
}

// NewSurface creates a software surface of the given size.
func NewSurface(size image.Point) *Surface {
	return &Surface{
		pix: image.NewRGBA(image.Rectangle{Max: size}),
	}
}

// Size implements display.Surface.
func (s *Surface) Size() image.Point { return s.pix.Rect.Max }

// Format implements display.Surface.
func (s *Surface) Format() gputypes.TextureFormat { return gputypes.TextureFormatRGBA8Unorm }

// Save implements display.Surface.
func (s *Surface) Save() { s.saved++ }

// Restore implements display.Surface.
func (s *Surface) Restore() {
	if s.saved > 0 {
		s.saved--
	}
}

// Clear implements display.Surface: composites fully transparent pixels
// over the whole surface.
func (s *Surface) Clear() {
	draw.Draw(s.pix, s.pix.Rect, image.Transparent, image.Point{}, draw.Src)
}

// Flush implements display.Surface. Software painting is synchronous, so
// the syncCPU distinction collapses; the backend texture handle is
// assigned on the first flush.
func (s *Surface) Flush(bool) error {
	if s.texture == 0 {
		surfaceTextures.mu.Lock()
		surfaceTextures.next++
		s.texture = surfaceTextures.next
		surfaceTextures.mu.Unlock()
	}
	return nil
}

// Texture implements display.Surface.
func (s *Surface) Texture() display.TextureID {
	if s.DropTexture {
		return 0
	}
	return s.texture
}

// Release implements display.Surface.
func (s *Surface) Release() { s.pix = nil }

// Pixels returns the surface's pixmap. Test hook.
func (s *Surface) Pixels() *image.RGBA { return s.pix }
