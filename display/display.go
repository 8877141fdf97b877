// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package display defines the display/GPU collaborator contract used by
// layerbuf: creating external images from kernel buffer planes, binding
// them as sampleable textures, fencing submitted GPU work, and painting
// into GPU-drawable surfaces.
//
// Implementations adapt a concrete stack: display/haldisplay wraps a
// gogpu/wgpu HAL device, display/softdisplay is a software stand-in for
// tests and CPU-only compositing.
package display

import (
	"errors"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/layerbuf/alloc"
)

// Display errors.
var (
	// ErrExternalImagesUnsupported is returned by displays that cannot
	// import externally allocated memory.
	ErrExternalImagesUnsupported = errors.New("display: external images not supported")

	// ErrFencesUnsupported is returned by CreateFence when the display
	// reports FencesSupported() == false.
	ErrFencesUnsupported = errors.New("display: fences not supported")

	// ErrBadAttributeList is returned when an attribute list is missing
	// required keys or describes an unsupported layout.
	ErrBadAttributeList = errors.New("display: malformed attribute list")
)

// TextureID is a backend texture name. Zero is never a valid texture.
type TextureID uint32

// ExternalImage is a GPU object wrapping externally allocated memory for
// direct sampling without a copy.
type ExternalImage interface {
	// Size returns the image dimensions.
	Size() image.Point

	// Destroy releases the image. The plane memory it wraps outlives it.
	Destroy()
}

// FlushPolicy selects whether a fence wait may flush pending commands.
type FlushPolicy int

const (
	// FlushNone waits on already-submitted work without flushing.
	FlushNone FlushPolicy = iota

	// FlushCommands flushes pending commands before waiting.
	FlushCommands
)

// Fence is a GPU completion fence. Wait blocks the calling goroutine
// until the work submitted before the fence's creation has finished.
type Fence interface {
	Wait(policy FlushPolicy)
}

// Display is the platform display/GPU context collaborator.
type Display interface {
	// FencesSupported reports whether CreateFence can succeed at all.
	FencesSupported() bool

	// CreateFence inserts a fence after the currently submitted work.
	// Creation never blocks; only Fence.Wait does.
	CreateFence() (Fence, error)

	// CreateExternalImage wraps externally allocated memory described by
	// attrs. The plane file descriptors in attrs are consumed: on
	// success they belong to the image, and they must not be reused by
	// the caller afterward. On failure the caller still owns them.
	CreateExternalImage(attrs AttributeList) (ExternalImage, error)

	// BindExternalTexture allocates a texture name, binds the image as
	// its backing storage and applies linear filtering with edge-clamp
	// wrapping. The returned id is valid until DestroyTexture.
	BindExternalTexture(img ExternalImage) (TextureID, error)

	// DestroyTexture releases a texture name from BindExternalTexture.
	DestroyTexture(id TextureID)
}

// Surface is a GPU-drawable surface a SurfaceBuffer paints into.
// Ownership transfers to the buffer at construction.
type Surface interface {
	// Size returns the surface dimensions, queried live.
	Size() image.Point

	// Format returns the surface pixel format.
	Format() gputypes.TextureFormat

	// Save pushes the drawing state.
	Save()

	// Restore pops the drawing state.
	Restore()

	// Clear clears the surface to fully transparent.
	Clear()

	// Flush submits recorded GPU work. With syncCPU the call blocks the
	// caller until the GPU finishes; without it the submit is
	// asynchronous and completion is observed through a fence.
	Flush(syncCPU bool) error

	// Texture returns the backend texture produced by the last Flush,
	// or zero if none exists yet.
	Texture() TextureID

	// Release destroys the surface.
	Release()
}

// Attr is an attribute key in an external image attribute list. The
// values follow EGL_EXT_image_dma_buf_import and its modifiers extension
// so that EGL-backed displays can pass lists through unchanged.
type Attr int64

// Buffer-level attribute keys.
const (
	AttrWidth          Attr = 0x3057
	AttrHeight         Attr = 0x3056
	AttrLinuxDRMFourCC Attr = 0x3271
)

// planeKeys holds the per-plane attribute keys, indexed by plane.
var planeKeys = [alloc.MaxPlanes]struct {
	fd, offset, pitch, modLo, modHi Attr
}{
	{0x3272, 0x3273, 0x3274, 0x3443, 0x3444},
	{0x3275, 0x3276, 0x3277, 0x3445, 0x3446},
	{0x3278, 0x3279, 0x327A, 0x3447, 0x3448},
	{0x3440, 0x3441, 0x3442, 0x3449, 0x344A},
}

// PlaneFD returns the file descriptor key for plane i (0 <= i < MaxPlanes).
func PlaneFD(i int) Attr { return planeKeys[i].fd }

// PlaneOffset returns the byte offset key for plane i.
func PlaneOffset(i int) Attr { return planeKeys[i].offset }

// PlanePitch returns the row pitch key for plane i.
func PlanePitch(i int) Attr { return planeKeys[i].pitch }

// PlaneModifierLo returns the modifier low-half key for plane i.
func PlaneModifierLo(i int) Attr { return planeKeys[i].modLo }

// PlaneModifierHi returns the modifier high-half key for plane i.
func PlaneModifierHi(i int) Attr { return planeKeys[i].modHi }

// AttributeList is a flat key/value attribute list for external image
// creation, in the layout EGL expects (key, value, key, value, ...).
type AttributeList []int64

// Add appends one key/value pair.
func (l *AttributeList) Add(key Attr, value int64) {
	*l = append(*l, int64(key), value)
}

// Lookup returns the value for key and whether it is present.
func (l AttributeList) Lookup(key Attr) (int64, bool) {
	for i := 0; i+1 < len(l); i += 2 {
		if Attr(l[i]) == key {
			return l[i+1], true
		}
	}
	return 0, false
}

// PlaneCount returns the number of planes present in the list, judged by
// consecutive plane FD keys.
func (l AttributeList) PlaneCount() int {
	n := 0
	for n < alloc.MaxPlanes {
		if _, ok := l.Lookup(PlaneFD(n)); !ok {
			break
		}
		n++
	}
	return n
}

// FormatFromFourCC maps a DRM pixel format code to the equivalent GPU
// texture format. The second result is false for unsupported codes.
func FormatFromFourCC(fourcc uint32) (gputypes.TextureFormat, bool) {
	switch fourcc {
	case alloc.FormatARGB8888, alloc.FormatXRGB8888:
		return gputypes.TextureFormatBGRA8Unorm, true
	case alloc.FormatABGR8888:
		return gputypes.TextureFormatRGBA8Unorm, true
	default:
		return 0, false
	}
}
