// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package alloc defines the kernel buffer allocator contract: a device
// that allocates pixel buffers exportable as per-plane file descriptors
// for zero-copy sharing with the GPU, in the manner of GBM/dma-buf.
//
// The package holds only the contract and the DRM format/modifier
// vocabulary; alloc/memalloc provides a memfd-backed implementation.
package alloc

import (
	"errors"
	"image"

	"golang.org/x/sys/unix"
)

// Allocator errors.
var (
	// ErrNoDevice is returned when no allocator device is available.
	ErrNoDevice = errors.New("alloc: no buffer device available")

	// ErrUnsupportedModifier is returned when none of the requested
	// layout modifiers can be satisfied.
	ErrUnsupportedModifier = errors.New("alloc: unsupported layout modifier")

	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("alloc: buffer object has been destroyed")

	// ErrPlaneOutOfRange is returned for a plane index outside the
	// buffer's plane count.
	ErrPlaneOutOfRange = errors.New("alloc: plane index out of range")
)

// FourCC packs four characters into a little-endian DRM pixel format code.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// DRM pixel format codes for the 32-bit formats the compositor paints.
var (
	// FormatARGB8888 is [31:0] A:R:G:B 8:8:8:8 little endian.
	FormatARGB8888 = FourCC('A', 'R', '2', '4')

	// FormatXRGB8888 is [31:0] x:R:G:B 8:8:8:8 little endian.
	FormatXRGB8888 = FourCC('X', 'R', '2', '4')

	// FormatABGR8888 is [31:0] A:B:G:R 8:8:8:8 little endian.
	FormatABGR8888 = FourCC('A', 'B', '2', '4')
)

// Layout modifiers. The modifier describes the buffer's memory tiling;
// GPU import needs it to interpret non-linear layouts.
const (
	// ModifierLinear is a plain row-major layout.
	ModifierLinear uint64 = 0

	// ModifierInvalid means the layout is unknown or unspecified.
	// Buffers reporting it must not append modifier attributes on import.
	ModifierInvalid uint64 = 0x00ffffffffffffff
)

// MaxPlanes bounds the per-buffer plane count the import path handles.
const MaxPlanes = 4

// PlaneInfo describes one exported plane of a buffer object. The file
// descriptor is owned by the receiver: it must be handed to exactly one
// consumer (image creation) or closed.
type PlaneInfo struct {
	// FD is a dup'd file descriptor referring to the plane's memory.
	FD int

	// Offset is the plane's byte offset within the buffer.
	Offset uint32

	// Stride is the plane's row pitch in bytes.
	Stride uint32
}

// Close releases the plane's file descriptor. Call it when the plane is
// not consumed by image creation.
func (p PlaneInfo) Close() error {
	if p.FD < 0 {
		return nil
	}
	return unix.Close(p.FD)
}

// BufferObject is one kernel-allocated pixel buffer.
//
// Map and Unmap bracket CPU access; Plane exports a plane for GPU import.
// Implementations need not be safe for concurrent use: a buffer object is
// driven by its owning Buffer, which serializes access.
type BufferObject interface {
	// Size returns the buffer's pixel dimensions.
	Size() image.Point

	// Format returns the DRM pixel format code.
	Format() uint32

	// Modifier returns the layout modifier, or ModifierInvalid when the
	// layout was not negotiated.
	Modifier() uint64

	// PlaneCount returns the number of memory planes.
	PlaneCount() int

	// Plane exports plane i as a file descriptor plus offset and stride.
	// Each call dups the descriptor; the caller owns it.
	Plane(i int) (PlaneInfo, error)

	// Map makes the buffer CPU-addressable and returns the mapping and
	// its row stride. The mapping stays valid until Unmap.
	Map() (data []byte, stride uint32, err error)

	// Unmap drops the CPU mapping. No-op if not mapped.
	Unmap()

	// Destroy releases the kernel buffer. The object is unusable after.
	Destroy()
}

// Device allocates buffer objects.
type Device interface {
	// CreateBuffer allocates a size.X by size.Y buffer with the given
	// DRM pixel format. modifiers, when non-empty, restricts the layouts
	// the allocator may pick; an empty slice leaves the layout to the
	// allocator (the resulting object reports ModifierInvalid).
	CreateBuffer(size image.Point, format uint32, modifiers []uint64) (BufferObject, error)
}
