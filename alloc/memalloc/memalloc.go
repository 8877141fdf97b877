// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package memalloc implements alloc.Device over anonymous memfd memory.
//
// Buffers are single-plane, linear, and exportable as real file
// descriptors, so the full paint/map/export/import cycle can run without
// a kernel GPU allocator. Software compositing paths and tests use it in
// place of a GBM device.
package memalloc

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/sys/unix"

	"github.com/gogpu/layerbuf/alloc"
)

// ErrInvalidSize is returned for non-positive buffer dimensions.
var ErrInvalidSize = errors.New("memalloc: invalid buffer size")

// ErrUnsupportedFormat is returned for pixel formats other than the
// 32-bit ones the compositor paints.
var ErrUnsupportedFormat = errors.New("memalloc: unsupported pixel format")

// Device allocates memfd-backed buffer objects. The zero value is ready
// to use.
type Device struct{}

// New returns a memfd-backed allocator device.
func New() *Device { return &Device{} }

// CreateBuffer implements alloc.Device. Only linear layouts exist here:
// requesting modifiers without alloc.ModifierLinear fails, requesting it
// yields a buffer reporting ModifierLinear, and an unconstrained request
// yields one reporting ModifierInvalid, like a plain allocation whose
// layout was never negotiated.
func (d *Device) CreateBuffer(size image.Point, format uint32, modifiers []uint64) (alloc.BufferObject, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, ErrInvalidSize
	}
	switch format {
	case alloc.FormatARGB8888, alloc.FormatXRGB8888, alloc.FormatABGR8888:
	default:
		return nil, ErrUnsupportedFormat
	}

	modifier := alloc.ModifierInvalid
	if len(modifiers) > 0 {
		linear := false
		for _, m := range modifiers {
			if m == alloc.ModifierLinear {
				linear = true
				break
			}
		}
		if !linear {
			return nil, alloc.ErrUnsupportedModifier
		}
		modifier = alloc.ModifierLinear
	}

	stride := uint32(size.X) * 4
	length := int(stride) * size.Y

	fd, err := unix.MemfdCreate("layerbuf-buffer", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("memalloc: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(length)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("memalloc: ftruncate: %w", err)
	}

	return &bufferObject{
		fd:       fd,
		size:     size,
		format:   format,
		modifier: modifier,
		stride:   stride,
		length:   length,
	}, nil
}

// bufferObject is one memfd-backed allocation.
type bufferObject struct {
	fd       int
	size     image.Point
	format   uint32
	modifier uint64
	stride   uint32
	length   int
	data     []byte
}

var _ alloc.BufferObject = (*bufferObject)(nil)

func (b *bufferObject) Size() image.Point { return b.size }
func (b *bufferObject) Format() uint32    { return b.format }
func (b *bufferObject) Modifier() uint64  { return b.modifier }
func (b *bufferObject) PlaneCount() int   { return 1 }

func (b *bufferObject) Plane(i int) (alloc.PlaneInfo, error) {
	if b.fd < 0 {
		return alloc.PlaneInfo{}, alloc.ErrBufferDestroyed
	}
	if i != 0 {
		return alloc.PlaneInfo{}, alloc.ErrPlaneOutOfRange
	}
	fd, err := unix.Dup(b.fd)
	if err != nil {
		return alloc.PlaneInfo{}, fmt.Errorf("memalloc: dup plane fd: %w", err)
	}
	return alloc.PlaneInfo{FD: fd, Offset: 0, Stride: b.stride}, nil
}

func (b *bufferObject) Map() ([]byte, uint32, error) {
	if b.fd < 0 {
		return nil, 0, alloc.ErrBufferDestroyed
	}
	if b.data != nil {
		return b.data, b.stride, nil
	}
	data, err := unix.Mmap(b.fd, 0, b.length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, 0, fmt.Errorf("memalloc: mmap: %w", err)
	}
	b.data = data
	return b.data, b.stride, nil
}

func (b *bufferObject) Unmap() {
	if b.data == nil {
		return
	}
	_ = unix.Munmap(b.data)
	b.data = nil
}

func (b *bufferObject) Destroy() {
	if b.fd < 0 {
		return
	}
	b.Unmap()
	_ = unix.Close(b.fd)
	b.fd = -1
}
