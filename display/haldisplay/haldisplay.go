// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package haldisplay adapts a gogpu/wgpu HAL device and queue to the
// display.Display contract, providing the fence primitives SurfaceBuffer
// rides on.
//
// External image import is not part of the wgpu HAL; displays backed by
// it report ErrExternalImagesUnsupported and imported buffers fall back
// to CPU painting until an EGL-capable display performs the import.
package haldisplay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/layerbuf/display"
)

// ErrNoHALDevice is returned when a provider does not expose HAL types.
var ErrNoHALDevice = errors.New("haldisplay: provider does not expose a HAL device")

// fenceTimeout bounds a single fence wait so a lost device cannot hang
// the compositor forever.
const fenceTimeout = 5 * time.Second

// fencePollInterval paces the completion poll loop.
const fencePollInterval = 100 * time.Microsecond

// Display implements display.Display over a HAL device and queue.
type Display struct {
	device hal.Device
	queue  hal.Queue
}

var _ display.Display = (*Display)(nil)

// New wraps a HAL device and its submission queue.
func New(device hal.Device, queue hal.Queue) *Display {
	return &Display{device: device, queue: queue}
}

// FromProvider unwraps the HAL device and queue from a shared GPU device
// provider (e.g. a gogpu context), the same integration point the rest of
// the gogpu ecosystem uses.
func FromProvider(provider gpucontext.DeviceProvider) (*Display, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALDevice
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALDevice)
	}
	return New(device, queue), nil
}

// FencesSupported implements display.Display.
func (d *Display) FencesSupported() bool { return d.device != nil && d.queue != nil }

// CreateFence implements display.Display: it pushes an empty submission
// behind the currently queued work and records its index. The HAL manages
// its own internal fences, so waiting on that index observes everything
// submitted before this call. Creation never blocks.
func (d *Display) CreateFence() (display.Fence, error) {
	if !d.FencesSupported() {
		return nil, display.ErrFencesUnsupported
	}

	index, err := d.queue.Submit(nil)
	if err != nil {
		return nil, fmt.Errorf("haldisplay: submit fence marker: %w", err)
	}
	return &halFence{queue: d.queue, index: index}, nil
}

// CreateExternalImage implements display.Display. The wgpu HAL cannot
// import externally allocated memory.
func (d *Display) CreateExternalImage(display.AttributeList) (display.ExternalImage, error) {
	return nil, display.ErrExternalImagesUnsupported
}

// BindExternalTexture implements display.Display.
func (d *Display) BindExternalTexture(display.ExternalImage) (display.TextureID, error) {
	return 0, display.ErrExternalImagesUnsupported
}

// DestroyTexture implements display.Display.
func (d *Display) DestroyTexture(display.TextureID) {}

// halFence is a one-shot wait on a queue submission index.
type halFence struct {
	queue hal.Queue
	index uint64
	once  sync.Once
}

// Wait implements display.Fence. The work guarded by the fence was
// submitted at creation, so both flush policies reduce to a plain wait:
// poll the queue until the recorded submission index completes, bounded
// by fenceTimeout.
func (f *halFence) Wait(display.FlushPolicy) {
	f.once.Do(func() {
		deadline := time.Now().Add(fenceTimeout)
		for f.queue.PollCompleted() < f.index {
			if !time.Now().Before(deadline) {
				return
			}
			time.Sleep(fencePollInterval)
		}
	})
}
