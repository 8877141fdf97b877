package layerbuf

import (
	"errors"
	"fmt"

	"github.com/gogpu/layerbuf/alloc"
	"github.com/gogpu/layerbuf/display"
)

// Import errors.
var (
	// ErrBufferNotUsable is returned when importing a degraded buffer
	// that has no kernel backing memory.
	ErrBufferNotUsable = errors.New("layerbuf: buffer has no backing memory")
)

// EnsureTexture imports the buffer's kernel memory into a GPU-sampleable
// texture on dpy. The import happens once: if a texture handle already
// exists the call returns immediately. Call it with painting complete and
// the CPU mapping dropped (after WaitUntilComplete).
//
// Failure to create the image or bind the texture is a recoverable
// per-frame condition: the handle stays unset, the buffer remains usable
// for CPU painting, and the next call retries.
func (b *ImportedBuffer) EnsureTexture(dpy display.Display) error {
	if b.texture != 0 {
		return nil
	}
	if b.bo == nil {
		return ErrBufferNotUsable
	}

	attrs, planes, err := b.imageAttributes()
	if err != nil {
		Logger().Warn("layerbuf: cannot export kernel buffer planes",
			"width", b.size.X, "height", b.size.Y, "error", err)
		return err
	}

	img, err := dpy.CreateExternalImage(attrs)
	if err != nil {
		// The descriptors were not consumed; close them here.
		for _, p := range planes {
			_ = p.Close()
		}
		Logger().Warn("layerbuf: cannot create external image",
			"width", b.size.X, "height", b.size.Y, "error", err)
		return fmt.Errorf("layerbuf: create external image: %w", err)
	}

	texture, err := dpy.BindExternalTexture(img)
	if err != nil {
		img.Destroy()
		Logger().Warn("layerbuf: cannot bind external texture",
			"width", b.size.X, "height", b.size.Y, "error", err)
		return fmt.Errorf("layerbuf: bind external texture: %w", err)
	}

	b.dpy = dpy
	b.img = img
	b.texture = texture
	return nil
}

// imageAttributes assembles the external image attribute list: width,
// height, pixel format, and per-plane descriptor, offset and pitch, plus
// the modifier's halves per plane when the buffer reports a valid layout
// modifier. The returned planes hold the exported descriptors so the
// caller can close them if image creation fails.
func (b *ImportedBuffer) imageAttributes() (display.AttributeList, []alloc.PlaneInfo, error) {
	size := b.bo.Size()

	var attrs display.AttributeList
	attrs.Add(display.AttrWidth, int64(size.X))
	attrs.Add(display.AttrHeight, int64(size.Y))
	attrs.Add(display.AttrLinuxDRMFourCC, int64(b.bo.Format()))

	modifier := b.bo.Modifier()
	count := b.bo.PlaneCount()
	if count > alloc.MaxPlanes {
		count = alloc.MaxPlanes
	}

	planes := make([]alloc.PlaneInfo, 0, count)
	for i := 0; i < count; i++ {
		plane, err := b.bo.Plane(i)
		if err != nil {
			for _, p := range planes {
				_ = p.Close()
			}
			return nil, nil, err
		}
		planes = append(planes, plane)

		attrs.Add(display.PlaneFD(i), int64(plane.FD))
		attrs.Add(display.PlaneOffset(i), int64(plane.Offset))
		attrs.Add(display.PlanePitch(i), int64(plane.Stride))
		if modifier != alloc.ModifierInvalid {
			attrs.Add(display.PlaneModifierHi(i), int64(modifier>>32))
			attrs.Add(display.PlaneModifierLo(i), int64(modifier&0xffffffff))
		}
	}
	return attrs, planes, nil
}
