package layerbuf

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// Flags describe immutable per-buffer properties chosen at construction.
type Flags uint32

const (
	// NoFlags is a buffer without alpha support.
	NoFlags Flags = 0

	// FlagSupportsAlpha marks a buffer whose contents carry an alpha
	// channel the compositor must honor.
	FlagSupportsAlpha Flags = 1 << iota
)

// bytesPerPixel is fixed: all buffers hold 32-bit premultiplied pixels.
const bytesPerPixel = 4

// PaintingState is the producer/consumer handoff state of a buffer.
type PaintingState int

const (
	// PaintingComplete means no paint is in flight; the contents are
	// stable and may be sampled. This is the initial state.
	PaintingComplete PaintingState = iota

	// PaintingInProgress means a painter holds the buffer between
	// BeginPainting and CompletePainting.
	PaintingInProgress
)

// String returns the string representation of PaintingState.
func (s PaintingState) String() string {
	switch s {
	case PaintingComplete:
		return "Complete"
	case PaintingInProgress:
		return "InProgress"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Buffer is the painting lifecycle contract shared by all variants.
//
// Exactly one painter may drive BeginPainting/CompletePainting at a time;
// concurrent or non-alternating calls are caller bugs and panic. Any
// number of consumers may call WaitUntilComplete.
//
// Buffers are reference counted. Constructors return a buffer holding one
// reference; callers sharing a buffer take their own with Ref and drop it
// with Unref. The backing memory is released, and its share subtracted
// from the memory tracker, when the last reference drops.
type Buffer interface {
	// Size returns the buffer's pixel dimensions.
	Size() image.Point

	// SupportsAlpha reports whether the buffer carries an alpha channel.
	SupportsAlpha() bool

	// BeginPainting transitions the buffer to PaintingInProgress. It
	// panics if a paint is already in flight.
	BeginPainting()

	// CompletePainting publishes the in-flight paint. It panics if no
	// paint is in flight.
	CompletePainting()

	// WaitUntilComplete blocks the caller until the in-flight paint, if
	// any, is visible to the next consumer. There is no timeout: a
	// painter that never completes hangs every waiter.
	WaitUntilComplete()

	// Ref takes an additional reference.
	Ref()

	// Unref drops a reference, destroying the buffer when it was the
	// last one.
	Unref()

	// HasOneRef reports whether the caller holds the sole remaining
	// reference. The pool uses this to detect reusable entries.
	HasOneRef() bool
}

// refShared implements the shared-ownership half of the Buffer contract.
// Variants embed it and point releaseFn at their teardown.
type refShared struct {
	refs      atomic.Int32
	releaseFn func()
}

func (r *refShared) initRef(release func()) {
	r.refs.Store(1)
	r.releaseFn = release
}

// Ref takes an additional reference.
func (r *refShared) Ref() {
	if r.refs.Add(1) <= 1 {
		panic("layerbuf: Ref on a destroyed buffer")
	}
}

// Unref drops a reference, releasing the buffer on the last drop.
func (r *refShared) Unref() {
	n := r.refs.Add(-1)
	if n < 0 {
		panic("layerbuf: Unref without matching Ref")
	}
	if n == 0 {
		r.releaseFn()
	}
}

// HasOneRef reports whether only one reference remains.
func (r *refShared) HasOneRef() bool {
	return r.refs.Load() == 1
}

// paintGate is the per-buffer painting state machine: a mutex, a condition
// variable and the PaintingState they guard. CPU- and kernel-memory-backed
// variants share it; the surface variant substitutes a GPU fence.
type paintGate struct {
	mu    sync.Mutex
	cond  sync.Cond
	state PaintingState
}

func newPaintGate() *paintGate {
	g := &paintGate{}
	g.cond.L = &g.mu
	return g
}

// begin moves Complete -> InProgress, running prepare under the lock
// before the transition. Panics on a state machine violation: that is a
// caller bug, not a runtime condition.
func (g *paintGate) begin(prepare func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != PaintingComplete {
		panic(fmt.Sprintf("layerbuf: BeginPainting in state %v", g.state))
	}
	if prepare != nil {
		prepare()
	}
	g.state = PaintingInProgress
}

// complete moves InProgress -> Complete and wakes the waiters.
func (g *paintGate) complete() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != PaintingInProgress {
		panic(fmt.Sprintf("layerbuf: CompletePainting in state %v", g.state))
	}
	g.state = PaintingComplete
	g.cond.Broadcast()
}

// wait blocks until the state is Complete, then runs then under the lock.
func (g *paintGate) wait(then func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for g.state != PaintingComplete {
		g.cond.Wait()
	}
	if then != nil {
		then()
	}
}

// current returns the state under the lock. Test hook.
func (g *paintGate) current() PaintingState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// byteSize returns the backing allocation size for a buffer of the given
// dimensions, or 0 if the dimensions are not representable.
func byteSize(size image.Point) uint64 {
	if size.X <= 0 || size.Y <= 0 {
		return 0
	}
	return uint64(size.X) * uint64(size.Y) * bytesPerPixel
}
