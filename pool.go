package layerbuf

import (
	"image"
	"sync"
	"time"

	"github.com/gogpu/layerbuf/alloc"
)

// Pool timing defaults.
const (
	// DefaultSweepInterval is how long the pool waits between eviction
	// sweeps while entries exist.
	DefaultSweepInterval = 500 * time.Millisecond

	// DefaultIdleTolerance is how long a buffer may sit unused before a
	// sweep releases it. The short sweep interval bounds churn; the
	// longer tolerance bounds idle memory.
	DefaultIdleTolerance = 5 * time.Second
)

// poolEntry wraps one pooled buffer with its last hand-out time.
type poolEntry struct {
	buffer   *ImportedBuffer
	lastUsed time.Time
}

// canBeReleased reports whether the entry has been idle since before
// minUsed and nothing outside the pool references its buffer.
func (e *poolEntry) canBeReleased(minUsed time.Time) bool {
	return e.buffer.HasOneRef() && e.lastUsed.Before(minUsed)
}

// PoolOptions configures a BufferPool. The zero value selects defaults.
type PoolOptions struct {
	// SweepInterval overrides DefaultSweepInterval when > 0.
	SweepInterval time.Duration

	// IdleTolerance overrides DefaultIdleTolerance when > 0.
	IdleTolerance time.Duration

	// Tracker accounts the pool's buffers; nil selects the process-wide
	// default.
	Tracker *MemoryTracker
}

// BufferPool reuses ImportedBuffers keyed by exact size and alpha
// support, amortizing kernel allocation cost across frames. Buffers idle
// beyond the tolerance window are released by a deferred one-shot sweep
// timer, bounding memory growth.
//
// BufferPool is safe for concurrent use.
type BufferPool struct {
	dev alloc.Device

	mu          sync.Mutex
	entries     []poolEntry
	tracker     *MemoryTracker
	timer       *time.Timer
	timerActive bool
	interval    time.Duration
	tolerance   time.Duration
	closed      bool
}

// NewBufferPool creates a pool allocating from dev.
func NewBufferPool(dev alloc.Device, opts PoolOptions) *BufferPool {
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	tolerance := opts.IdleTolerance
	if tolerance <= 0 {
		tolerance = DefaultIdleTolerance
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = DefaultTracker()
	}

	return &BufferPool{
		dev:       dev,
		tracker:   tracker,
		interval:  interval,
		tolerance: tolerance,
	}
}

// AcquireBuffer returns a buffer of exactly the given size and alpha
// support: a free pooled one when available, otherwise a fresh kernel
// allocation. The caller receives its own reference and must Unref the
// buffer when done with the frame; a released buffer becomes reusable
// and is evicted after the idle tolerance.
//
// Returns nil when allocation fails or the pool is closed. Matching is
// exact-size: no nearest fit, no downscaling.
func (p *BufferPool) AcquireBuffer(size image.Point, supportsAlpha bool) *ImportedBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	selected := -1
	for i := range p.entries {
		e := &p.entries[i]
		if e.buffer.HasOneRef() && e.buffer.Size() == size && e.buffer.SupportsAlpha() == supportsAlpha {
			selected = i
			break
		}
	}

	if selected < 0 {
		flags := NoFlags
		if supportsAlpha {
			flags = FlagSupportsAlpha
		}
		buffer := NewImportedBuffer(p.dev, size, flags, p.tracker)
		if !buffer.Usable() {
			buffer.Unref()
			return nil
		}
		p.entries = append(p.entries, poolEntry{buffer: buffer})
		selected = len(p.entries) - 1
	} else {
		Logger().Debug("layerbuf: pool reuse", "width", size.X, "height", size.Y, "alpha", supportsAlpha)
	}

	p.scheduleSweepLocked()

	entry := &p.entries[selected]
	entry.lastUsed = time.Now()
	entry.buffer.Ref()
	return entry.buffer
}

// scheduleSweepLocked arms the one-shot sweep timer unless it is already
// pending. Callers hold p.mu.
func (p *BufferPool) scheduleSweepLocked() {
	if p.timerActive || p.closed {
		return
	}
	p.timerActive = true
	p.timer = time.AfterFunc(p.interval, p.sweep)
}

// sweep releases every entry idle past the tolerance whose buffer has no
// external reference, then re-arms itself while entries remain.
func (p *BufferPool) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.timerActive = false
	if p.closed || len(p.entries) == 0 {
		return
	}

	minUsed := time.Now().Add(-p.tolerance)
	kept := p.entries[:0]
	for i := range p.entries {
		e := &p.entries[i]
		if e.canBeReleased(minUsed) {
			e.buffer.Unref()
			continue
		}
		kept = append(kept, *e)
	}
	for i := len(kept); i < len(p.entries); i++ {
		p.entries[i] = poolEntry{}
	}
	p.entries = kept

	if len(p.entries) > 0 {
		p.scheduleSweepLocked()
	}
}

// Len returns the number of pooled entries, evicted or not yet swept
// included.
func (p *BufferPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close drops the pool's references to all entries unconditionally,
// regardless of idle time or outstanding external references, and stops
// the sweep timer. Buffers still referenced by callers stay alive until
// those references drop. The pool is unusable afterward.
func (p *BufferPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.timerActive = false

	for i := range p.entries {
		p.entries[i].buffer.Unref()
		p.entries[i] = poolEntry{}
	}
	p.entries = nil
}
