package buffer

import (
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultSlotSize fits a header plus a typical mining message.
const DefaultSlotSize = 64 * 1024

// Pool hands out Slices backed by a fixed number of equally sized slots.
// It is safe for concurrent use; slot bookkeeping is one atomic bitmask.
// A nil *Pool is valid and always falls back to heap allocation.
type Pool struct {
	state    *SharedState
	mem      []byte
	slots    int
	slotSize int
	observer Observer

	poolAcquires  atomic.Uint64
	heapFallbacks atomic.Uint64
	releases      atomic.Uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithObserver installs a toggle observer. Observers see every bit flip but
// cannot change pool behaviour.
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		p.observer = o
	}
}

// Stats is a point-in-time snapshot of pool accounting.
type Stats struct {
	Slots         int    `json:"slots"`
	SlotSize      int    `json:"slot_size"`
	InUse         int    `json:"in_use"`
	Bitmask       uint8  `json:"bitmask"`
	PoolAcquires  uint64 `json:"pool_acquires"`
	HeapFallbacks uint64 `json:"heap_fallbacks"`
	Releases      uint64 `json:"releases"`
}

// New builds a pool of slots slots with slotSize bytes each. slots is clamped
// to 1..MaxSlots and a non-positive slotSize selects DefaultSlotSize.
func New(slots, slotSize int, opts ...Option) *Pool {
	if slots < 1 {
		slots = 1
	}
	if slots > MaxSlots {
		slots = MaxSlots
	}
	if slotSize <= 0 {
		slotSize = DefaultSlotSize
	}
	p := &Pool{
		state:    &SharedState{},
		mem:      make([]byte, slots*slotSize),
		slots:    slots,
		slotSize: slotSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns a Slice of length n. It claims a free slot when one exists
// and n fits in it; otherwise it allocates exactly n bytes on the heap.
func (p *Pool) Acquire(n int) *Slice {
	if n < 0 {
		panic(fmt.Sprintf("buffer: negative acquire length %d", n))
	}
	if p == nil {
		return newHeapSlice(nil, n)
	}
	if n <= p.slotSize {
		if idx, before, after, ok := p.state.claim(p.slots); ok {
			p.poolAcquires.Add(1)
			p.notify(idx, ModeAcquire, before, after)
			return newPooledSlice(p, idx, n)
		}
	}
	p.heapFallbacks.Add(1)
	return newHeapSlice(p, n)
}

func (p *Pool) release(index uint8, mode Mode) {
	before, after := p.state.Toggle(index)
	p.releases.Add(1)
	p.notify(index, mode, before, after)
}

func (p *Pool) notify(index uint8, mode Mode, before, after uint8) {
	if p.observer == nil {
		return
	}
	p.observer.OnToggle(ToggleEvent{
		Index:  index,
		Mode:   mode,
		Before: before,
		After:  after,
		At:     time.Now(),
	})
}

// State exposes the shared bitmask.
func (p *Pool) State() *SharedState {
	return p.state
}

// InUse counts checked-out slots.
func (p *Pool) InUse() int {
	if p == nil {
		return 0
	}
	return p.state.InUse()
}

func (p *Pool) Slots() int {
	if p == nil {
		return 0
	}
	return p.slots
}

func (p *Pool) SlotSize() int {
	if p == nil {
		return 0
	}
	return p.slotSize
}

func (p *Pool) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	mask := p.state.Load()
	return Stats{
		Slots:         p.slots,
		SlotSize:      p.slotSize,
		InUse:         p.state.InUse(),
		Bitmask:       mask,
		PoolAcquires:  p.poolAcquires.Load(),
		HeapFallbacks: p.heapFallbacks.Load(),
		Releases:      p.releases.Load(),
	}
}
