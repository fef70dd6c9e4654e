package buffer

import (
	"runtime"
	"sync/atomic"
)

// Slice is an exclusive handle to a contiguous byte range, either inside one
// pool slot or in its own heap allocation.
//
// The bytes returned by Bytes must not be retained past Release. A pool-backed
// Slice that becomes unreachable without Release gives its slot back through
// a runtime cleanup.
type Slice struct {
	buf      []byte
	index    uint8
	pool     *Pool
	released *atomic.Bool
	cleanup  runtime.Cleanup
}

type slotTicket struct {
	pool     *Pool
	index    uint8
	released *atomic.Bool
}

func releaseDropped(t slotTicket) {
	if t.released.CompareAndSwap(false, true) {
		t.pool.release(t.index, ModeCleanup)
	}
}

func newPooledSlice(p *Pool, index uint8, n int) *Slice {
	off := int(index-1) * p.slotSize
	s := &Slice{
		buf:      p.mem[off : off+n : off+p.slotSize],
		index:    index,
		pool:     p,
		released: new(atomic.Bool),
	}
	s.cleanup = runtime.AddCleanup(s, releaseDropped, slotTicket{pool: p, index: index, released: s.released})
	return s
}

func newHeapSlice(p *Pool, n int) *Slice {
	return &Slice{
		buf:      make([]byte, n),
		index:    IgnoreIndex,
		pool:     p,
		released: new(atomic.Bool),
	}
}

// FromBytes wraps an existing buffer as an untracked Slice.
func FromBytes(b []byte) *Slice {
	return &Slice{buf: b, index: IgnoreIndex, released: new(atomic.Bool)}
}

// Bytes returns the addressable range. It is nil after Release.
func (s *Slice) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.buf
}

func (s *Slice) Len() int {
	if s == nil {
		return 0
	}
	return len(s.buf)
}

// Cap is the length the Slice can grow to without reallocating.
func (s *Slice) Cap() int {
	if s == nil {
		return 0
	}
	return cap(s.buf)
}

// Index is the slot index, or IgnoreIndex for heap-backed slices.
func (s *Slice) Index() uint8 {
	return s.index
}

// Pooled reports whether the Slice lives in pool memory.
func (s *Slice) Pooled() bool {
	return s != nil && s.index != IgnoreIndex
}

// Grow returns a Slice of length n holding the current contents as prefix.
// It reslices in place when the backing slot is large enough; otherwise it
// acquires a new Slice from the originating pool, copies, and releases s.
func (s *Slice) Grow(n int) *Slice {
	if n <= cap(s.buf) {
		s.buf = s.buf[:n]
		return s
	}
	next := s.pool.Acquire(n)
	copy(next.buf, s.buf)
	s.Release()
	return next
}

// Release gives the slot back to the pool. Calling it more than once is a
// no-op; heap-backed slices only drop their reference.
func (s *Slice) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	s.buf = nil
	if s.index == IgnoreIndex {
		return
	}
	s.cleanup.Stop()
	s.pool.release(s.index, ModeRelease)
}
