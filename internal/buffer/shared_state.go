package buffer

import (
	"fmt"
	"math/bits"
	"sync/atomic"
)

const (
	// MaxSlots is the number of slots one SharedState can track.
	MaxSlots = 8
	// IgnoreIndex tags heap-backed slices. It never touches the bitmask.
	IgnoreIndex uint8 = 59
)

// SharedState is the slot bitmask shared by every Slice issued from one Pool.
// A set bit means the slot is checked out. Index 1 owns the most significant
// bit, index 8 the least significant one.
type SharedState struct {
	bits atomic.Uint32
}

func slotMask(index uint8) uint32 {
	switch {
	case index == IgnoreIndex:
		return 0
	case index >= 1 && index <= MaxSlots:
		return 0x80 >> (index - 1)
	default:
		panic(fmt.Sprintf("buffer: invalid slot index %d", index))
	}
}

// Load returns the current bitmask.
func (s *SharedState) Load() uint8 {
	return uint8(s.bits.Load())
}

// InUse counts the slots currently checked out.
func (s *SharedState) InUse() int {
	return bits.OnesCount8(s.Load())
}

// Toggle flips the bit owned by index and returns the mask before and after.
// Slots own disjoint bits, so a failed swap only means another slot moved;
// the loop retries until this slot's flip lands.
func (s *SharedState) Toggle(index uint8) (before, after uint8) {
	mask := slotMask(index)
	if mask == 0 {
		cur := s.Load()
		return cur, cur
	}
	for {
		old := s.bits.Load()
		if s.bits.CompareAndSwap(old, old^mask) {
			return uint8(old), uint8(old ^ mask)
		}
	}
}

// claim marks the first free slot among the first n slots as checked out.
func (s *SharedState) claim(n int) (index, before, after uint8, ok bool) {
	if n > MaxSlots {
		n = MaxSlots
	}
	for {
		old := s.bits.Load()
		var idx uint8
		for i := 1; i <= n; i++ {
			if old&slotMask(uint8(i)) == 0 {
				idx = uint8(i)
				break
			}
		}
		if idx == 0 {
			return 0, uint8(old), uint8(old), false
		}
		next := old | slotMask(idx)
		if s.bits.CompareAndSwap(old, next) {
			return idx, uint8(old), uint8(next), true
		}
	}
}
