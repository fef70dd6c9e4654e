// Package buffer owns the fixed-slot decode buffer pool.
//
// Ownership boundary:
// - slot bitmask (SharedState) and lock-free claim/toggle
// - Slice handles into pool memory or heap fallback buffers
// - toggle observers for diagnosing pool exhaustion
//
// A Pool has at most MaxSlots slots. Acquire never fails: when no slot is
// free, or the request is larger than a slot, it hands out a heap-backed
// Slice tagged with IgnoreIndex instead. Every Slice keeps its Pool
// reachable, so pool memory stays valid for the whole life of the handle.
package buffer
