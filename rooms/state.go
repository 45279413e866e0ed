// Package rooms implements the room-style primitives: a fixed set of named
// rooms each offering a reentrant shared lock, with mutual exclusion across
// rooms (RoomSynchronizer); the same thing augmented with a per-room exit
// handler fired when a room empties (GenderLock); and a variant whose room
// set is discovered lazily (Dynamic).
//
// All three share one state encoding: a single uint32 where the occupying
// room's index occupies a flush-left region selected by an index mask, and
// a flush-right count of outstanding unlocks occupies the rest. The index
// is stored bit-reversed so that widening the mask (more rooms than fit in
// the current width) is a pure extension -- an index encoded under a
// narrower mask remains a valid encoding under any wider one, since
// bit-reversal always pushes a value's low bits into the top of the word
// regardless of how many bits are nominally "in use".
package rooms

// bitReverse32 reverses the bit order of x across all 32 bits.
func bitReverse32(x uint32) uint32 {
	var r uint32
	for i := 0; i < 32; i++ {
		r = (r << 1) | (x & 1)
		x >>= 1
	}
	return r
}

// highestOneBit returns the largest power of two <= n, or 0 if n <= 0.
func highestOneBit(n int) uint32 {
	if n <= 0 {
		return 0
	}
	v := uint32(n)
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v - (v >> 1)
}

// maskFor returns the index mask for a room set of size n: a contiguous
// block of 1-bits flush-left, wide enough to hold indices 1..n.
func maskFor(n int) uint32 {
	if n <= 0 {
		return 0
	}
	unreversed := (highestOneBit(n) << 1) - 1
	return bitReverse32(unreversed)
}

// encodeIndex bit-reverses a 1-based room index into its flush-left state
// encoding. Valid under any mask wide enough to contain it, including a
// mask computed later from a larger room count.
func encodeIndex(i int) uint32 { return bitReverse32(uint32(i)) }
