// Package chunk implements the chunked raw-byte allocator: O(1) indexed
// access to fixed-stride sector payload regions, grown a chunk at a time
// instead of via one large contiguous reallocation.
//
// Grounded on the teacher's slot-offset arithmetic in the deleted
// pkg/slotcache (slotsOffset + index*slotSize into one mmap'd region — see
// DESIGN.md), reshaped from "one big mmap" into the spec's power-of-two
// in-memory chunk list: a []byte per chunk instead of one contiguous file.
package chunk

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/calvinalkan/ecss/pkg/ecss/retire"
)

// ErrNotPowerOfTwo is returned by [New] when capacity is zero; any other
// capacity is rounded up to the next power of two.
var ErrNotPowerOfTwo = errors.New("chunk: capacity must be a power of two")

// ErrIndexOutOfRange is returned by [Allocator.At] when the requested index
// exceeds the allocator's current capacity.
var ErrIndexOutOfRange = errors.New("chunk: index out of range")

// Allocator owns a growable list of fixed-size chunks, each holding
// capacity sectors of stride bytes.
type Allocator struct {
	capacity uint32 // sectors per chunk, power of two
	shift    uint   // log2(capacity)
	mask     uint32 // capacity - 1
	stride   uint32 // bytes per sector

	chunks [][]byte
	alloc  *retire.Allocator
}

// New creates an Allocator with the given per-chunk sector capacity
// (rounded up to the next power of two) and sector stride in bytes. alloc
// is used both to allocate new chunks and to retire freed ones.
func New(chunkCapacity uint32, stride uint32, alloc *retire.Allocator) (*Allocator, error) {
	if chunkCapacity == 0 {
		return nil, fmt.Errorf("%w: got 0", ErrNotPowerOfTwo)
	}

	capacity := nextPowerOfTwo(chunkCapacity)

	if alloc == nil {
		return nil, errors.New("chunk: nil allocator")
	}

	return &Allocator{
		capacity: capacity,
		shift:    uint(bits.TrailingZeros32(capacity)),
		mask:     capacity - 1,
		stride:   stride,
		alloc:    alloc,
	}, nil
}

func nextPowerOfTwo(n uint32) uint32 {
	if n&(n-1) == 0 {
		return n
	}

	return uint32(1) << uint(32-bits.LeadingZeros32(n))
}

// ChunkCapacity returns the number of sectors held per chunk.
func (a *Allocator) ChunkCapacity() uint32 {
	return a.capacity
}

// Stride returns the per-sector byte size.
func (a *Allocator) Stride() uint32 {
	return a.stride
}

// Capacity returns the total number of sector slots currently allocated
// (chunk_count * chunk capacity).
func (a *Allocator) Capacity() uint32 {
	return uint32(len(a.chunks)) * a.capacity
}

// ChunkCount returns the number of chunks currently allocated.
func (a *Allocator) ChunkCount() int {
	return len(a.chunks)
}

// chunkIndex splits a linear sector index into (chunk index, offset within
// chunk).
func (a *Allocator) chunkIndex(i uint32) (uint32, uint32) {
	return i >> a.shift, i & a.mask
}

// At returns the byte slice for sector i's payload. Pre: i < Capacity().
func (a *Allocator) At(i uint32) ([]byte, error) {
	if i >= a.Capacity() {
		return nil, fmt.Errorf("%w: index %d, capacity %d", ErrIndexOutOfRange, i, a.Capacity())
	}

	chunkIdx, slot := a.chunkIndex(i)
	start := slot * a.stride

	return a.chunks[chunkIdx][start : start+a.stride : start+a.stride], nil
}

// Allocate grows the allocator to hold at least newCapacity sectors,
// appending freshly zeroed chunks. It never shrinks; if newCapacity is
// already covered, Allocate is a no-op.
func (a *Allocator) Allocate(newCapacity uint32) {
	for a.Capacity() < newCapacity {
		a.chunks = append(a.chunks, a.alloc.Allocate(int(a.capacity)*int(a.stride)))
	}
}

// Spans splits the half-open sector range [begin, end) into spans, each
// wholly contained within one chunk, for building a [RangesCursor] that
// may need to walk across chunk boundaries.
func (a *Allocator) Spans(begin, end uint32) []Span {
	if begin >= end {
		return nil
	}

	var spans []Span

	for begin < end {
		chunkIdx, _ := a.chunkIndex(begin)
		chunkEnd := (chunkIdx + 1) << a.shift

		spanEnd := end
		if chunkEnd < end {
			spanEnd = chunkEnd
		}

		spans = append(spans, Span{Begin: begin, End: spanEnd})
		begin = spanEnd
	}

	return spans
}

// Deallocate frees every chunk fully covered by the half-open sector range
// [from, to): from is rounded up to a chunk boundary and to is rounded
// down. Deallocate only supports freeing a trailing run (to must equal the
// current Capacity()) since that's the only pattern the sectors container
// needs (shrink_to_fit, post-defragment trim) and it lets chunks stay a
// plain slice instead of a sparse map of chunk index -> chunk.
func (a *Allocator) Deallocate(from, to uint32) error {
	if to != a.Capacity() {
		return fmt.Errorf("chunk: deallocate range [%d,%d) is not a trailing run (capacity %d)", from, to, a.Capacity())
	}

	firstChunk := (from + a.capacity - 1) / a.capacity // round up
	if firstChunk >= uint32(len(a.chunks)) {
		return nil
	}

	for i := int(firstChunk); i < len(a.chunks); i++ {
		buf := a.chunks[i]
		a.alloc.Deallocate(buf)
	}

	a.chunks = a.chunks[:firstChunk]

	return nil
}
