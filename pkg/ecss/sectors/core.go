// Package sectors composes the chunked allocator, dense arrays, sparse
// map, pin counters, retire bin and layout metadata into the sectors
// container spec.md §4.5 describes, in its two synchronization variants:
// [NonThreadSafe] and [ThreadSafe].
//
// Grounded on the teacher's writer.go (buffered put/delete, single active
// writer) and cache.go (concurrent readers via sync.RWMutex), deleted
// from pkg/slotcache — see DESIGN.md — for the overall locking
// discipline: "Cache.mu -> registryEntry.mu -> interprocess writer lock"
// becomes "sectors.mu (exclusive, structural) -> pin counters (atomic) ->
// retire bin mu".
package sectors

import (
	"fmt"

	"github.com/calvinalkan/ecss/pkg/ecss/chunk"
	"github.com/calvinalkan/ecss/pkg/ecss/dense"
	"github.com/calvinalkan/ecss/pkg/ecss/internal/invariant"
	"github.com/calvinalkan/ecss/pkg/ecss/layout"
	"github.com/calvinalkan/ecss/pkg/ecss/retire"
)

// DefaultChunkCapacity is used when [Options.ChunkCapacity] is zero.
const DefaultChunkCapacity = 64

// DefaultDefragThreshold is used when [Options.DefragThreshold] is not in
// (0, 1].
const DefaultDefragThreshold = 0.2

// Options configures a sectors container.
type Options struct {
	// ChunkCapacity is the number of sectors per chunk, rounded up to the
	// next power of two. Zero means [DefaultChunkCapacity].
	ChunkCapacity uint32

	// DefragThreshold is the defrag_ratio above which NeedsDefragment
	// reports true. Values outside (0, 1] are replaced by
	// [DefaultDefragThreshold].
	DefragThreshold float64
}

func (o Options) withDefaults() Options {
	if o.ChunkCapacity == 0 {
		o.ChunkCapacity = DefaultChunkCapacity
	}

	if o.DefragThreshold <= 0 || o.DefragThreshold > 1 {
		o.DefragThreshold = DefaultDefragThreshold
	}

	return o
}

// core holds the algorithms shared between [NonThreadSafe] and
// [ThreadSafe]: both variants differ only in what guards calls into
// these methods (nothing, vs. a mutex + pin counters), never in the
// algorithm itself.
type core struct {
	layout *layout.Meta
	opts   Options

	chunks *chunk.Allocator
	bin    *retire.Bin

	dense  *dense.Dense
	sparse *dense.Sparse

	defragSize int
}

// newCore builds the shared algorithm state. bin is the retire bin the
// chunk allocator frees into; the caller owns it (NonThreadSafe creates
// a private one, ThreadSafe shares it with its [dense.ThreadSafe] so a
// single Drain reclaims both retired chunks and retired dense views).
func newCore(meta *layout.Meta, opts Options, d *dense.Dense, s *dense.Sparse, bin *retire.Bin) (*core, error) {
	if meta == nil {
		return nil, ErrNilLayout
	}

	opts = opts.withDefaults()

	alloc := retire.NewAllocator(bin)

	chunks, err := chunk.New(opts.ChunkCapacity, meta.Stride(), alloc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return &core{
		layout: meta,
		opts:   opts,
		chunks: chunks,
		bin:    bin,
		dense:  d,
		sparse: s,
	}, nil
}

// Len returns the number of occupied (alive or pending-compaction) dense
// slots.
func (c *core) Len() int {
	return c.dense.Len()
}

// DefragSize returns the number of dense slots currently dead and awaiting
// compaction.
func (c *core) DefragSize() int {
	return c.defragSize
}

// DefragRatio returns defragSize / size, or 0 when empty.
func (c *core) DefragRatio() float64 {
	if c.dense.Len() == 0 {
		return 0
	}

	return float64(c.defragSize) / float64(c.dense.Len())
}

// NeedsDefragment reports whether DefragRatio exceeds the configured
// threshold.
func (c *core) NeedsDefragment() bool {
	return c.DefragRatio() > c.opts.DefragThreshold
}

// tryDefragment runs defragment only if NeedsDefragment reports true,
// reporting whether it did.
func (c *core) tryDefragment(minMovable int) (bool, error) {
	if !c.NeedsDefragment() {
		return false, nil
	}

	if err := c.defragment(minMovable); err != nil {
		return false, err
	}

	return true, nil
}

// Meta returns the layout metadata this container was built for, for
// use by [pkg/ecss/view] when planning a join across containers.
func (c *core) Meta() *layout.Meta {
	return c.layout
}

// NewCursor returns a chunk-boundary-aware cursor over dense indices
// [begin, end), the iteration primitive spec.md §4.3 places directly
// ahead of joined view iteration; used by [pkg/ecss/view]'s grouped and
// general fast paths instead of a raw index loop against chunk storage.
func (c *core) NewCursor(begin, end uint32) chunk.Cursor {
	return c.chunks.NewCursor(begin, end)
}

// Spans splits [begin, end) into the chunk-clipped spans a
// [chunk.RangesCursor] walks, for use by [pkg/ecss/view]'s general path
// building one cursor per secondary (extra) container.
func (c *core) Spans(begin, end uint32) []chunk.Span {
	return c.chunks.Spans(begin, end)
}

// NewRangesCursor returns a cursor walking spans, supporting AdvanceToID
// for the general join path's per-container id lookups.
func (c *core) NewRangesCursor(spans []chunk.Span) chunk.RangesCursor {
	return c.chunks.NewRangesCursor(spans)
}

// LiveMaskAt returns the liveness mask at dense linear index idx.
func (c *core) LiveMaskAt(idx int) uint32 {
	return c.dense.LiveMask(idx)
}

// IndexAtOrAfter returns the first dense index whose id is >= id, for
// converting an id-range filter to dense-index bounds.
func (c *core) IndexAtOrAfter(id uint32) int {
	return c.dense.InsertionIndex(id)
}

func (c *core) reserve(n uint32) error {
	c.dense.Reserve(int(n))
	c.sparse.Reserve(int(n))
	c.chunks.Allocate(n)

	return nil
}

// acquireSector implements spec.md §4.5's "Acquire sector" algorithm:
// reuse the dense slot for id if one exists, otherwise grow dense by one,
// find the sorted insertion position, shift the dense arrays and payload
// right by one slot, and fix up every sparse entry that moved.
func (c *core) acquireSector(id uint32) (int, error) {
	if idx, ok := c.sparse.Get(id); ok {
		return int(idx), nil
	}

	p := c.dense.InsertionIndex(id)
	oldSize := c.dense.Len()
	newSize := oldSize + 1

	c.chunks.Allocate(uint32(newSize))

	var mf chunk.MoveFunc
	if !c.layout.Trivial() {
		mf = c.sectorMoveFunc()
	}

	if err := c.chunks.MoveSectors(uint32(p+1), uint32(p), uint32(oldSize-p), mf); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	c.dense.MakeRoomAt(p)
	c.dense.IDs()[p] = id
	c.dense.Live()[p] = 0

	for i := p + 1; i < newSize; i++ {
		c.sparse.Set(c.dense.ID(i), uint32(i))
	}

	c.sparse.Set(id, uint32(p))

	return p, nil
}

// sectorMoveFunc invokes each member's move function (or a raw byte copy
// for trivial members) in declaration order, used whenever the whole
// layout isn't trivial and the chunked allocator can't just memmove.
func (c *core) sectorMoveFunc() chunk.MoveFunc {
	members := c.layout.Members()

	return func(dst, src []byte) {
		for _, tok := range members {
			d, err := c.layout.Of(tok)
			invariant.Check(err == nil, "move: member vanished from its own layout")

			dstMember := dst[d.Offset : d.Offset+d.Size]
			srcMember := src[d.Offset : d.Offset+d.Size]

			if d.Trivial || d.Funcs.Move == nil {
				copy(dstMember, srcMember)
			} else {
				d.Funcs.Move(dstMember, srcMember)
			}
		}
	}
}

func (c *core) memberData(token int32) *layout.Data {
	d, err := c.layout.Of(token)
	invariant.Check(err == nil, "access to a component type not in this sectors container's layout")

	return d
}

// insert acquires (or reuses) the sector for id, destroys the previous
// value of token if alive, runs write against the member's bytes, and
// marks it alive. Returns the member's payload bytes, valid until the
// next structural mutation.
func (c *core) insert(id uint32, token int32, write func(dst []byte)) ([]byte, error) {
	d := c.memberData(token)

	p, err := c.acquireSector(id)
	if err != nil {
		return nil, err
	}

	buf, err := c.chunks.At(uint32(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	member := buf[d.Offset : d.Offset+d.Size]

	live := c.dense.LiveMask(p)
	if live&d.LiveMask != 0 && !d.Trivial && d.Funcs.Destroy != nil {
		d.Funcs.Destroy(member)
	}

	write(member)

	c.dense.SetLiveMask(p, live|d.LiveMask)

	return member, nil
}

// get returns token's payload bytes for id if alive, or (nil, false).
func (c *core) get(id uint32, token int32) ([]byte, bool) {
	idx, ok := c.sparse.Get(id)
	if !ok {
		return nil, false
	}

	d := c.memberData(token)

	if c.dense.LiveMask(int(idx))&d.LiveMask == 0 {
		return nil, false
	}

	buf, err := c.chunks.At(idx)
	invariant.Check(err == nil, "sparse map points outside chunk storage")

	return buf[d.Offset : d.Offset+d.Size], true
}

// remove destroys token's value for id if alive, and schedules the
// sector for compaction if it becomes fully dead.
func (c *core) remove(id uint32, token int32) bool {
	idx, ok := c.sparse.Get(id)
	if !ok {
		return false
	}

	d := c.memberData(token)

	live := c.dense.LiveMask(int(idx))
	if live&d.LiveMask == 0 {
		return false
	}

	buf, err := c.chunks.At(idx)
	invariant.Check(err == nil, "sparse map points outside chunk storage")

	member := buf[d.Offset : d.Offset+d.Size]
	if !d.Trivial && d.Funcs.Destroy != nil {
		d.Funcs.Destroy(member)
	}

	newLive := live & d.ClearMask
	c.dense.SetLiveMask(int(idx), newLive)

	if newLive == 0 {
		c.defragSize++
	}

	return true
}

// removeEntity destroys every alive member for id and schedules the
// sector for compaction.
func (c *core) removeEntity(id uint32) bool {
	idx, ok := c.sparse.Get(id)
	if !ok {
		return false
	}

	live := c.dense.LiveMask(int(idx))
	if live == 0 {
		return false
	}

	buf, err := c.chunks.At(idx)
	invariant.Check(err == nil, "sparse map points outside chunk storage")

	for _, tok := range c.layout.Members() {
		d, derr := c.layout.Of(tok)
		invariant.Check(derr == nil, "member vanished from its own layout")

		if live&d.LiveMask != 0 && !d.Trivial && d.Funcs.Destroy != nil {
			d.Funcs.Destroy(buf[d.Offset : d.Offset+d.Size])
		}
	}

	c.dense.SetLiveMask(int(idx), 0)
	c.defragSize++

	return true
}

// defragment performs the two-pointer compaction pass described in
// spec.md §4.5: skip dead runs (invalidating their sparse entries), shift
// live runs down over the gap, update sparse entries of every moved id,
// then truncate dense and free now-empty trailing chunks.
//
// minMovable is the first dense index defragment is allowed to touch at
// all — [NonThreadSafe] always passes 0 (nothing is ever pinned there);
// [ThreadSafe]'s Defragment/TryDefragment pass 0 once nothing is pinned,
// and its ProcessPendingErases passes the first index beyond the highest
// currently pinned id, so a pinned sector's dense position (and the byte
// slice a concurrent [Pin] reader holds into it) never changes underneath it.
// Anything below minMovable is left exactly as is, including dead slots
// — they become eligible again once nothing pins that range anymore.
func (c *core) defragment(minMovable int) error {
	size := c.dense.Len()
	ids := c.dense.IDs()
	live := c.dense.Live()

	read, write := minMovable, minMovable

	for read < size {
		if live[read] == 0 {
			c.sparse.Invalidate(ids[read])
			read++

			continue
		}

		runStart := read
		for read < size && live[read] != 0 {
			read++
		}

		runLen := read - runStart

		if runStart != write {
			var mf chunk.MoveFunc
			if !c.layout.Trivial() {
				mf = c.sectorMoveFunc()
			}

			if err := c.chunks.MoveSectors(uint32(write), uint32(runStart), uint32(runLen), mf); err != nil {
				return fmt.Errorf("%w: %w", ErrStorage, err)
			}

			copy(ids[write:write+runLen], ids[runStart:runStart+runLen])
			copy(live[write:write+runLen], live[runStart:runStart+runLen])

			for i := 0; i < runLen; i++ {
				c.sparse.Set(ids[write+i], uint32(write+i))
			}
		}

		write += runLen
	}

	c.dense.Truncate(write)
	c.defragSize = 0

	if err := c.chunks.Deallocate(uint32(write), c.chunks.Capacity()); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

// clear destroys every alive member across every sector and resets all
// storage, including dropping every chunk.
func (c *core) clear() error {
	for idx := 0; idx < c.dense.Len(); idx++ {
		live := c.dense.LiveMask(idx)
		if live == 0 {
			continue
		}

		buf, err := c.chunks.At(uint32(idx))
		invariant.Check(err == nil, "sparse map points outside chunk storage")

		for _, tok := range c.layout.Members() {
			d, derr := c.layout.Of(tok)
			invariant.Check(derr == nil, "member vanished from its own layout")

			if live&d.LiveMask != 0 && !d.Trivial && d.Funcs.Destroy != nil {
				d.Funcs.Destroy(buf[d.Offset : d.Offset+d.Size])
			}
		}
	}

	c.dense.Clear()
	c.sparse.Clear()
	c.defragSize = 0

	if err := c.chunks.Deallocate(0, c.chunks.Capacity()); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

// shrinkToFit frees chunks strictly beyond the current size.
func (c *core) shrinkToFit() error {
	if err := c.chunks.Deallocate(uint32(c.dense.Len()), c.chunks.Capacity()); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	c.dense.ShrinkToFit()

	return nil
}
