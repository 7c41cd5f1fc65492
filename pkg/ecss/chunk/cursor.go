package chunk

// Cursor walks consecutive sector indices [begin, end) in a single chunk
// allocator, handing back a stride-sized byte slice per step and detecting
// chunk boundaries internally so callers never deal with chunk/slot
// splitting directly.
type Cursor struct {
	a   *Allocator
	idx uint32
	end uint32
}

// NewCursor returns a Cursor over the half-open index range [begin, end).
func (a *Allocator) NewCursor(begin, end uint32) Cursor {
	return Cursor{a: a, idx: begin, end: end}
}

// Valid reports whether the cursor still has sectors left to visit.
func (c Cursor) Valid() bool {
	return c.idx < c.end
}

// Sector returns the current sector's payload. Pre: Valid().
func (c Cursor) Sector() []byte {
	buf, err := c.a.At(c.idx)
	if err != nil {
		panic("chunk: cursor index out of range: " + err.Error())
	}

	return buf
}

// Index returns the current sector's linear index. Pre: Valid().
func (c Cursor) Index() uint32 {
	return c.idx
}

// Next advances the cursor by one sector.
func (c *Cursor) Next() {
	c.idx++
}

// Span is a contiguous, already chunk-bounded range: [Begin, End)
// linear sector indices, all living in the same chunk.
type Span struct {
	Begin uint32
	End   uint32
}

// Len returns the number of sectors the span covers.
func (s Span) Len() uint32 {
	return s.End - s.Begin
}

// RangesCursor walks a pre-flattened sequence of spans, each already
// clipped to a single chunk, computed from one or more logical (possibly
// disjoint) linear ranges. Used by view iteration, which needs to walk
// entity ids in ascending order across what may be several non-contiguous
// ranges of live sectors.
type RangesCursor struct {
	a       *Allocator
	spans   []Span
	spanIdx int
	idx     uint32
}

// NewRangesCursor builds a RangesCursor over spans, which must already be
// sorted in ascending order and chunk-clipped (e.g. as returned by
// [Allocator.Spans]).
func (a *Allocator) NewRangesCursor(spans []Span) RangesCursor {
	rc := RangesCursor{a: a, spans: spans}
	rc.seekNonEmptySpan()

	return rc
}

func (rc *RangesCursor) seekNonEmptySpan() {
	for rc.spanIdx < len(rc.spans) && rc.spans[rc.spanIdx].Len() == 0 {
		rc.spanIdx++
	}

	if rc.spanIdx < len(rc.spans) {
		rc.idx = rc.spans[rc.spanIdx].Begin
	}
}

// Valid reports whether the cursor still has sectors left to visit.
func (rc RangesCursor) Valid() bool {
	return rc.spanIdx < len(rc.spans)
}

// Sector returns the current sector's payload. Pre: Valid().
func (rc RangesCursor) Sector() []byte {
	buf, err := rc.a.At(rc.idx)
	if err != nil {
		panic("chunk: ranges cursor index out of range: " + err.Error())
	}

	return buf
}

// Index returns the current sector's linear index. Pre: Valid().
func (rc RangesCursor) Index() uint32 {
	return rc.idx
}

// Next advances to the next sector, crossing into the next span if the
// current one is exhausted.
func (rc *RangesCursor) Next() {
	rc.idx++
	if rc.idx >= rc.spans[rc.spanIdx].End {
		rc.spanIdx++
		rc.seekNonEmptySpan()
	}
}

// linearAdvanceThreshold bounds how many plain Next() steps AdvanceToID
// tries before falling back to binary search. Small enough that sparse
// joins (where the target is usually only a few ids ahead) avoid the
// overhead of a search, large enough that a miss doesn't cost much.
const linearAdvanceThreshold = 4

// idOf reports the logical id carried by the sector at linear index i.
// Sectors are assumed to be stored in ascending id order (the dense array's
// invariant), so ids and contiguous index ranges correspond.
type idOf func(index uint32) uint32

// AdvanceToID moves the cursor forward to the first sector whose id is >=
// target, or to an invalid state if none remain. id reports the id at a
// linear index; it is called on the last sector of each span
// (spans[i].End-1) to binary-search which span contains target, then on
// indices within that span.
//
// Tries a bounded linear scan first (cheap for the common case of
// advancing by a handful of ids during a join), then binary searches the
// remaining spans by their last id, then binary searches within the
// chosen span.
func (rc *RangesCursor) AdvanceToID(target uint32, id idOf) {
	for i := 0; rc.Valid() && i < linearAdvanceThreshold; i++ {
		if id(rc.idx) >= target {
			return
		}

		rc.Next()
	}

	if !rc.Valid() {
		return
	}

	if id(rc.idx) >= target {
		return
	}

	lo, hi := rc.spanIdx, len(rc.spans)-1

	for lo < hi {
		mid := lo + (hi-lo)/2
		if id(rc.spans[mid].End-1) < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	rc.spanIdx = lo
	span := rc.spans[rc.spanIdx]

	lo, hi = span.Begin, span.End
	for lo < hi {
		mid := lo + (hi-lo)/2
		if id(mid) < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	rc.idx = lo
	if rc.idx >= span.End {
		rc.spanIdx++
		rc.seekNonEmptySpan()
	}
}
