// Package dense implements the dense id/liveness arrays and the sparse
// id-to-index map that give a sectors container O(1) random access
// (through the sparse map) and O(1) ordered traversal (through the dense
// arrays), kept in ascending id order.
//
// Grounded on the teacher's cached header fields in the deleted
// pkg/slotcache/cache.go (slotHighwater, liveCount, bucketCount — see
// DESIGN.md) reinterpreted as in-process growable slices instead of
// mmap'd header counters.
package dense

import "sort"

// Invalid is the sparse-map sentinel meaning "this id has no dense slot".
const Invalid = ^uint32(0)

// Dense holds the two parallel, ascending-by-id arrays: Ids and Live. Both
// always have equal length.
//
// The zero value is an empty, ready-to-use Dense.
type Dense struct {
	ids  []uint32
	live []uint32
}

// Len returns the number of occupied dense slots.
func (d *Dense) Len() int {
	return len(d.ids)
}

// IDs returns the backing ids slice. Callers (the sectors container) may
// read and, when performing a structural shift, write through it
// directly; it is never re-ordered except by that caller.
func (d *Dense) IDs() []uint32 {
	return d.ids
}

// Live returns the backing liveness-mask slice, parallel to IDs.
func (d *Dense) Live() []uint32 {
	return d.live
}

// ID returns the id at linear index i.
func (d *Dense) ID(i int) uint32 {
	return d.ids[i]
}

// LiveMask returns the liveness mask at linear index i.
func (d *Dense) LiveMask(i int) uint32 {
	return d.live[i]
}

// SetLiveMask overwrites the liveness mask at linear index i.
func (d *Dense) SetLiveMask(i int, mask uint32) {
	d.live[i] = mask
}

// Reserve grows the backing arrays' capacity to at least n without
// changing Len.
func (d *Dense) Reserve(n int) {
	if cap(d.ids) >= n {
		return
	}

	ids := make([]uint32, len(d.ids), n)
	copy(ids, d.ids)
	d.ids = ids

	live := make([]uint32, len(d.live), n)
	copy(live, d.live)
	d.live = live
}

// InsertionIndex returns the index p such that ids[p-1] < id < ids[p]
// would hold after insertion — i.e. the first index whose id is >= the
// given id. Callers use this both to detect "id already present"
// (ids[p] == id, though in practice the sparse map short-circuits that
// check) and to find where a new id belongs.
func (d *Dense) InsertionIndex(id uint32) int {
	return sort.Search(len(d.ids), func(i int) bool {
		return d.ids[i] >= id
	})
}

// MakeRoomAt grows the dense arrays by one slot and shifts
// [p, oldLen) right by one, leaving slot p's contents unspecified
// (callers must write ids[p] and live[p] themselves). p must be in
// [0, Len()].
func (d *Dense) MakeRoomAt(p int) {
	d.ids = append(d.ids, 0)
	d.live = append(d.live, 0)

	copy(d.ids[p+1:], d.ids[p:len(d.ids)-1])
	copy(d.live[p+1:], d.live[p:len(d.live)-1])
}

// PushBack appends id/live at the end. Callers must guarantee ascending
// order (id > last id, if any) — violating that invariant is a caller
// bug, not a condition this method checks.
func (d *Dense) PushBack(id uint32, live uint32) {
	d.ids = append(d.ids, id)
	d.live = append(d.live, live)
}

// Truncate shrinks Len to n, discarding trailing entries.
func (d *Dense) Truncate(n int) {
	d.ids = d.ids[:n]
	d.live = d.live[:n]
}

// Clear empties both arrays without releasing their capacity.
func (d *Dense) Clear() {
	d.ids = d.ids[:0]
	d.live = d.live[:0]
}

// ShrinkToFit reallocates the backing arrays to exactly Len, releasing
// any excess capacity.
func (d *Dense) ShrinkToFit() {
	if cap(d.ids) == len(d.ids) {
		return
	}

	ids := make([]uint32, len(d.ids))
	copy(ids, d.ids)
	d.ids = ids

	live := make([]uint32, len(d.live))
	copy(live, d.live)
	d.live = live
}
