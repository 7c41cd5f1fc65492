package sectors

import (
	"sort"
	"sync"

	"github.com/calvinalkan/ecss/pkg/ecss/dense"
	"github.com/calvinalkan/ecss/pkg/ecss/layout"
	"github.com/calvinalkan/ecss/pkg/ecss/pin"
	"github.com/calvinalkan/ecss/pkg/ecss/retire"
)

// ThreadSafe is a sectors container safe for concurrent use: structural
// mutations (Insert/Remove/Defragment/...) take an exclusive lock, while
// a [Pin] lets a reader hold a stable byte slice into a sector's payload
// without any lock at all, for as long as the pin is held — the
// container simply never relocates a pinned sector underneath it.
//
// Grounded on the teacher's Cache (pkg/slotcache/cache.go, deleted — see
// DESIGN.md): a sync.RWMutex guarding structural state, with readers
// that already captured a snapshot allowed to keep going without it.
type ThreadSafe struct {
	mu sync.RWMutex

	core

	ds       *dense.ThreadSafe
	pins     *pin.Counters
	ownedBin retire.Bin

	pendingErase []uint32
}

// NewThreadSafe returns an empty concurrency-safe container for meta's
// component set. The dense/sparse views and the chunk allocator share
// one retire bin, so a single Drain reclaims both.
func NewThreadSafe(meta *layout.Meta, opts Options) (*ThreadSafe, error) {
	ts := &ThreadSafe{pins: pin.NewCounters()}

	ds := dense.NewThreadSafe(&ts.ownedBin)

	c, err := newCore(meta, opts, ds.Dense(), ds.Sparse(), &ts.ownedBin)
	if err != nil {
		return nil, err
	}

	ts.core = *c
	ts.ds = ds

	return ts, nil
}

// Reserve grows backing storage to hold at least n sectors without
// changing Len.
func (t *ThreadSafe) Reserve(count uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.reserve(count)
	t.ds.Publish()

	return err
}

// Insert writes a value for token into id's sector, acquiring the
// sector if id has none yet. The returned slice is a private copy, safe
// to read without any lock (the caller no longer shares storage with the
// container once Insert returns).
func (t *ThreadSafe) Insert(id uint32, token int32, write func(dst []byte)) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	member, err := t.insert(id, token, write)
	if err != nil {
		return nil, err
	}

	out := append([]byte(nil), member...)

	t.ds.Publish()

	return out, nil
}

// Get returns a private copy of token's payload bytes for id, if alive.
func (t *ThreadSafe) Get(id uint32, token int32) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	member, ok := t.get(id, token)
	if !ok {
		return nil, false
	}

	return append([]byte(nil), member...), true
}

// Has reports whether id has an alive value for token.
func (t *ThreadSafe) Has(id uint32, token int32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.get(id, token)

	return ok
}

// Remove destroys token's value for id, if alive. Reports whether
// anything was removed.
func (t *ThreadSafe) Remove(id uint32, token int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := t.remove(id, token)
	t.ds.Publish()

	return removed
}

// RemoveEntity destroys every alive member for id. Reports whether id
// had any alive member.
func (t *ThreadSafe) RemoveEntity(id uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := t.removeEntity(id)
	t.ds.Publish()

	return removed
}

// EraseAsync schedules id for removal the next time
// ProcessPendingErases runs, instead of blocking the caller on a
// structural mutation now. Safe to call from many goroutines.
func (t *ThreadSafe) EraseAsync(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pendingErase = append(t.pendingErase, id)
}

// ProcessPendingErases drains every id queued by EraseAsync, unique-sorts
// it, and destroys the whole entity for every id whose pin counter is
// zero, per spec.md §4.5; an id with an outstanding pin is left queued
// for the next call instead of being destroyed out from under a reader
// holding its bytes. Destroying in place only clears liveness, it never
// relocates a sector, so it's safe regardless of what else is pinned. If
// withDefragment is true and the dead-slot ratio exceeds the threshold, a
// defragment pass follows, never moving anything at or below the highest
// still-pinned id.
func (t *ThreadSafe) ProcessPendingErases(withDefragment bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := uniqueSorted(t.pendingErase)
	t.pendingErase = nil

	processed := 0

	for _, id := range pending {
		if t.pins.IsPinned(id) {
			t.pendingErase = append(t.pendingErase, id)
			continue
		}

		if t.removeEntity(id) {
			processed++
		}
	}

	if withDefragment {
		minMovable := t.minMovableIndex()
		if _, err := t.tryDefragment(minMovable); err != nil {
			t.ds.Publish()
			t.bin.Drain()

			return processed, err
		}
	}

	t.ds.Publish()
	t.bin.Drain()

	return processed, nil
}

// Defragment compacts dead sectors out of dense storage and frees
// now-unused trailing chunks. Blocks until nothing is pinned: it waits
// for every outstanding pin to release before moving anything, per
// spec.md §4.5, rather than compacting only around the currently pinned
// range — a concurrent [ThreadSafe.PinSector] never observes a sector
// move underneath it.
func (t *ThreadSafe) Defragment() error {
	// Wait for pins without holding mu, so other operations keep working
	// meanwhile; retry if a new pin arrived before mu was taken.
	for {
		t.pins.WaitUntilChangeable(0)
		t.mu.Lock()

		if t.pins.TotalPinned() == 0 {
			break
		}

		t.mu.Unlock()
	}
	defer t.mu.Unlock()

	if err := t.defragment(0); err != nil {
		return err
	}

	t.ds.Publish()
	t.bin.Drain()

	return nil
}

// TryDefragment behaves like Defragment, but returns immediately without
// doing any work if any sector is currently pinned, instead of blocking
// for one to release. Reports whether a defragment pass actually ran.
func (t *ThreadSafe) TryDefragment() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pins.TotalPinned() > 0 {
		return false, nil
	}

	if err := t.defragment(0); err != nil {
		return false, err
	}

	t.ds.Publish()
	t.bin.Drain()

	return true, nil
}

// minMovableIndex returns the first dense index defragment may touch:
// the insertion point of (highest pinned id + 1), so every sector at or
// below the highest pinned id keeps its exact dense position. Must be
// called with mu held.
func (t *ThreadSafe) minMovableIndex() int {
	highest := t.pins.MaxPinnedID()
	if highest < 0 {
		return 0
	}

	return t.dense.InsertionIndex(uint32(highest) + 1)
}

// uniqueSorted returns ids sorted ascending with duplicates collapsed,
// reusing ids' backing array.
func uniqueSorted(ids []uint32) []uint32 {
	if len(ids) == 0 {
		return ids
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := ids[:1]

	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}

	return out
}

// Clear destroys every alive value across every sector and releases all
// chunk storage. Blocks until nothing is pinned.
func (t *ThreadSafe) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pins.WaitUntilChangeable(0)

	if err := t.clear(); err != nil {
		return err
	}

	t.ds.Publish()
	t.bin.Drain()

	return nil
}

// ShrinkToFit releases chunk storage beyond the current size. It does
// not wait on pins, since nothing beyond Len() can ever be pinned.
func (t *ThreadSafe) ShrinkToFit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.shrinkToFit(); err != nil {
		return err
	}

	t.bin.Drain()

	return nil
}

// Pin is a stable, lock-free reference to one sector's payload for a
// single component type, held until Release is called. The container
// guarantees the underlying sector is never relocated while any Pin on
// it (or on a lower id) is outstanding.
type Pin struct {
	handle *pin.Handle
	data   []byte
	live   bool
}

// ID returns the pinned sector id.
func (p *Pin) ID() uint32 {
	return p.handle.ID()
}

// DataPtr returns the member's payload bytes. Valid for as long as the
// Pin is held, even without any lock.
func (p *Pin) DataPtr() []byte {
	return p.data
}

// Live reports whether the member was alive at pin time. Reading
// DataPtr after the container later removes this member is a
// programming error the container does not protect against once the
// Pin is released.
func (p *Pin) Live() bool {
	return p.live
}

// Release unpins the sector, after which the container is again free to
// relocate it.
func (p *Pin) Release() {
	p.handle.Release()
}

// PinSector pins id and returns a [Pin] over token's current payload
// bytes, whether or not the member is alive (see [Pin.Live]). Lock-free,
// per spec.md §5: it pins the counter first (an atomic bump, raising the
// published max-pinned id if id is now the highest) and then resolves
// the sector against the most recently published dense snapshot, never
// taking the container's mutex — so pinning never serializes against a
// concurrent Insert/Remove/Get the way acquiring even a shared lock
// would.
func (t *ThreadSafe) PinSector(id uint32, token int32) *Pin {
	h := t.pins.PinHandle(id)

	v := t.ds.Snapshot()

	idx, ok := indexOfID(v.IDs, id)
	if !ok {
		return &Pin{handle: h}
	}

	d := t.memberData(token)

	buf, err := t.chunks.At(uint32(idx))
	if err != nil {
		return &Pin{handle: h}
	}

	live := v.Live[idx]&d.LiveMask != 0

	return &Pin{handle: h, data: buf[d.Offset : d.Offset+d.Size], live: live}
}

// indexOfID returns the index of id within ids, which must be sorted
// ascending, or (0, false) if absent.
func indexOfID(ids []uint32, id uint32) (int, bool) {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return i, true
	}

	return 0, false
}

// PinSectorAt is PinSector addressed by dense index in the most recently
// published snapshot rather than by id.
func (t *ThreadSafe) PinSectorAt(index int, token int32) *Pin {
	v := t.ds.Snapshot()

	return t.PinSector(v.IDs[index], token)
}

// PinBack pins the last (highest-id) sector currently in dense storage,
// letting a view iterator hold the tail of a container stable while it
// walks. Returns ok=false if the container is empty.
func (t *ThreadSafe) PinBack(token int32) (*Pin, bool) {
	v := t.ds.Snapshot()

	n := len(v.IDs)
	if n == 0 {
		return nil, false
	}

	return t.PinSector(v.IDs[n-1], token), true
}

// Snapshot returns the most recently published dense [dense.View] for
// lock-free iteration.
func (t *ThreadSafe) Snapshot() *dense.View {
	return t.ds.Snapshot()
}

// DrainRetired runs any deferred chunk/view frees that are now safe to
// reclaim. Callers with their own quiescent points (e.g. between view
// iterations) may call this to bound memory growth instead of waiting
// for the next structural mutation.
func (t *ThreadSafe) DrainRetired() int {
	return t.bin.Drain()
}

// Rows returns the ids/liveness arrays from the most recently published
// snapshot, for [pkg/ecss/view]'s lock-free iteration.
func (t *ThreadSafe) Rows() (ids []uint32, live []uint32) {
	v := t.ds.Snapshot()
	return v.IDs, v.Live
}
