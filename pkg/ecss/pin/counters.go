package pin

import (
	"sync"
	"sync/atomic"
)

// countersPerBlock is the number of per-id counters in one on-demand
// allocated block.
const countersPerBlock = 4096

// Counters tracks, per sector id, how many outstanding "don't relocate
// this sector" references are held, plus the aggregates a writer needs to
// cheaply decide whether it may relocate storage: the highest pinned id
// and the total number of distinct pinned ids.
//
// The zero value is not ready to use; construct with [NewCounters].
type Counters struct {
	blockMu sync.RWMutex
	blocks  [][]atomic.Uint32

	presence Bitmap

	totalPinned atomic.Int64
	maxPinnedID atomic.Int64
	epoch       atomic.Uint64

	waiter *futexWaiter
}

// NewCounters returns an empty Counters with no pinned ids.
func NewCounters() *Counters {
	c := &Counters{waiter: newWaiter()}
	c.maxPinnedID.Store(-1)

	return c
}

// Pin increments the counter for id. If id was previously unpinned, it is
// marked present in the bitmap, total pinned count rises by one, and
// max pinned id is raised to id if it is now the highest.
func (c *Counters) Pin(id uint32) {
	ctr := c.counter(id)
	if ctr.Add(1) == 1 {
		c.presence.Set(uint64(id), true)
		c.totalPinned.Add(1)
		c.raiseMaxPinned(int64(id))
	}
}

// Unpin decrements the counter for id. If this was the last outstanding
// pin, id is cleared from the bitmap, total pinned count falls by one, the
// max pinned id is re-derived, and any blocked waiters are woken.
func (c *Counters) Unpin(id uint32) {
	ctr := c.counter(id)

	newVal := ctr.Add(^uint32(0)) // -1, two's complement
	if newVal == 0 {
		c.presence.Set(uint64(id), false)
		c.totalPinned.Add(-1)
		c.epoch.Add(1)
		c.UpdateMaxPinned()
		c.waiter.NotifyAll()
	}
}

// CanMove reports whether a sector at id is free to relocate: no pin is
// held for it, and it's beyond the id range any pin could still cover.
func (c *Counters) CanMove(id uint32) bool {
	return int64(id) > c.maxPinnedID.Load() && c.counterValue(id) == 0
}

// IsPinned reports whether id currently has an outstanding pin.
func (c *Counters) IsPinned(id uint32) bool {
	return c.counterValue(id) > 0
}

// TotalPinned returns the number of distinct ids currently pinned.
func (c *Counters) TotalPinned() int64 {
	return c.totalPinned.Load()
}

// MaxPinnedID returns the highest pinned id, or -1 if nothing is pinned.
func (c *Counters) MaxPinnedID() int64 {
	return c.maxPinnedID.Load()
}

// UpdateMaxPinned re-derives the highest pinned id from the presence
// bitmap and publishes it, but only if no pin/unpin happened concurrently
// (detected by comparing the epoch recorded at entry against the epoch
// just before the publishing CAS) — a concurrent change means the just
// recomputed value may already be stale, and that concurrent call will
// perform its own update.
func (c *Counters) UpdateMaxPinned() {
	epochAtEntry := c.epoch.Load()
	highest := c.presence.HighestSet()

	for {
		if c.epoch.Load() != epochAtEntry {
			return
		}

		old := c.maxPinnedID.Load()
		if old == highest {
			return
		}

		if c.maxPinnedID.CompareAndSwap(old, highest) {
			c.waiter.NotifyAll()

			return
		}
	}
}

// WaitUntilChangeable blocks until id is no longer pinned and is beyond
// the active pin range: first until id is no longer covered by the
// highest pinned id, then until its own counter reaches zero. Calling
// with id == 0 is a barrier that waits for zero outstanding pins anywhere
// (once max pinned id falls to -1, every counter, including id 0's, is
// necessarily zero).
func (c *Counters) WaitUntilChangeable(id uint32) {
	c.waiter.Wait(func() bool {
		return int64(id) <= c.maxPinnedID.Load()
	})

	c.waiter.Wait(func() bool {
		return c.counterValue(id) > 0
	})
}

func (c *Counters) raiseMaxPinned(id int64) {
	c.epoch.Add(1)

	for {
		cur := c.maxPinnedID.Load()
		if cur >= id {
			return
		}

		if c.maxPinnedID.CompareAndSwap(cur, id) {
			c.waiter.NotifyAll()

			return
		}
	}
}

// counter returns the atomic counter for id, allocating its block if this
// is the first reference to it. Blocks are append-only and never
// reallocated once handed out (only the outer, pointer-valued slice
// grows), so a *atomic.Uint32 returned here stays valid for the
// Counters' lifetime.
func (c *Counters) counter(id uint32) *atomic.Uint32 {
	blockIdx := id / countersPerBlock
	slot := id % countersPerBlock

	c.blockMu.RLock()

	if int(blockIdx) < len(c.blocks) {
		blk := c.blocks[blockIdx]
		c.blockMu.RUnlock()

		return &blk[slot]
	}

	c.blockMu.RUnlock()
	c.blockMu.Lock()

	for int(blockIdx) >= len(c.blocks) {
		c.blocks = append(c.blocks, make([]atomic.Uint32, countersPerBlock))
	}

	blk := c.blocks[blockIdx]

	c.blockMu.Unlock()

	return &blk[slot]
}

// counterValue reads the counter for id without allocating a block for
// ids never pinned.
func (c *Counters) counterValue(id uint32) uint32 {
	blockIdx := id / countersPerBlock
	slot := id % countersPerBlock

	c.blockMu.RLock()
	defer c.blockMu.RUnlock()

	if int(blockIdx) >= len(c.blocks) {
		return 0
	}

	return c.blocks[blockIdx][slot].Load()
}
