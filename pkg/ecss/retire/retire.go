// Package retire implements a deferred-free queue ("retire bin") that lets
// a writer reclaim a buffer only after every reader that might still hold a
// pointer into it has drained.
//
// This mirrors the teacher's per-file fileRegistryEntry lifecycle
// (pkg/slotcache/lock.go, deleted — see DESIGN.md): a shared structure
// guarded by a mutex, with release deferred until outstanding references
// are gone. There the "reference" is an open file handle; here it's a
// concurrent read of a buffer the chunked allocator or dense/sparse arrays
// are about to replace.
//
// Go's garbage collector means "free" is really "drop the last reference",
// so the free function retired here is frequently a no-op closure kept
// only so tests can observe how many buffers were retired and drained.
// What the bin actually enforces is *sequencing*: a writer must never let
// go of its own reference to an old buffer before a drain point, even
// though the GC would eventually collect it anyway — a reader that loaded
// a raw pointer/slice header before the swap must still be able to
// dereference it safely in the meantime (see spec.md I8).
package retire

import "sync"

// record is one retired buffer awaiting a drain.
type record struct {
	free func()
}

// Bin is an append-only list of retired buffers, guarded by a mutex.
//
// The zero value is ready to use.
type Bin struct {
	mu      sync.Mutex
	pending []record
}

// Retire hands a buffer's free function to the bin instead of invoking it
// immediately. free is called later, by Drain, once the caller has
// established that no concurrent reader can still observe the buffer (a
// "quiescent point": no in-flight pins, or the exclusive container lock
// held through the drain).
//
// free may be nil, in which case the retirement is tracked (and counted by
// Drain) but there is nothing to run.
func (b *Bin) Retire(free func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, record{free: free})
}

// Drain runs every pending free function and clears the bin, returning how
// many buffers were reclaimed.
//
// Callers must only call Drain at a quiescent point: a moment at which no
// reader holds a reference into any buffer retired so far. The sectors
// container establishes this by draining only while holding its own
// exclusive lock (thread-safe variant) or unconditionally (single-threaded
// variant, where there are no concurrent readers to race).
func (b *Bin) Drain() int {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, r := range pending {
		if r.free != nil {
			r.free()
		}
	}

	return len(pending)
}

// Len reports the number of buffers currently awaiting a drain.
func (b *Bin) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}
