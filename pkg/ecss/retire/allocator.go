package retire

// Allocator is a thin pass-through allocator for fixed-size byte buffers.
// Allocate always goes straight to the Go runtime; Deallocate never frees
// immediately — it hands the buffer to a [Bin] instead, so a concurrent
// reader that loaded a pointer/slice header into the old buffer before a
// reallocation can keep using it safely until the next [Bin.Drain].
//
// spec.md describes this allocator as "always_equal", meaning containers
// can move their storage between allocator instances without
// reallocating. Go slices already have this property (there is no
// allocator-instance identity baked into a []byte), so [Allocator] carries
// no state beyond the [Bin] it retires into.
type Allocator struct {
	bin *Bin
}

// NewAllocator returns an Allocator that retires freed buffers into bin.
// Panics if bin is nil.
func NewAllocator(bin *Bin) *Allocator {
	if bin == nil {
		panic("retire: nil bin")
	}

	return &Allocator{bin: bin}
}

// Allocate returns a freshly zeroed buffer of n bytes.
func (a *Allocator) Allocate(n int) []byte {
	return make([]byte, n)
}

// Deallocate retires buf: it is not reclaimed until the bin's next Drain.
// The buffer must not be written to after this call, but may still be read
// by any reader that captured it before the retirement.
func (a *Allocator) Deallocate(buf []byte) {
	// Keep buf alive in the closure so it cannot be collected before a
	// reader that raced the swap finishes with it; the closure itself is
	// a no-op because Go reclaims the backing array once every reference
	// (including this one) is gone.
	a.bin.Retire(func() { _ = buf })
}

// Bin returns the retire bin this allocator deallocates into.
func (a *Allocator) Bin() *Bin {
	return a.bin
}
