package pin

// Handle is a counted, exclusively-owned reference to a pinned sector id.
// Obtaining one prevents that id's sector from being relocated until the
// Handle is released.
//
// A Handle should be treated as move-only: copying the struct and
// releasing both copies would double-unpin. Callers that need to hand a
// pin to another goroutine should pass the pointer, not a value copy.
type Handle struct {
	counters *Counters
	id       uint32
	released bool
}

// PinHandle increments the counter for id and returns a Handle that
// releases it. Never returns nil.
func (c *Counters) PinHandle(id uint32) *Handle {
	c.Pin(id)

	return &Handle{counters: c, id: id}
}

// ID returns the pinned sector id.
func (h *Handle) ID() uint32 {
	return h.id
}

// Release unpins the held id. Safe to call multiple times or on a nil
// Handle; only the first call has an effect.
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}

	h.released = true
	h.counters.Unpin(h.id)
}
