package ecss

import (
	"github.com/calvinalkan/ecss/pkg/ecss/layout"
	"github.com/calvinalkan/ecss/pkg/ecss/sectors"
)

// PinHandle is a stable, lock-free reference to one sector's value of type
// T, held until [PinHandle.Release]. The container guarantees the sector
// is never relocated while the pin (or a pin on a lower id) is outstanding.
type PinHandle[T any] struct {
	inner *Pin
}

// Value returns a pointer to T's current bytes, valid for as long as the
// pin is held, without any lock. Check [PinHandle.Live] first; the pointer
// is accessible even if the member was never alive.
func (p *PinHandle[T]) Value() *T {
	return valueAt[T](p.inner.DataPtr())
}

// ID returns the pinned sector id.
func (p *PinHandle[T]) ID() uint32 {
	return p.inner.ID()
}

// Live reports whether T's value was alive at pin time.
func (p *PinHandle[T]) Live() bool {
	return p.inner.Live()
}

// Release unpins the sector.
func (p *PinHandle[T]) Release() {
	p.inner.Release()
}

// Pin is the container-level pin handle, re-exported from
// [pkg/ecss/sectors.Pin] so callers don't need to import that package
// directly.
type Pin = sectors.Pin

// PinSector pins id and returns a [PinHandle] over T's current bytes.
// Returns [ErrNotThreadSafe] unless the container was registered with
// threadSafe=true.
func PinSector[T any](c *Container, id uint32) (*PinHandle[T], error) {
	if c.ts == nil {
		return nil, ErrNotThreadSafe
	}

	return &PinHandle[T]{inner: c.ts.PinSector(id, layout.TokenOf[T]())}, nil
}

// PinBack pins the highest-id sector currently in the container, letting a
// caller hold its tail stable across a read. Reports ok=false if the
// container is empty. Returns [ErrNotThreadSafe] unless the container was
// registered with threadSafe=true.
func PinBack[T any](c *Container) (handle *PinHandle[T], ok bool, err error) {
	if c.ts == nil {
		return nil, false, ErrNotThreadSafe
	}

	p, ok := c.ts.PinBack(layout.TokenOf[T]())
	if !ok {
		return nil, false, nil
	}

	return &PinHandle[T]{inner: p}, true, nil
}
