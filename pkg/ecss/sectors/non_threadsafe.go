package sectors

import (
	"github.com/calvinalkan/ecss/pkg/ecss/dense"
	"github.com/calvinalkan/ecss/pkg/ecss/layout"
	"github.com/calvinalkan/ecss/pkg/ecss/retire"
)

// NonThreadSafe is a sectors container with no internal synchronization:
// every method assumes the caller serializes access, the same contract
// spec.md places on its single-threaded variant. There is no pin API —
// nothing here can race a structural mutation, so there is nothing to
// protect a sector from.
type NonThreadSafe struct {
	core

	ownedDense  dense.Dense
	ownedSparse dense.Sparse
	ownedBin    retire.Bin
}

// NewNonThreadSafe returns an empty container for meta's component set.
func NewNonThreadSafe(meta *layout.Meta, opts Options) (*NonThreadSafe, error) {
	nts := &NonThreadSafe{}

	c, err := newCore(meta, opts, &nts.ownedDense, &nts.ownedSparse, &nts.ownedBin)
	if err != nil {
		return nil, err
	}

	nts.core = *c

	return nts, nil
}

// Reserve grows backing storage to hold at least n sectors without
// changing Len.
func (n *NonThreadSafe) Reserve(count uint32) error {
	return n.reserve(count)
}

// Insert writes a value for token into id's sector, acquiring the
// sector if id has none yet. write is called with the member's
// destination bytes; it must fully initialize them.
func (n *NonThreadSafe) Insert(id uint32, token int32, write func(dst []byte)) ([]byte, error) {
	return n.insert(id, token, write)
}

// Get returns token's payload bytes for id, if alive.
func (n *NonThreadSafe) Get(id uint32, token int32) ([]byte, bool) {
	return n.get(id, token)
}

// Remove destroys token's value for id, if alive. Reports whether
// anything was removed.
func (n *NonThreadSafe) Remove(id uint32, token int32) bool {
	removed := n.remove(id, token)
	if removed {
		if did, _ := n.tryDefragment(0); did {
			n.bin.Drain()
		}
	}

	return removed
}

// RemoveEntity destroys every alive member for id. Reports whether id
// had any alive member.
func (n *NonThreadSafe) RemoveEntity(id uint32) bool {
	removed := n.removeEntity(id)
	if removed {
		if did, _ := n.tryDefragment(0); did {
			n.bin.Drain()
		}
	}

	return removed
}

// Has reports whether id has an alive value for token.
func (n *NonThreadSafe) Has(id uint32, token int32) bool {
	_, ok := n.get(id, token)
	return ok
}

// Defragment compacts dead sectors out of dense storage and frees
// now-unused trailing chunks. Always runs the full pass (there is no
// deferred-erase queue to interact with, unlike [ThreadSafe]).
func (n *NonThreadSafe) Defragment() error {
	if err := n.defragment(0); err != nil {
		return err
	}

	n.bin.Drain()

	return nil
}

// TryDefragment behaves exactly like Defragment. There is no pin concept
// on a single-threaded container, so nothing can ever be active to wait
// on or bail out for; it always runs and always reports true.
func (n *NonThreadSafe) TryDefragment() (bool, error) {
	if err := n.Defragment(); err != nil {
		return false, err
	}

	return true, nil
}

// Clear destroys every alive value across every sector and releases
// all chunk storage.
func (n *NonThreadSafe) Clear() error {
	if err := n.clear(); err != nil {
		return err
	}

	n.bin.Drain()

	return nil
}

// ShrinkToFit releases chunk storage beyond the current size.
func (n *NonThreadSafe) ShrinkToFit() error {
	if err := n.shrinkToFit(); err != nil {
		return err
	}

	n.bin.Drain()

	return nil
}

// Dense exposes the underlying dense arrays for read-only iteration by
// [pkg/ecss/view].
func (n *NonThreadSafe) Dense() *dense.Dense {
	return &n.ownedDense
}

// Rows returns the current ids/liveness arrays for [pkg/ecss/view]'s
// iteration. Single-threaded, so these are the live backing slices, not
// a copy — callers must not mutate the container while iterating.
func (n *NonThreadSafe) Rows() (ids []uint32, live []uint32) {
	return n.ownedDense.IDs(), n.ownedDense.Live()
}
