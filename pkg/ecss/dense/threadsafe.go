package dense

import (
	"sync/atomic"

	"github.com/calvinalkan/ecss/pkg/ecss/retire"
)

// View is a read-only, point-in-time snapshot of the dense arrays: the id
// and liveness slices as they stood at the moment of publication. A
// lock-free reader that loaded a View via [ThreadSafe.Snapshot] may keep
// reading through it even after the writer has mutated and republished,
// exactly mirroring the teacher's seqlock-retry read pattern in the
// deleted pkg/slotcache/cache.go ("snapshot, retry on generation
// mismatch" — see DESIGN.md), simplified here to "snapshot, the old one
// stays valid" since Go slices need no explicit generation check.
type View struct {
	IDs  []uint32
	Live []uint32
}

// ThreadSafe wraps [Dense] and [Sparse] with a published-snapshot view
// for lock-free readers, and retires superseded views into a
// [retire.Bin] instead of simply letting them go, so the sequencing
// discipline (never invalidate a view a reader might still be consulting)
// is enforced and testable the same way as every other structure in this
// module — even though Go's GC alone would keep the old slices alive for
// any reader that still references them.
type ThreadSafe struct {
	dense  Dense
	sparse Sparse
	bin    *retire.Bin
	view   atomic.Pointer[View]
}

// NewThreadSafe returns an empty ThreadSafe dense/sparse pair retiring
// superseded views into bin.
func NewThreadSafe(bin *retire.Bin) *ThreadSafe {
	if bin == nil {
		panic("dense: nil retire bin")
	}

	ts := &ThreadSafe{bin: bin}
	ts.publish()

	return ts
}

// Snapshot returns the most recently published [View]. Safe to call
// without holding any lock.
func (t *ThreadSafe) Snapshot() *View {
	return t.view.Load()
}

// Mutate runs fn with exclusive access to the underlying Dense and
// Sparse, then publishes a new snapshot. Callers (the sectors container)
// are responsible for serializing calls to Mutate themselves (it takes no
// lock of its own) — the container already holds its own exclusive lock
// for every structural mutation per spec.md §5's locking discipline.
func (t *ThreadSafe) Mutate(fn func(d *Dense, s *Sparse)) {
	fn(&t.dense, &t.sparse)
	t.publish()
}

// Dense exposes the underlying Dense for read-only access by a caller
// that already holds the container's shared lock.
func (t *ThreadSafe) Dense() *Dense {
	return &t.dense
}

// Sparse exposes the underlying Sparse for read-only access by a caller
// that already holds the container's shared lock.
func (t *ThreadSafe) Sparse() *Sparse {
	return &t.sparse
}

// Publish re-snapshots the current Dense/Sparse state and retires the
// previously published view. Callers that mutate Dense/Sparse directly
// through the pointers returned by [ThreadSafe.Dense]/[ThreadSafe.Sparse]
// (rather than through [ThreadSafe.Mutate]) are responsible for calling
// Publish themselves once the mutation is complete.
func (t *ThreadSafe) Publish() {
	t.publish()
}

func (t *ThreadSafe) publish() {
	next := &View{
		IDs:  append([]uint32(nil), t.dense.IDs()...),
		Live: append([]uint32(nil), t.dense.Live()...),
	}

	old := t.view.Swap(next)
	if old != nil {
		t.bin.Retire(func() { _ = old })
	}
}
