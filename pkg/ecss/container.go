package ecss

import (
	"github.com/calvinalkan/ecss/pkg/ecss/chunk"
	"github.com/calvinalkan/ecss/pkg/ecss/layout"
	"github.com/calvinalkan/ecss/pkg/ecss/sectors"
)

// Options configures a container's chunk capacity and defragment
// threshold. The zero value uses [sectors.DefaultChunkCapacity] and
// [sectors.DefaultDefragThreshold].
type Options = sectors.Options

// store is the subset of *sectors.NonThreadSafe's and *sectors.ThreadSafe's
// method sets [Container] needs; both satisfy it, so Container dispatches
// through one interface value instead of branching on which variant it
// holds for every operation. It is also a structural superset of
// [pkg/ecss/view.Container], so a store value can be handed to view.New
// directly.
type store interface {
	Len() int
	Reserve(uint32) error
	Insert(uint32, int32, func([]byte)) ([]byte, error)
	Get(uint32, int32) ([]byte, bool)
	Has(uint32, int32) bool
	Remove(uint32, int32) bool
	RemoveEntity(uint32) bool
	Defragment() error
	TryDefragment() (bool, error)
	Clear() error
	ShrinkToFit() error

	Meta() *layout.Meta
	LiveMaskAt(int) uint32
	IndexAtOrAfter(uint32) int
	Rows() (ids []uint32, live []uint32)
	NewCursor(begin, end uint32) chunk.Cursor
	Spans(begin, end uint32) []chunk.Span
	NewRangesCursor(spans []chunk.Span) chunk.RangesCursor
}

// Container is a handle to a sectors container for a fixed set of component
// types, returned by [Registry.RegisterComponentSet]. Use the package-level
// generic functions ([Add], [Get], [Has], [Remove]) to operate on it.
type Container struct {
	store store
	ts    *sectors.ThreadSafe // non-nil only for a thread-safe container
}

func newContainer(threadSafe bool, opts Options, members []Member) (*Container, error) {
	rawMembers := make([]layout.Member, len(members))
	for i, m := range members {
		rawMembers[i] = m.raw
	}

	meta, err := layout.Create(rawMembers...)
	if err != nil {
		return nil, err
	}

	if threadSafe {
		ts, err := sectors.NewThreadSafe(meta, opts)
		if err != nil {
			return nil, err
		}

		return &Container{store: ts, ts: ts}, nil
	}

	nts, err := sectors.NewNonThreadSafe(meta, opts)
	if err != nil {
		return nil, err
	}

	return &Container{store: nts}, nil
}

// Len returns the number of occupied sectors.
func (c *Container) Len() int {
	return c.store.Len()
}

// Reserve grows backing storage to hold at least n sectors without changing
// [Container.Len].
func (c *Container) Reserve(n uint32) error {
	return c.store.Reserve(n)
}

// RemoveEntity destroys every alive member for id across every type in this
// container. Reports whether id had any alive member.
func (c *Container) RemoveEntity(id uint32) bool {
	return c.store.RemoveEntity(id)
}

// Defragment compacts dead sectors out of storage. On a thread-safe
// container this blocks until no sector is pinned, then compacts fully.
func (c *Container) Defragment() error {
	return c.store.Defragment()
}

// TryDefragment behaves like Defragment, but on a thread-safe container
// returns immediately without doing any work if any sector is currently
// pinned, instead of blocking for one to release. On a non-thread-safe
// container it always runs, since nothing can ever be pinned there.
// Reports whether a defragment pass actually ran.
func (c *Container) TryDefragment() (bool, error) {
	return c.store.TryDefragment()
}

// Clear destroys every alive value and releases all chunk storage, leaving
// Len at 0 and reserved capacity at 0.
func (c *Container) Clear() error {
	return c.store.Clear()
}

// ShrinkToFit releases chunk storage beyond the current size.
func (c *Container) ShrinkToFit() error {
	return c.store.ShrinkToFit()
}

// EraseAsync schedules id's whole entity for removal on the next
// [Container.ProcessPendingErases] instead of blocking the caller now.
// Returns [ErrNotThreadSafe] unless the container was registered with
// threadSafe=true.
func (c *Container) EraseAsync(id uint32) error {
	if c.ts == nil {
		return ErrNotThreadSafe
	}

	c.ts.EraseAsync(id)

	return nil
}

// ProcessPendingErases destroys every id queued by [Container.EraseAsync]
// that is not pinned; pinned ids stay queued for the next call. If
// withDefragment is true, it then runs one defragment pass when the
// dead-slot ratio exceeds the container's threshold. Returns
// [ErrNotThreadSafe] unless the container was registered with
// threadSafe=true.
func (c *Container) ProcessPendingErases(withDefragment bool) (int, error) {
	if c.ts == nil {
		return 0, ErrNotThreadSafe
	}

	return c.ts.ProcessPendingErases(withDefragment)
}

// Add stores v as T's value for id, overwriting and destroying any previous
// value, and returns a pointer to the stored value.
//
// On a thread-safe container the returned pointer is a private copy, safe
// to read without holding any lock; on a non-thread-safe one it is a direct
// pointer into sector storage, valid until the next structural mutation.
func Add[T any](c *Container, id uint32, v T) (*T, error) {
	token := layout.TokenOf[T]()

	buf, err := c.store.Insert(id, token, func(dst []byte) {
		*valueAt[T](dst) = v
	})
	if err != nil {
		return nil, err
	}

	return valueAt[T](buf), nil
}

// Get returns a pointer to T's value for id, or (nil, false) if absent.
// Stability follows the same rule as [Add]'s return value.
func Get[T any](c *Container, id uint32) (*T, bool) {
	buf, ok := c.store.Get(id, layout.TokenOf[T]())
	if !ok {
		return nil, false
	}

	return valueAt[T](buf), true
}

// Has reports whether id has an alive value of type T.
func Has[T any](c *Container, id uint32) bool {
	return c.store.Has(id, layout.TokenOf[T]())
}

// Remove destroys T's value for id, if alive. Reports whether anything was
// removed.
func Remove[T any](c *Container, id uint32) bool {
	return c.store.Remove(id, layout.TokenOf[T]())
}
