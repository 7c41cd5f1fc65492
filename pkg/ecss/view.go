package ecss

import (
	"iter"

	"github.com/calvinalkan/ecss/pkg/ecss/layout"
	"github.com/calvinalkan/ecss/pkg/ecss/view"
)

// Range restricts a [View] to entity ids in [Begin, End). Re-exported from
// [pkg/ecss/view.Range].
type Range = view.Range

// ExtraMember names one extra (non-main) type a [View] joins against,
// alongside the [Container] it lives in.
type ExtraMember struct {
	container *Container
	token     int32
	required  bool
}

// Extra describes an extra member of type T for [NewView]. required=true
// skips an entity missing T entirely; required=false yields a nil pointer
// for T on that row instead.
func Extra[T any](c *Container, required bool) ExtraMember {
	return ExtraMember{container: c, token: layout.TokenOf[T](), required: required}
}

// View joins a main component type across one or more containers, in
// ascending entity id order, per spec.md §4.8.
type View[Main any] struct {
	raw *view.View
}

// NewView builds a [View] over main's type T in the given container, plus
// zero or more extra members and optional id ranges. If containers
// involved are thread-safe, the view pins each one's tail until
// [View.Close].
func NewView[Main any](main *Container, extras []ExtraMember, ranges []Range) *View[Main] {
	vmembers := make([]view.Member, len(extras))

	for i, e := range extras {
		vmembers[i] = view.Member{Container: e.container.store, Token: e.token, Required: e.required}
	}

	mainMember := view.Member{Container: main.store, Token: layout.TokenOf[Main]()}

	return &View[Main]{raw: view.New(mainMember, vmembers, ranges)}
}

// Close releases every pin this View acquired. A [View] must not be
// iterated again after Close.
func (v *View[Main]) Close() {
	v.raw.Close()
}

// Row is one joined iteration result from a [View].
type Row[Main any] struct {
	raw view.Row
}

// ID returns the entity id.
func (r Row[Main]) ID() uint32 {
	return r.raw.ID
}

// Main returns a pointer to the main component's value.
func (r Row[Main]) Main() *Main {
	return valueAt[Main](r.raw.Main)
}

// Extra returns the raw bytes of the i-th extra member (in the order
// passed to [NewView]), or nil if it was optional and absent. Use [As] to
// reinterpret it as a concrete type.
func (r Row[Main]) Extra(i int) []byte {
	return r.raw.Extras[i]
}

// As reinterprets b (typically from [Row.Extra]) as *T, or nil if b is nil.
func As[T any](b []byte) *T {
	if b == nil {
		return nil
	}

	return valueAt[T](b)
}

// All returns an [iter.Seq] yielding every matching [Row] in ascending
// entity-id order.
func (v *View[Main]) All() iter.Seq[Row[Main]] {
	return func(yield func(Row[Main]) bool) {
		for row := range v.raw.All() {
			if !yield(Row[Main]{raw: row}) {
				return
			}
		}
	}
}
