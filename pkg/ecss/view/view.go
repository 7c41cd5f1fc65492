// Package view implements joined iteration over one or more sectors
// containers: entities that have a "main" component type, optionally
// paired with pointers into other component types, in ascending entity
// id order.
//
// Grounded on the teacher's scan.go (deleted, see DESIGN.md): a
// forward-only, restartable callback iterator over a storage range,
// ported here to a range-over-func [Seq] and to the grouped-vs-general
// dual path spec.md §4.8 describes, instead of one flat scan.
package view

import (
	"iter"
	"sort"

	"github.com/calvinalkan/ecss/pkg/ecss/chunk"
	"github.com/calvinalkan/ecss/pkg/ecss/layout"
	"github.com/calvinalkan/ecss/pkg/ecss/sectors"
)

// Container is the read surface [View] needs from a sectors container.
// Both sectors.NonThreadSafe and sectors.ThreadSafe satisfy it.
type Container interface {
	Meta() *layout.Meta
	LiveMaskAt(idx int) uint32
	IndexAtOrAfter(id uint32) int
	Rows() (ids []uint32, live []uint32)

	// NewCursor, Spans and NewRangesCursor expose spec.md §4.3's
	// chunk-boundary-aware iteration primitives: NewCursor for a single
	// container's own sequential scan, Spans+NewRangesCursor for a
	// secondary container's AdvanceToID-driven join lookups.
	NewCursor(begin, end uint32) chunk.Cursor
	Spans(begin, end uint32) []chunk.Span
	NewRangesCursor(spans []chunk.Span) chunk.RangesCursor
}

// Pinner is implemented by thread-safe containers: a [View] pins the
// last sector of every involved container for its own lifetime so the
// dense arrays it already snapshotted cannot shrink underneath it.
// Only *sectors.ThreadSafe satisfies this; *sectors.NonThreadSafe has no
// pin API and simply isn't asserted to it.
type Pinner interface {
	PinBack(token int32) (*sectors.Pin, bool)
}

// Member names one component type and the container that stores it.
type Member struct {
	Container Container
	Token     int32

	// Required, for extra (non-main) members only: if true, an entity
	// missing this member is skipped entirely rather than yielded with
	// a nil pointer for it.
	Required bool
}

// Range is an inclusive-begin, exclusive-end entity-id filter. Ranges
// passed to [New] must be sorted and non-overlapping.
type Range struct {
	Begin uint32
	End   uint32
}

// Row is one joined iteration result.
type Row struct {
	// ID is the entity id, ascending across a full iteration.
	ID uint32

	// Main is the main component's payload bytes.
	Main []byte

	// Extras holds each extra member's payload bytes in the order
	// passed to [New], or nil where a member that is not required (see
	// [Member.Required]) was absent.
	Extras [][]byte
}

// View is a joined iterator built by [New]. The zero value is not
// usable.
type View struct {
	main    Member
	extras  []Member
	ranges  []Range
	grouped bool
	pins    []*sectors.Pin
}

// New builds a [View] over main plus zero or more extra members.
// Ranges, if given, restrict iteration to the supplied entity-id
// windows; they must already be sorted and non-overlapping.
//
// If thread-safe containers are involved, New pins the last sector of
// every distinct container touched, held until [View.Close].
func New(main Member, extras []Member, ranges []Range) *View {
	v := &View{main: main, extras: extras, ranges: ranges}

	v.grouped = len(ranges) == 0 && allSameContainer(main, extras)

	v.pinContainers()

	return v
}

func allSameContainer(main Member, extras []Member) bool {
	for _, e := range extras {
		if e.Container != main.Container {
			return false
		}
	}

	return true
}

func (v *View) pinContainers() {
	seen := make(map[Container]bool, 1+len(v.extras))

	pin := func(m Member) {
		if seen[m.Container] {
			return
		}

		seen[m.Container] = true

		p, ok := m.Container.(Pinner)
		if !ok {
			return
		}

		h, found := p.PinBack(m.Token)
		if found {
			v.pins = append(v.pins, h)
		}
	}

	pin(v.main)

	for _, e := range v.extras {
		pin(e)
	}
}

// Close releases every pin this View acquired. Safe to call once a
// full iteration is done; a [View] must not be iterated again after
// Close.
func (v *View) Close() {
	for _, p := range v.pins {
		p.Release()
	}

	v.pins = nil
}

// All returns a [iter.Seq] yielding every matching [Row] in ascending
// entity-id order.
func (v *View) All() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		if v.grouped {
			v.eachGrouped(yield)
			return
		}

		v.eachGeneral(yield)
	}
}

// eachGrouped implements spec.md §4.8's grouped fast path: a single
// container holds every requested type, so one combined liveness mask
// test per dense slot suffices.
func (v *View) eachGrouped(yield func(Row) bool) {
	meta := v.main.Container.Meta()

	tokens := make([]int32, 0, 1+len(v.extras))
	tokens = append(tokens, v.main.Token)

	for _, e := range v.extras {
		tokens = append(tokens, e.Token)
	}

	mask, err := meta.CombinedLiveMask(tokens...)
	if err != nil {
		return
	}

	mainData, err := meta.Of(v.main.Token)
	if err != nil {
		return
	}

	extraData := make([]*layout.Data, len(v.extras))

	for i, e := range v.extras {
		d, derr := meta.Of(e.Token)
		if derr != nil {
			return
		}

		extraData[i] = d
	}

	ids, live := v.main.Container.Rows()

	cur := v.main.Container.NewCursor(0, uint32(len(ids)))

	for cur.Valid() {
		idx := cur.Index()

		if live[idx]&mask != mask {
			cur.Next()
			continue
		}

		buf := cur.Sector()
		id := ids[idx]

		row := Row{
			ID:     id,
			Main:   buf[mainData.Offset : mainData.Offset+mainData.Size],
			Extras: make([][]byte, len(v.extras)),
		}

		for i, d := range extraData {
			row.Extras[i] = buf[d.Offset : d.Offset+d.Size]
		}

		if !yield(row) {
			return
		}

		cur.Next()
	}
}

// eachGeneral implements spec.md §4.8's general path: one primary
// cursor over the main container, with each extra member tracked by its
// own [chunk.RangesCursor] advanced forward by id as the primary cursor
// advances — spec.md §4.3's "secondary per-container cursors". Ranges,
// when present, are converted to dense-index bounds on the primary
// container by binary search before the same per-entity lookup runs.
func (v *View) eachGeneral(yield func(Row) bool) {
	mainMeta := v.main.Container.Meta()

	mainData, err := mainMeta.Of(v.main.Token)
	if err != nil {
		return
	}

	extras := make([]generalExtra, len(v.extras))

	for i, e := range v.extras {
		d, derr := e.Container.Meta().Of(e.Token)
		if derr != nil {
			return
		}

		extraIDs, extraLive := e.Container.Rows()

		extras[i] = generalExtra{
			member: e,
			data:   d,
			ids:    extraIDs,
			live:   extraLive,
			cursor: e.Container.NewRangesCursor(e.Container.Spans(0, uint32(len(extraIDs)))),
		}
	}

	ids, live := v.main.Container.Rows()

	for _, bounds := range v.indexBounds(ids) {
		cur := v.main.Container.NewCursor(uint32(bounds.lo), uint32(bounds.hi))

		for cur.Valid() {
			idx := cur.Index()

			if live[idx]&mainData.LiveMask == 0 {
				cur.Next()
				continue
			}

			id := ids[idx]
			buf := cur.Sector()

			row := Row{
				ID:     id,
				Main:   buf[mainData.Offset : mainData.Offset+mainData.Size],
				Extras: make([][]byte, len(v.extras)),
			}

			if !fillExtras(&row, id, extras) {
				cur.Next()
				continue
			}

			if !yield(row) {
				return
			}

			cur.Next()
		}
	}
}

// generalExtra is one extra member's lookup state for the general join
// path: a [chunk.RangesCursor] advanced forward by id as the main
// container's id increases, per spec.md §4.3's "secondary per-container
// cursors" rather than an independent binary search for every id.
type generalExtra struct {
	member Member
	data   *layout.Data
	ids    []uint32
	live   []uint32
	cursor chunk.RangesCursor
}

func fillExtras(row *Row, id uint32, extras []generalExtra) bool {
	for i := range extras {
		e := &extras[i]

		e.cursor.AdvanceToID(id, func(idx uint32) uint32 { return e.ids[idx] })

		ok := e.cursor.Valid() && e.ids[e.cursor.Index()] == id
		if ok {
			ok = e.live[e.cursor.Index()]&e.data.LiveMask != 0
		}

		if !ok {
			if e.member.Required {
				return false
			}

			row.Extras[i] = nil

			continue
		}

		buf := e.cursor.Sector()
		row.Extras[i] = buf[e.data.Offset : e.data.Offset+e.data.Size]
	}

	return true
}

type indexRange struct {
	lo, hi int
}

// indexBounds converts v.ranges (id ranges) to dense-index bounds on
// the primary container. With no ranges, the whole dense array is one
// bound.
func (v *View) indexBounds(ids []uint32) []indexRange {
	if len(v.ranges) == 0 {
		return []indexRange{{lo: 0, hi: len(ids)}}
	}

	bounds := make([]indexRange, 0, len(v.ranges))

	for _, r := range v.ranges {
		lo := v.main.Container.IndexAtOrAfter(r.Begin)
		hi := v.main.Container.IndexAtOrAfter(r.End)

		if lo < hi {
			bounds = append(bounds, indexRange{lo: lo, hi: hi})
		}
	}

	return bounds
}

// sortRanges is a small helper callers may use to satisfy New's sorted,
// non-overlapping precondition; New itself trusts the caller and does
// not re-sort.
func sortRanges(ranges []Range) {
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Begin < ranges[j].Begin
	})
}
