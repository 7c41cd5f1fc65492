// Package layout computes sector layout metadata: the byte offsets,
// liveness bitmasks, and per-type move/copy/destroy function tables that
// describe how a set of component types is packed into one fixed-size
// sector record.
//
// The core storage engine never sees concrete component types; it only
// ever sees a [Meta] plus opaque byte offsets. Type erasure here isn't done
// with interfaces or reflection on the hot path — [Data] holds plain
// function pointers, filled in by the (generic) binding layer at
// registration time.
package layout

import (
	"errors"
	"fmt"
)

// MaxMembers is the largest number of component types a single [Meta] can
// describe. One bit of the 32-bit liveness word is allocated per member.
const MaxMembers = 32

// Sentinel errors returned by this package.
var (
	// ErrNoMembers is returned by [Create] when called with zero types.
	ErrNoMembers = errors.New("layout: no member types")

	// ErrTooManyMembers is returned by [Create] when more than [MaxMembers]
	// types are supplied.
	ErrTooManyMembers = errors.New("layout: too many member types")

	// ErrDuplicateMember is returned by [Create] when the same type token
	// appears twice in one call. Registering a duplicate is a programming
	// error, not a runtime condition callers should branch on.
	ErrDuplicateMember = errors.New("layout: duplicate member type")

	// ErrUnknownType is returned by [Meta.Of] when the type isn't part of
	// this layout.
	ErrUnknownType = errors.New("layout: unknown type")
)

// FuncTable holds the per-type move/copy/destroy operations the sectors
// container uses to manipulate a member in place without knowing its
// concrete Go type.
//
// All three fields may be nil for a trivially-copyable type: the sectors
// container detects this via [Data.Trivial] and falls back to a raw byte
// copy, bypassing the table entirely.
type FuncTable struct {
	// Move constructs a value at dst by moving the value at src, leaving
	// src in an unspecified but safely destructible state.
	Move func(dst, src []byte)

	// Copy constructs a value at dst by copying the value at src, which
	// remains valid.
	Copy func(dst, src []byte)

	// Destroy runs the destructor (if any) for the value at p.
	Destroy func(p []byte)
}

// Data describes one component type's placement within a sector.
type Data struct {
	// Offset is the byte offset of this member within the sector payload.
	Offset uint32

	// Size is the size in bytes of one instance of this member.
	Size uint32

	// Bit is this member's index within the 32-bit liveness word
	// (0..31); LiveMask is 1<<Bit.
	Bit uint32

	// LiveMask is the liveness bit for this member, set in a sector's
	// live word iff the member is currently alive.
	LiveMask uint32

	// ClearMask is the complement of LiveMask, used to clear the bit on
	// removal: live &= ClearMask is equivalent to live &^= LiveMask but
	// spec.md names both the mask and its complement explicitly, so both
	// are kept as first-class fields rather than derived inline.
	ClearMask uint32

	// Trivial is true when this member requires no move/copy/destroy
	// logic beyond a raw byte copy. Supplied by the binding layer since
	// Go has no language-level triviality trait.
	Trivial bool

	// Funcs holds the type-erased move/copy/destroy operations. Only
	// consulted when Trivial is false.
	Funcs FuncTable
}

// Member describes one component type to [Create]. Token is a process-local
// type token, typically obtained from a [TokenOf] call in the binding layer.
type Member struct {
	Token   int32
	Size    uint32
	Align   uint32
	Trivial bool
	Funcs   FuncTable
}

// Meta is an immutable-after-construction bundle describing how a set of
// component types is packed into one sector.
//
// The zero value is not usable; construct with [Create].
type Meta struct {
	order   []int32        // token, in declaration order; index == Bit
	byToken map[int32]*Data // token -> layout data
	size    uint32          // total sector payload size, padded to max alignment
	trivial bool            // true iff every member is trivial
}

// Create computes the layout for a non-empty, duplicate-free set of member
// types.
//
// Offsets are assigned greedily in declaration order: each member starts at
// the next multiple of its own alignment. The total size is padded up to
// the maximum alignment among all members. Bit k of the liveness word
// corresponds to the k-th member in declaration order.
func Create(members ...Member) (*Meta, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}

	if len(members) > MaxMembers {
		return nil, fmt.Errorf("%w: %d members, max %d", ErrTooManyMembers, len(members), MaxMembers)
	}

	m := &Meta{
		byToken: make(map[int32]*Data, len(members)),
		trivial: true,
	}

	var offset uint32

	var maxAlign uint32 = 1

	for bit, mem := range members {
		if _, exists := m.byToken[mem.Token]; exists {
			return nil, fmt.Errorf("%w: token %d", ErrDuplicateMember, mem.Token)
		}

		align := mem.Align
		if align == 0 {
			align = 1
		}

		offset = alignUp(offset, align)

		liveMask := uint32(1) << uint32(bit)

		data := &Data{
			Offset:    offset,
			Size:      mem.Size,
			Bit:       uint32(bit),
			LiveMask:  liveMask,
			ClearMask: ^liveMask,
			Trivial:   mem.Trivial,
			Funcs:     mem.Funcs,
		}

		m.byToken[mem.Token] = data
		m.order = append(m.order, mem.Token)

		offset += mem.Size

		if align > maxAlign {
			maxAlign = align
		}

		m.trivial = m.trivial && mem.Trivial
	}

	m.size = alignUp(offset, maxAlign)

	return m, nil
}

// alignUp rounds x up to the next multiple of align. align must be a power
// of two.
func alignUp(x, align uint32) uint32 {
	return (x + align - 1) &^ (align - 1)
}

// Of returns the layout data for the given type token.
func (m *Meta) Of(token int32) (*Data, error) {
	d, ok := m.byToken[token]
	if !ok {
		return nil, fmt.Errorf("%w: token %d", ErrUnknownType, token)
	}

	return d, nil
}

// Has reports whether token is one of this layout's members.
func (m *Meta) Has(token int32) bool {
	_, ok := m.byToken[token]
	return ok
}

// Stride returns the total per-sector payload size in bytes, padded to the
// maximum member alignment.
func (m *Meta) Stride() uint32 {
	return m.size
}

// Trivial reports whether every member type is trivially copyable. When
// true, the sectors container may bypass per-member move/copy/destroy
// functions and use raw byte copies for the whole sector.
func (m *Meta) Trivial() bool {
	return m.trivial
}

// CombinedLiveMask ORs together the liveness bits of the given tokens. Used
// by grouped-fast-path view iteration to test "all of these types alive"
// with one mask comparison.
func (m *Meta) CombinedLiveMask(tokens ...int32) (uint32, error) {
	var mask uint32

	for _, tok := range tokens {
		d, err := m.Of(tok)
		if err != nil {
			return 0, err
		}

		mask |= d.LiveMask
	}

	return mask, nil
}

// NumMembers returns the number of component types in this layout.
func (m *Meta) NumMembers() int {
	return len(m.order)
}

// Members returns the type tokens in declaration (bit) order.
func (m *Meta) Members() []int32 {
	out := make([]int32, len(m.order))
	copy(out, m.order)

	return out
}
