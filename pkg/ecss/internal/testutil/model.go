// Package testutil provides a deliberately simple, in-memory oracle model
// of a sectors container's publicly observable behavior (which ids exist,
// which of their members are alive, and the member bytes themselves) for
// use by property and fuzz tests. The model favors clarity over
// performance: it does not attempt to mirror the dense/sparse/chunk
// representation, only what a caller can observe through Insert/Get/Remove.
package testutil

import (
	"sort"

	"github.com/google/go-cmp/cmp"
)

// Model is an in-memory oracle: id -> token -> alive member bytes. The
// zero value is not usable; construct with [NewModel].
type Model struct {
	sectors map[uint32]map[int32][]byte
}

// NewModel returns an empty oracle.
func NewModel() *Model {
	return &Model{sectors: make(map[uint32]map[int32][]byte)}
}

// Insert records value as token's alive value for id, overwriting any
// previous value, mirroring a sectors container's insert.
func (m *Model) Insert(id uint32, token int32, value []byte) {
	s, ok := m.sectors[id]
	if !ok {
		s = make(map[int32][]byte)
		m.sectors[id] = s
	}

	s[token] = append([]byte(nil), value...)
}

// Get returns token's recorded value for id, if any.
func (m *Model) Get(id uint32, token int32) ([]byte, bool) {
	s, ok := m.sectors[id]
	if !ok {
		return nil, false
	}

	v, ok := s[token]

	return v, ok
}

// Has reports whether id has a recorded value for token.
func (m *Model) Has(id uint32, token int32) bool {
	_, ok := m.Get(id, token)
	return ok
}

// Remove clears token's value for id. Reports whether anything was
// removed, mirroring a sectors container's remove.
func (m *Model) Remove(id uint32, token int32) bool {
	s, ok := m.sectors[id]
	if !ok {
		return false
	}

	if _, ok := s[token]; !ok {
		return false
	}

	delete(s, token)

	if len(s) == 0 {
		delete(m.sectors, id)
	}

	return true
}

// RemoveEntity clears every value for id. Reports whether id had any
// recorded value at all.
func (m *Model) RemoveEntity(id uint32) bool {
	_, ok := m.sectors[id]
	if ok {
		delete(m.sectors, id)
	}

	return ok
}

// Clear empties the model, mirroring a sectors container's clear.
func (m *Model) Clear() {
	m.sectors = make(map[uint32]map[int32][]byte)
}

// Len returns the number of ids with at least one alive value. A real
// container's Len (occupied dense slots) may exceed this between a
// remove and the next defragment; compare Len only right after
// defragmenting both sides.
func (m *Model) Len() int {
	return len(m.sectors)
}

// IDs returns every id with at least one alive value, ascending.
func (m *Model) IDs() []uint32 {
	ids := make([]uint32, 0, len(m.sectors))
	for id := range m.sectors {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// Snapshot returns a deep copy of the model's id -> token -> value state,
// suitable for [cmp.Diff] against [RealSnapshot].
func (m *Model) Snapshot() map[uint32]map[int32][]byte {
	out := make(map[uint32]map[int32][]byte, len(m.sectors))

	for id, s := range m.sectors {
		cp := make(map[int32][]byte, len(s))
		for tok, v := range s {
			cp[tok] = append([]byte(nil), v...)
		}

		out[id] = cp
	}

	return out
}

// Source is the read surface a real container exposes that [RealSnapshot]
// walks. Both sectors.NonThreadSafe and sectors.ThreadSafe satisfy it.
type Source interface {
	Rows() (ids []uint32, live []uint32)
	Get(id uint32, token int32) ([]byte, bool)
}

// RealSnapshot walks src's ids and, for each of tokens, records the alive
// value (if any), in the same shape [Model.Snapshot] produces.
func RealSnapshot(src Source, tokens []int32) map[uint32]map[int32][]byte {
	out := make(map[uint32]map[int32][]byte)

	ids, _ := src.Rows()

	for _, id := range ids {
		for _, tok := range tokens {
			v, ok := src.Get(id, tok)
			if !ok {
				continue
			}

			s, exists := out[id]
			if !exists {
				s = make(map[int32][]byte)
				out[id] = s
			}

			s[tok] = append([]byte(nil), v...)
		}
	}

	return out
}

// Diff compares the model against src's current observable state for the
// given tokens, returning an empty string when they agree.
func Diff(m *Model, src Source, tokens []int32) string {
	return cmp.Diff(m.Snapshot(), RealSnapshot(src, tokens))
}
