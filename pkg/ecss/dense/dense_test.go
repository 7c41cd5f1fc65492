package dense_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/ecss/pkg/ecss/dense"
)

func TestDense_PushBackAndAccess(t *testing.T) {
	t.Parallel()

	var d dense.Dense

	d.PushBack(10, 1)
	d.PushBack(20, 2)

	require.Equal(t, 2, d.Len())
	assert.Equal(t, uint32(10), d.ID(0))
	assert.Equal(t, uint32(20), d.ID(1))
	assert.Equal(t, uint32(1), d.LiveMask(0))
	assert.Equal(t, uint32(2), d.LiveMask(1))
}

func TestDense_InsertionIndex(t *testing.T) {
	t.Parallel()

	var d dense.Dense

	d.PushBack(10, 0)
	d.PushBack(20, 0)
	d.PushBack(40, 0)

	assert.Equal(t, 0, d.InsertionIndex(5))
	assert.Equal(t, 1, d.InsertionIndex(15))
	assert.Equal(t, 2, d.InsertionIndex(30))
	assert.Equal(t, 3, d.InsertionIndex(50))
}

func TestDense_MakeRoomAtShiftsTail(t *testing.T) {
	t.Parallel()

	var d dense.Dense

	d.PushBack(10, 1)
	d.PushBack(30, 3)

	p := d.InsertionIndex(20)
	d.MakeRoomAt(p)
	d.IDs()[p] = 20
	d.Live()[p] = 2

	require.Equal(t, 3, d.Len())
	assert.Equal(t, []uint32{10, 20, 30}, d.IDs())
	assert.Equal(t, []uint32{1, 2, 3}, d.Live())
}

func TestDense_SetLiveMask(t *testing.T) {
	t.Parallel()

	var d dense.Dense
	d.PushBack(1, 0)

	d.SetLiveMask(0, 0b101)
	assert.Equal(t, uint32(0b101), d.LiveMask(0))
}

func TestDense_TruncateAndClear(t *testing.T) {
	t.Parallel()

	var d dense.Dense
	d.PushBack(1, 1)
	d.PushBack(2, 1)
	d.PushBack(3, 1)

	d.Truncate(1)
	assert.Equal(t, 1, d.Len())

	d.Clear()
	assert.Equal(t, 0, d.Len())
}

func TestDense_ReserveDoesNotChangeLen(t *testing.T) {
	t.Parallel()

	var d dense.Dense
	d.PushBack(1, 1)

	d.Reserve(100)
	assert.Equal(t, 1, d.Len())
	assert.GreaterOrEqual(t, cap(d.IDs()), 100)
}

func TestDense_ShrinkToFit(t *testing.T) {
	t.Parallel()

	var d dense.Dense
	d.Reserve(100)
	d.PushBack(1, 1)

	d.ShrinkToFit()
	assert.Equal(t, 1, cap(d.IDs()))
}

func TestSparse_SetGetInvalidate(t *testing.T) {
	t.Parallel()

	var s dense.Sparse

	_, ok := s.Get(5)
	assert.False(t, ok)

	s.Set(5, 0)
	idx, ok := s.Get(5)
	require.True(t, ok)
	assert.Equal(t, uint32(0), idx)

	s.Invalidate(5)

	_, ok = s.Get(5)
	assert.False(t, ok)
}

func TestSparse_GrowsSparsely(t *testing.T) {
	t.Parallel()

	var s dense.Sparse

	s.Set(1000, 7)

	idx, ok := s.Get(1000)
	require.True(t, ok)
	assert.Equal(t, uint32(7), idx)

	for _, id := range []uint32{0, 1, 500, 999} {
		_, ok := s.Get(id)
		assert.False(t, ok, "id %d should not be present", id)
	}
}

func TestSparse_ReserveThenSetFillsGapWithInvalid(t *testing.T) {
	t.Parallel()

	var s dense.Sparse

	s.Reserve(50)
	s.Set(10, 3)

	for id := uint32(0); id < 10; id++ {
		_, ok := s.Get(id)
		assert.False(t, ok, "id %d should not be present", id)
	}

	idx, ok := s.Get(10)
	require.True(t, ok)
	assert.Equal(t, uint32(3), idx)
}

func TestSparse_Clear(t *testing.T) {
	t.Parallel()

	var s dense.Sparse
	s.Set(3, 1)
	s.Set(7, 2)

	s.Clear()

	_, ok := s.Get(3)
	assert.False(t, ok)

	_, ok = s.Get(7)
	assert.False(t, ok)
}
