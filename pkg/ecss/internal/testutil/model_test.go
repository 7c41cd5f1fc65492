package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/calvinalkan/ecss/pkg/ecss/internal/testutil"
)

func TestModel_InsertGetRemove(t *testing.T) {
	t.Parallel()

	m := testutil.NewModel()

	m.Insert(1, 0, []byte{1, 2, 3})

	v, ok := m.Get(1, 0)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, v)

	assert.True(t, m.Remove(1, 0))
	assert.False(t, m.Has(1, 0))
	assert.False(t, m.Remove(1, 0))
}

func TestModel_RemoveEntityDropsEveryMember(t *testing.T) {
	t.Parallel()

	m := testutil.NewModel()

	m.Insert(1, 0, []byte{1})
	m.Insert(1, 1, []byte{2})

	assert.True(t, m.RemoveEntity(1))
	assert.False(t, m.Has(1, 0))
	assert.False(t, m.Has(1, 1))
	assert.Equal(t, 0, m.Len())
}

func TestModel_IDsAscending(t *testing.T) {
	t.Parallel()

	m := testutil.NewModel()

	for _, id := range []uint32{5, 1, 3} {
		m.Insert(id, 0, []byte{byte(id)})
	}

	assert.Equal(t, []uint32{1, 3, 5}, m.IDs())
}

func TestModel_SnapshotIsIndependentCopy(t *testing.T) {
	t.Parallel()

	m := testutil.NewModel()
	m.Insert(1, 0, []byte{1})

	snap := m.Snapshot()
	snap[1][0][0] = 99

	v, _ := m.Get(1, 0)
	assert.Equal(t, byte(1), v[0])
}
