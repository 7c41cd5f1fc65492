package view_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/ecss/pkg/ecss/layout"
	"github.com/calvinalkan/ecss/pkg/ecss/sectors"
	"github.com/calvinalkan/ecss/pkg/ecss/view"
)

const (
	posToken int32 = 0
	velToken int32 = 1
	hpToken  int32 = 0
)

func positionVelocityLayout(t *testing.T) *layout.Meta {
	t.Helper()

	m, err := layout.Create(
		layout.Member{Token: posToken, Size: 8, Align: 8, Trivial: true},
		layout.Member{Token: velToken, Size: 8, Align: 8, Trivial: true},
	)
	require.NoError(t, err)

	return m
}

func healthLayout(t *testing.T) *layout.Meta {
	t.Helper()

	m, err := layout.Create(
		layout.Member{Token: hpToken, Size: 8, Align: 8, Trivial: true},
	)
	require.NoError(t, err)

	return m
}

func writeU64(v uint64) func(dst []byte) {
	return func(dst []byte) {
		binary.LittleEndian.PutUint64(dst, v)
	}
}

func readU64(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

func TestView_GroupedPathVisitsEveryLiveEntityInOrder(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewNonThreadSafe(positionVelocityLayout(t), sectors.Options{})
	require.NoError(t, err)

	for _, id := range []uint32{5, 1, 3} {
		_, err := c.Insert(id, posToken, writeU64(uint64(id)*10))
		require.NoError(t, err)
		_, err = c.Insert(id, velToken, writeU64(uint64(id)*100))
		require.NoError(t, err)
	}

	// id 3 is missing velocity, so the grouped path must skip it.
	require.True(t, c.Remove(3, velToken))

	v := view.New(
		view.Member{Container: c, Token: posToken},
		[]view.Member{{Container: c, Token: velToken, Required: true}},
		nil,
	)

	var gotIDs []uint32

	for row := range v.All() {
		gotIDs = append(gotIDs, row.ID)
		assert.Equal(t, uint64(row.ID)*10, readU64(row.Main))
		require.Len(t, row.Extras, 1)
		assert.Equal(t, uint64(row.ID)*100, readU64(row.Extras[0]))
	}

	assert.Equal(t, []uint32{1, 5}, gotIDs)
}

func TestView_GeneralPathAcrossTwoContainersOptionalExtra(t *testing.T) {
	t.Parallel()

	positions, err := sectors.NewNonThreadSafe(positionVelocityLayout(t), sectors.Options{})
	require.NoError(t, err)

	healths, err := sectors.NewNonThreadSafe(healthLayout(t), sectors.Options{})
	require.NoError(t, err)

	for _, id := range []uint32{1, 2, 3} {
		_, err := positions.Insert(id, posToken, writeU64(uint64(id)))
		require.NoError(t, err)
	}

	// Only entity 2 has health — an optional extra across a different
	// container.
	_, err = healths.Insert(2, hpToken, writeU64(99))
	require.NoError(t, err)

	v := view.New(
		view.Member{Container: positions, Token: posToken},
		[]view.Member{{Container: healths, Token: hpToken, Required: false}},
		nil,
	)

	var rows []view.Row

	for row := range v.All() {
		rows = append(rows, row)
	}

	require.Len(t, rows, 3)
	assert.Equal(t, []uint32{1, 2, 3}, []uint32{rows[0].ID, rows[1].ID, rows[2].ID})

	assert.Nil(t, rows[0].Extras[0])
	require.NotNil(t, rows[1].Extras[0])
	assert.Equal(t, uint64(99), readU64(rows[1].Extras[0]))
	assert.Nil(t, rows[2].Extras[0])
}

func TestView_GeneralPathRequiredExtraSkipsMissingEntities(t *testing.T) {
	t.Parallel()

	positions, err := sectors.NewNonThreadSafe(positionVelocityLayout(t), sectors.Options{})
	require.NoError(t, err)

	healths, err := sectors.NewNonThreadSafe(healthLayout(t), sectors.Options{})
	require.NoError(t, err)

	for _, id := range []uint32{1, 2, 3} {
		_, err := positions.Insert(id, posToken, writeU64(uint64(id)))
		require.NoError(t, err)
	}

	_, err = healths.Insert(2, hpToken, writeU64(99))
	require.NoError(t, err)

	v := view.New(
		view.Member{Container: positions, Token: posToken},
		[]view.Member{{Container: healths, Token: hpToken, Required: true}},
		nil,
	)

	var ids []uint32

	for row := range v.All() {
		ids = append(ids, row.ID)
	}

	assert.Equal(t, []uint32{2}, ids)
}

func TestView_RangedIterationRestrictsToIDWindow(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewNonThreadSafe(positionVelocityLayout(t), sectors.Options{})
	require.NoError(t, err)

	for id := uint32(1); id <= 10; id++ {
		_, err := c.Insert(id, posToken, writeU64(uint64(id)))
		require.NoError(t, err)
	}

	v := view.New(
		view.Member{Container: c, Token: posToken},
		nil,
		[]view.Range{{Begin: 3, End: 6}},
	)

	var ids []uint32

	for row := range v.All() {
		ids = append(ids, row.ID)
	}

	assert.Equal(t, []uint32{3, 4, 5}, ids)
}

func TestView_EarlyBreakStopsIteration(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewNonThreadSafe(positionVelocityLayout(t), sectors.Options{})
	require.NoError(t, err)

	for id := uint32(1); id <= 5; id++ {
		_, err := c.Insert(id, posToken, writeU64(uint64(id)))
		require.NoError(t, err)
	}

	v := view.New(view.Member{Container: c, Token: posToken}, nil, nil)

	var ids []uint32

	for row := range v.All() {
		ids = append(ids, row.ID)
		if row.ID == 2 {
			break
		}
	}

	assert.Equal(t, []uint32{1, 2}, ids)
}

func TestView_ThreadSafeContainerPinsTailDuringIteration(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewThreadSafe(positionVelocityLayout(t), sectors.Options{})
	require.NoError(t, err)

	for id := uint32(1); id <= 5; id++ {
		_, err := c.Insert(id, posToken, writeU64(uint64(id)))
		require.NoError(t, err)
	}

	v := view.New(view.Member{Container: c, Token: posToken}, nil, nil)

	var ids []uint32

	for row := range v.All() {
		ids = append(ids, row.ID)
	}

	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, ids)

	require.True(t, c.RemoveEntity(3))

	// Defragment blocks while the view's pin on the tail sector (id 5)
	// is still outstanding.
	done := make(chan error, 1)

	go func() {
		done <- c.Defragment()
	}()

	select {
	case <-done:
		t.Fatal("Defragment returned while the view's pin was still held")
	case <-time.After(50 * time.Millisecond):
	}

	v.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Defragment did not complete after the pin was released")
	}

	_, ok := c.Get(5, posToken)
	assert.True(t, ok)
}
