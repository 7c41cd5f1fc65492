package sectors_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/ecss/pkg/ecss/sectors"
)

func TestThreadSafe_InsertGetRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewThreadSafe(trivialLayout(t), sectors.Options{})
	require.NoError(t, err)

	_, err = c.Insert(5, posToken, writeU64(42))
	require.NoError(t, err)

	buf, ok := c.Get(5, posToken)
	require.True(t, ok)
	assert.Equal(t, uint64(42), readU64(buf))
}

func TestThreadSafe_SnapshotReflectsInserts(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewThreadSafe(trivialLayout(t), sectors.Options{})
	require.NoError(t, err)

	snap0 := c.Snapshot()
	require.NotNil(t, snap0)
	assert.Empty(t, snap0.IDs)

	_, err = c.Insert(1, posToken, writeU64(1))
	require.NoError(t, err)

	snap1 := c.Snapshot()
	require.Len(t, snap1.IDs, 1)
	assert.Equal(t, uint32(1), snap1.IDs[0])
	assert.Empty(t, snap0.IDs)
}

func TestThreadSafe_EraseAsyncThenProcessPending(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewThreadSafe(trivialLayout(t), sectors.Options{})
	require.NoError(t, err)

	for id := uint32(1); id <= 3; id++ {
		_, err := c.Insert(id, posToken, writeU64(uint64(id)))
		require.NoError(t, err)
	}

	c.EraseAsync(2)

	processed, err := c.ProcessPendingErases(true)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	assert.False(t, c.Has(2, posToken))
	assert.True(t, c.Has(1, posToken))
	assert.True(t, c.Has(3, posToken))
}

func TestThreadSafe_DefragmentBlocksUntilPinReleased(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewThreadSafe(trivialLayout(t), sectors.Options{DefragThreshold: 0.01})
	require.NoError(t, err)

	for id := uint32(1); id <= 5; id++ {
		_, err := c.Insert(id, posToken, writeU64(uint64(id)))
		require.NoError(t, err)
	}

	pin := c.PinSector(1, posToken)

	require.True(t, pin.Live())
	assert.Equal(t, uint64(1), readU64(pin.DataPtr()))

	require.True(t, c.RemoveEntity(3))

	done := make(chan error, 1)

	go func() {
		done <- c.Defragment()
	}()

	select {
	case <-done:
		t.Fatal("Defragment returned while id 1 was still pinned")
	case <-time.After(20 * time.Millisecond):
	}

	// Pinning doesn't take the mutex, so other structural operations keep
	// working while Defragment waits.
	assert.True(t, c.Has(2, posToken))

	pin.Release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Defragment did not unblock after pin release")
	}

	assert.True(t, c.Has(1, posToken))
	assert.True(t, c.Has(2, posToken))
	assert.True(t, c.Has(4, posToken))
	assert.True(t, c.Has(5, posToken))
	assert.False(t, c.Has(3, posToken))
}

func TestThreadSafe_ClearWaitsForPinRelease(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewThreadSafe(trivialLayout(t), sectors.Options{})
	require.NoError(t, err)

	_, err = c.Insert(1, posToken, writeU64(1))
	require.NoError(t, err)

	pin := c.PinSector(1, posToken)

	done := make(chan struct{})

	go func() {
		defer close(done)

		require.NoError(t, c.Clear())
	}()

	select {
	case <-done:
		t.Fatal("Clear returned before the pin was released")
	case <-time.After(20 * time.Millisecond):
	}

	pin.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Clear did not unblock after pin release")
	}
}

func TestThreadSafe_TryDefragmentReturnsFalseWhilePinned(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewThreadSafe(trivialLayout(t), sectors.Options{DefragThreshold: 0.01})
	require.NoError(t, err)

	for id := uint32(1); id <= 3; id++ {
		_, err := c.Insert(id, posToken, writeU64(uint64(id)))
		require.NoError(t, err)
	}

	pin := c.PinSector(1, posToken)
	defer pin.Release()

	require.True(t, c.RemoveEntity(2))

	ran, err := c.TryDefragment()
	require.NoError(t, err)
	assert.False(t, ran)

	// Nothing moved: the dead slot for id 2 is still there, untouched.
	assert.True(t, c.Has(1, posToken))
	assert.True(t, c.Has(3, posToken))
}

func TestThreadSafe_TryDefragmentCompactsWhenNothingPinned(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewThreadSafe(trivialLayout(t), sectors.Options{})
	require.NoError(t, err)

	for id := uint32(1); id <= 3; id++ {
		_, err := c.Insert(id, posToken, writeU64(uint64(id)))
		require.NoError(t, err)
	}

	require.True(t, c.RemoveEntity(2))

	ran, err := c.TryDefragment()
	require.NoError(t, err)
	assert.True(t, ran)

	assert.True(t, c.Has(1, posToken))
	assert.True(t, c.Has(3, posToken))
	assert.Equal(t, 2, c.Len())
}

func TestThreadSafe_ProcessPendingErasesRequeuesPinnedIDs(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewThreadSafe(trivialLayout(t), sectors.Options{})
	require.NoError(t, err)

	for id := uint32(1); id <= 3; id++ {
		_, err := c.Insert(id, posToken, writeU64(uint64(id)))
		require.NoError(t, err)
	}

	pin := c.PinSector(2, posToken)

	c.EraseAsync(1)
	c.EraseAsync(2)

	processed, err := c.ProcessPendingErases(false)
	require.NoError(t, err)

	// id 1 is movable and gets destroyed now; id 2 is pinned and must
	// survive this call, requeued for the next one.
	assert.Equal(t, 1, processed)
	assert.False(t, c.Has(1, posToken))
	assert.True(t, c.Has(2, posToken))

	pin.Release()

	processed, err = c.ProcessPendingErases(false)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.False(t, c.Has(2, posToken))
}

func TestThreadSafe_ConcurrentInsertGet(t *testing.T) {
	t.Parallel()

	c, err := sectors.NewThreadSafe(trivialLayout(t), sectors.Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)

		go func(base uint32) {
			defer wg.Done()

			for i := uint32(0); i < 50; i++ {
				id := base*50 + i
				_, err := c.Insert(id, posToken, writeU64(uint64(id)))
				assert.NoError(t, err)
			}
		}(uint32(g))
	}

	wg.Wait()

	for id := uint32(0); id < 400; id++ {
		buf, ok := c.Get(id, posToken)
		require.True(t, ok)
		assert.Equal(t, uint64(id), readU64(buf))
	}
}
