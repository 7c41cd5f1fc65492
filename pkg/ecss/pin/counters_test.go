package pin_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/ecss/pkg/ecss/pin"
)

func TestCounters_NewHasNoMaxPinned(t *testing.T) {
	t.Parallel()

	c := pin.NewCounters()
	assert.Equal(t, int64(-1), c.MaxPinnedID())
	assert.Equal(t, int64(0), c.TotalPinned())
}

func TestCounters_PinUnpinRoundTrip(t *testing.T) {
	t.Parallel()

	c := pin.NewCounters()

	c.Pin(10)
	assert.True(t, c.IsPinned(10))
	assert.Equal(t, int64(1), c.TotalPinned())
	assert.Equal(t, int64(10), c.MaxPinnedID())

	c.Unpin(10)
	assert.False(t, c.IsPinned(10))
	assert.Equal(t, int64(0), c.TotalPinned())
	assert.Equal(t, int64(-1), c.MaxPinnedID())
}

func TestCounters_MultiplePinsOnSameIDStack(t *testing.T) {
	t.Parallel()

	c := pin.NewCounters()

	c.Pin(3)
	c.Pin(3)
	assert.Equal(t, int64(1), c.TotalPinned())

	c.Unpin(3)
	assert.True(t, c.IsPinned(3))

	c.Unpin(3)
	assert.False(t, c.IsPinned(3))
}

func TestCounters_MaxPinnedTracksHighest(t *testing.T) {
	t.Parallel()

	c := pin.NewCounters()

	c.Pin(5)
	c.Pin(20)
	c.Pin(2)

	assert.Equal(t, int64(20), c.MaxPinnedID())

	c.Unpin(20)
	assert.Equal(t, int64(5), c.MaxPinnedID())
}

func TestCounters_CanMove(t *testing.T) {
	t.Parallel()

	c := pin.NewCounters()

	assert.True(t, c.CanMove(0))

	c.Pin(5)
	assert.False(t, c.CanMove(5))
	assert.False(t, c.CanMove(3))
	assert.True(t, c.CanMove(6))

	c.Unpin(5)
	assert.True(t, c.CanMove(5))
}

func TestCounters_PinHandleReleasesOnce(t *testing.T) {
	t.Parallel()

	c := pin.NewCounters()

	h := c.PinHandle(7)
	assert.Equal(t, uint32(7), h.ID())
	assert.True(t, c.IsPinned(7))

	h.Release()
	assert.False(t, c.IsPinned(7))

	assert.NotPanics(t, func() {
		h.Release()
	})

	var nilHandle *pin.Handle
	assert.NotPanics(t, func() {
		nilHandle.Release()
	})
}

func TestCounters_WaitUntilChangeableUnblocksOnUnpin(t *testing.T) {
	t.Parallel()

	c := pin.NewCounters()
	c.Pin(4)

	done := make(chan struct{})

	go func() {
		c.WaitUntilChangeable(0)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitUntilChangeable returned before the pin was released")
	case <-time.After(20 * time.Millisecond):
	}

	c.Unpin(4)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilChangeable did not unblock after unpin")
	}
}

func TestCounters_WaitUntilChangeableReturnsImmediatelyWhenIdle(t *testing.T) {
	t.Parallel()

	c := pin.NewCounters()

	done := make(chan struct{})

	go func() {
		c.WaitUntilChangeable(0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilChangeable blocked with nothing pinned")
	}
}

func TestCounters_ConcurrentPinUnpin(t *testing.T) {
	t.Parallel()

	c := pin.NewCounters()

	var wg sync.WaitGroup

	const n = 200

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(id uint32) {
			defer wg.Done()

			c.Pin(id)
			c.Unpin(id)
		}(uint32(i))
	}

	wg.Wait()

	require.Equal(t, int64(0), c.TotalPinned())
	require.Equal(t, int64(-1), c.MaxPinnedID())
}
