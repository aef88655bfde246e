package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlight_RefusesConcurrentDuplicate(t *testing.T) {
	g := NewInFlight()
	ctx := context.Background()

	release, ok, err := g.Acquire(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	_, dup, err := g.Acquire(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, 1, g.Len())

	other, ok, _ := g.Acquire(ctx, "m2")
	assert.True(t, ok)
	assert.Equal(t, 2, g.Len())

	release()
	other()
	assert.Equal(t, 0, g.Len())

	again, ok, _ := g.Acquire(ctx, "m1")
	assert.True(t, ok)
	again()
}

func TestInFlight_ReleaseIsIdempotent(t *testing.T) {
	g := NewInFlight()
	release, ok, _ := g.Acquire(context.Background(), "m1")
	require.True(t, ok)

	release()
	release()

	assert.Equal(t, 0, g.Len())
	_, ok, _ = g.Acquire(context.Background(), "m1")
	assert.True(t, ok)
}

func TestInFlight_OneWinnerUnderContention(t *testing.T) {
	g := NewInFlight()
	start := make(chan struct{})
	hold := make(chan struct{})
	var winners, losers atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			release, ok, _ := g.Acquire(context.Background(), "m1")
			if !ok {
				losers.Add(1)
				return
			}
			winners.Add(1)
			<-hold
			release()
		}()
	}

	close(start)
	assert.Eventually(t, func() bool { return losers.Load() == 31 }, time.Second, 5*time.Millisecond)
	close(hold)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 0, g.Len())
}

func TestLeaseKey(t *testing.T) {
	assert.Equal(t, "dedup:message:abc", leaseKey("abc"))
}
