package cache_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"catalog-backend/internal/infrastructure/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingTarget struct {
	calls atomic.Int32
}

func (c *countingTarget) Sweep() int {
	c.calls.Add(1)
	return 1
}

type panickingTarget struct{}

func (panickingTarget) Sweep() int { panic("corrupt index") }

func TestSweeper_SweepNow(t *testing.T) {
	clock := newFakeClock()
	store := cache.NewStore(cache.Options{TTL: cache.FixedTTL(time.Second), Clock: clock.Now})
	require.NoError(t, store.Set("a", 1, ""))
	require.NoError(t, store.Set("b", 2, ""))

	sweeper := cache.NewSweeper(0, zap.NewNop(), store, panickingTarget{})

	assert.Equal(t, 0, sweeper.SweepNow())
	clock.Advance(time.Second)
	assert.Equal(t, 2, sweeper.SweepNow(), "a panicking target must not stop the others")
	assert.Equal(t, 0, store.Len())
}

func TestSweeper_DisabledWithoutInterval(t *testing.T) {
	sweeper := cache.NewSweeper(0, nil)
	assert.False(t, sweeper.Start(context.Background()))
	assert.False(t, sweeper.Running())
	sweeper.Stop()
}

func TestSweeper_RunsPeriodically(t *testing.T) {
	target := &countingTarget{}
	sweeper := cache.NewSweeper(5*time.Millisecond, zap.NewNop(), target)

	require.True(t, sweeper.Start(context.Background()))
	assert.False(t, sweeper.Start(context.Background()), "second start is a no-op")
	assert.True(t, sweeper.Running())

	require.Eventually(t, func() bool {
		return target.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
	assert.False(t, sweeper.Running())

	calls := target.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, target.calls.Load(), "no sweeps after Stop")
}

func TestSweeper_StopsWithContext(t *testing.T) {
	target := &countingTarget{}
	sweeper := cache.NewSweeper(time.Millisecond, zap.NewNop(), target)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, sweeper.Start(ctx))
	cancel()

	// Stop still returns promptly after the context ended the loop.
	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestSweeper_RestartsAfterContextEnds(t *testing.T) {
	target := &countingTarget{}
	sweeper := cache.NewSweeper(time.Millisecond, zap.NewNop(), target)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, sweeper.Start(ctx))
	cancel()

	require.Eventually(t, func() bool {
		return !sweeper.Running()
	}, time.Second, time.Millisecond)

	require.True(t, sweeper.Start(context.Background()))
	defer sweeper.Stop()

	calls := target.calls.Load()
	require.Eventually(t, func() bool {
		return target.calls.Load() > calls
	}, time.Second, time.Millisecond)
}
