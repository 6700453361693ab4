package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, workers int) *Pool {
	t.Helper()
	pool, err := New(&Config{Workers: workers}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)
	return pool
}

func TestSubmitRunsTask(t *testing.T) {
	pool := newTestPool(t, 4)

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.EqualValues(t, 10, ran.Load())
	stats := pool.Stats()
	assert.EqualValues(t, 10, stats.Submitted)
	assert.EqualValues(t, 10, stats.Completed)
	assert.EqualValues(t, 0, stats.Failed)
}

func TestSubmitAfterFiresOnceAfterDelay(t *testing.T) {
	pool := newTestPool(t, 2)

	fired := make(chan time.Time, 1)
	start := time.Now()
	require.NoError(t, pool.SubmitAfter(30*time.Millisecond, func() {
		fired <- time.Now()
	}))

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 30*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task never ran")
	}
}

func TestPanicDoesNotKillSiblings(t *testing.T) {
	pool := newTestPool(t, 2)

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Submit(func() {
		defer wg.Done()
		panic("boom")
	}))
	wg.Wait()

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stopped running tasks after a panic")
	}

	stats := pool.Stats()
	assert.EqualValues(t, 1, stats.Failed)
}

func TestShutdownRejectsNewWork(t *testing.T) {
	pool, err := New(&Config{Workers: 2}, zap.NewNop())
	require.NoError(t, err)
	pool.Shutdown()

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
	assert.ErrorIs(t, pool.SubmitAfter(time.Millisecond, func() {}), ErrPoolClosed)
}

func TestShutdownDropsPendingDelayedTasks(t *testing.T) {
	pool, err := New(&Config{Workers: 2}, zap.NewNop())
	require.NoError(t, err)

	var ran atomic.Bool
	require.NoError(t, pool.SubmitAfter(50*time.Millisecond, func() {
		ran.Store(true)
	}))
	pool.Shutdown()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran.Load())
}
