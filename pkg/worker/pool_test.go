package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/micropipe/metric"
)

type testWork struct {
	id   int
	fail bool
}

func TestNewPool_Defaults(t *testing.T) {
	processor := func(_ context.Context, _ testWork) error { return nil }

	pool := NewPool(5, 100, processor)
	assert.Equal(t, 5, pool.workers)
	assert.Equal(t, 100, pool.queueSize)

	pool = NewPool(0, 0, processor)
	assert.Equal(t, 10, pool.workers)
	assert.Equal(t, 1000, pool.queueSize)
}

func TestNewPool_NilProcessor(t *testing.T) {
	assert.Panics(t, func() { NewPool[testWork](5, 100, nil) })
}

func TestPool_Lifecycle(t *testing.T) {
	pool := NewPool(2, 10, func(_ context.Context, _ testWork) error { return nil })

	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolNotStarted)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.ErrorIs(t, pool.Start(ctx), ErrPoolAlreadyStarted)

	require.NoError(t, pool.Stop(time.Second))
	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolStopped)
	assert.NoError(t, pool.Stop(time.Second))
}

func TestPool_ProcessesAndCountsFailures(t *testing.T) {
	var processed int64
	var wg sync.WaitGroup

	pool := NewPool(4, 100, func(_ context.Context, w testWork) error {
		defer wg.Done()
		atomic.AddInt64(&processed, 1)
		if w.fail {
			return errors.New("failed")
		}
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(testWork{id: i, fail: i%5 == 0}))
	}
	wg.Wait()
	require.NoError(t, pool.Stop(time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(20), atomic.LoadInt64(&processed))
	assert.Equal(t, int64(20), stats.Submitted)
	assert.Equal(t, int64(20), stats.Processed)
	assert.Equal(t, int64(4), stats.Failed)
	assert.Equal(t, int64(0), stats.Active)
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.Eventually(t, func() bool { return pool.Stats().Active == 1 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(testWork{id: 2}))
	assert.ErrorIs(t, pool.Submit(testWork{id: 3}), ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)

	close(release)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_RecoversPanics(t *testing.T) {
	done := make(chan struct{})
	pool := NewPool(1, 2, func(_ context.Context, w testWork) error {
		if w.id == 1 {
			panic("boom")
		}
		close(done)
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.NoError(t, pool.Submit(testWork{id: 2}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(1), pool.Stats().Failed)
}

func TestPool_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{}))
	require.Eventually(t, func() bool { return pool.Stats().Active == 1 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, pool.Stop(20*time.Millisecond), ErrStopTimeout)
}

func TestTaskPool_RunsLongTasksUntilCancelled(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewTaskPool(2, WithMetricsRegistry[Task](registry, "sources"))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))

	started := make(chan struct{})
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}))

	<-started
	assert.Equal(t, 1.0, testutil.ToFloat64(pool.metrics.active))

	cancel()
	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(1), pool.Stats().Processed)
	assert.Equal(t, 1.0, testutil.ToFloat64(pool.metrics.submitted))
}

func TestTaskPool_RejectsWhenEveryWorkerIsTaken(t *testing.T) {
	pool := NewTaskPool(2)
	require.NoError(t, pool.Start(context.Background()))

	release := make(chan struct{})
	var ran atomic.Int32
	hold := func(context.Context) error {
		ran.Add(1)
		<-release
		return nil
	}

	// accepted before any worker has picked them up
	require.NoError(t, pool.Submit(hold))
	require.NoError(t, pool.Submit(hold))
	assert.ErrorIs(t, pool.Submit(hold), ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)

	require.Eventually(t, func() bool { return ran.Load() == 2 }, time.Second, time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return pool.Stats().Processed == 2 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(func(context.Context) error { return nil }))
	require.NoError(t, pool.Stop(time.Second))
}
