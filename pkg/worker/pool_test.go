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
	"go.uber.org/goleak"

	"github.com/c360/semrete/metric"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testWork struct {
	id    int
	delay time.Duration
	fail  bool
}

func process(counter *int64) func(context.Context, testWork) error {
	return func(_ context.Context, w testWork) error {
		time.Sleep(w.delay)
		atomic.AddInt64(counter, 1)
		if w.fail {
			return errors.New("work failed")
		}
		return nil
	}
}

func TestNewPool_Defaults(t *testing.T) {
	var n int64
	pool := NewPool(0, 0, process(&n))
	assert.Equal(t, 10, pool.workers)
	assert.Equal(t, 1000, pool.queueSize)

	assert.PanicsWithValue(t, ErrNilProcessor, func() {
		NewPool[testWork](1, 1, nil)
	})
}

func TestPool_Lifecycle(t *testing.T) {
	var n int64
	pool := NewPool(2, 10, process(&n))

	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolNotStarted)
	assert.ErrorIs(t, pool.SubmitWait(context.Background(), testWork{}), ErrPoolNotStarted)

	require.NoError(t, pool.Start(context.Background()))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(testWork{id: i}))
	}
	require.NoError(t, pool.Stop(5*time.Second))
	assert.Equal(t, int64(5), atomic.LoadInt64(&n), "stop drains queued work")

	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolStopped)
	assert.NoError(t, pool.Stop(time.Second), "second stop is a no-op")
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(testWork{id: 2}))
	assert.ErrorIs(t, pool.Submit(testWork{id: 3}), ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)

	close(release)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_SubmitWaitBlocksUntilSpace(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(testWork{id: 2}))

	submitted := make(chan error, 1)
	go func() {
		submitted <- pool.SubmitWait(context.Background(), testWork{id: 3})
	}()

	select {
	case <-submitted:
		t.Fatal("SubmitWait returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-submitted)
	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(3), pool.Stats().Processed)
	assert.Zero(t, pool.Stats().Dropped)
}

func TestPool_SubmitWaitCancellation(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{}))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(testWork{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.SubmitWait(ctx, testWork{}), context.DeadlineExceeded)

	blocked := make(chan error, 1)
	go func() {
		blocked <- pool.SubmitWait(context.Background(), testWork{})
	}()
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- pool.Stop(time.Second) }()
	assert.ErrorIs(t, <-blocked, ErrPoolStopped)

	close(release)
	assert.NoError(t, <-stopped)
}

func TestPool_ProcessingErrorsCounted(t *testing.T) {
	var n int64
	pool := NewPool(3, 50, process(&n))
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 20; i++ {
		require.NoError(t, pool.SubmitWait(context.Background(), testWork{id: i, fail: i%4 == 0}))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(20), stats.Submitted)
	assert.Equal(t, int64(20), stats.Processed)
	assert.Equal(t, int64(5), stats.Failed)
}

func TestPool_ConcurrentSubmitters(t *testing.T) {
	var n int64
	pool := NewPool(4, 8, process(&n))
	require.NoError(t, pool.Start(context.Background()))

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, pool.SubmitWait(context.Background(), testWork{id: i}))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, pool.Stop(5*time.Second))
	assert.Equal(t, int64(500), atomic.LoadInt64(&n))
}

func TestPool_ContextCancellationStopsWorkers(t *testing.T) {
	var n int64
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(2, 10, process(&n))
	require.NoError(t, pool.Start(ctx))
	cancel()
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{}))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, pool.Stop(10*time.Millisecond), ErrStopTimeout)
	close(release)
	// let the worker exit so goleak stays quiet
	require.Eventually(t, func() bool { return pool.Stats().Processed == 1 }, time.Second, time.Millisecond)
	pool.wg.Wait()
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	var n int64
	pool := NewPool(2, 10, process(&n), WithMetricsRegistry[testWork](registry, "test_pool"))
	require.NotNil(t, pool.metrics)

	require.NoError(t, pool.Start(context.Background()))
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(testWork{id: i}))
	}
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, 3.0, testutil.ToFloat64(pool.metrics.submitted))
	assert.Equal(t, 3.0, testutil.ToFloat64(pool.metrics.processed))

	pool.Unregister()
	again := NewPool(1, 1, process(&n), WithMetricsRegistry[testWork](registry, "test_pool"))
	assert.NotNil(t, again.metrics)
}
