package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/metric"
)

func TestNew_InvalidCapacity(t *testing.T) {
	_, err := New[int](0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestBuffer_FIFO(t *testing.T) {
	buf, err := New[int](4)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, buf.Write(i))
	}
	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, 4, buf.Capacity())

	for want := 1; want <= 3; want++ {
		got, ok := buf.Read()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := buf.Read()
	assert.False(t, ok)
}

func TestBuffer_Overflow(t *testing.T) {
	tests := []struct {
		name   string
		policy OverflowPolicy
		want   []int
		lost   []int
	}{
		{name: "drop oldest", policy: DropOldest, want: []int{3, 4, 5}, lost: []int{1, 2}},
		{name: "drop newest", policy: DropNewest, want: []int{1, 2, 3}, lost: []int{4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lost []int
			buf, err := New[int](3,
				WithOverflowPolicy[int](tt.policy),
				WithDropCallback(func(item int) { lost = append(lost, item) }))
			require.NoError(t, err)

			for i := 1; i <= 5; i++ {
				require.NoError(t, buf.Write(i))
			}

			var got []int
			for {
				item, ok := buf.Read()
				if !ok {
					break
				}
				got = append(got, item)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.lost, lost)
			assert.Equal(t, int64(2), buf.Drops())
		})
	}
}

func TestBuffer_WrapAround(t *testing.T) {
	buf, err := New[int](2)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, buf.Write(i))
		got, ok := buf.Read()
		require.True(t, ok)
		assert.Equal(t, i, got)
	}
	assert.Equal(t, int64(10), buf.Writes())
	assert.Zero(t, buf.Drops())
}

func TestBuffer_NextBlocksUntilWrite(t *testing.T) {
	buf, err := New[string](2)
	require.NoError(t, err)

	got := make(chan string, 1)
	go func() {
		item, err := buf.Next(context.Background())
		if err == nil {
			got <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, buf.Write("hello"))

	select {
	case item := <-got:
		assert.Equal(t, "hello", item)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Write")
	}
}

func TestBuffer_NextContextCancel(t *testing.T) {
	buf, err := New[int](1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = buf.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuffer_CloseDrains(t *testing.T) {
	buf, err := New[int](4)
	require.NoError(t, err)
	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))

	require.NoError(t, buf.Close())
	require.NoError(t, buf.Close())

	err = buf.Write(3)
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)

	ctx := context.Background()
	item, err := buf.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, item)
	item, err = buf.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, item)

	_, err = buf.Next(ctx)
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
}

func TestBuffer_CloseWakesReader(t *testing.T) {
	buf, err := New[int](1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := buf.Next(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, buf.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the reader")
	}
}

func TestBuffer_ConcurrentProducers(t *testing.T) {
	buf, err := New[int](1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = buf.Write(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, buf.Size())
	assert.Equal(t, int64(400), buf.Writes())
}

func TestBuffer_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	buf, err := New[int](1, WithMetrics[int](registry, "test_source"))
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	assert.Equal(t, float64(1), testutil.ToFloat64(buf.metrics.drops))
	assert.Equal(t, float64(1), testutil.ToFloat64(buf.metrics.size))

	_, err = New[int](1, WithMetrics[int](registry, "test_source"))
	assert.Error(t, err)

	require.NoError(t, buf.Close())
	again, err := New[int](1, WithMetrics[int](registry, "test_source"))
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestParseOverflowPolicy(t *testing.T) {
	p, ok := ParseOverflowPolicy("")
	assert.True(t, ok)
	assert.Equal(t, DropOldest, p)

	p, ok = ParseOverflowPolicy("drop_newest")
	assert.True(t, ok)
	assert.Equal(t, DropNewest, p)
	assert.Equal(t, "drop_newest", p.String())

	_, ok = ParseOverflowPolicy("block")
	assert.False(t, ok)
}
