package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/metric"
)

func TestNewLRU_InvalidSize(t *testing.T) {
	_, err := NewLRU[int](0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, err := NewLRU[int](2, WithEvictionCallback[int](func(key string, _ int) {
		evicted = append(evicted, key)
	}))
	require.NoError(t, err)

	created, err := c.Set("a", 1)
	require.NoError(t, err)
	assert.True(t, created)
	_, _ = c.Set("b", 2)

	_, ok := c.Get("a") // a becomes most recent
	require.True(t, ok)

	_, _ = c.Set("c", 3)
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"c", "a"}, c.Keys())

	created, _ = c.Set("a", 10)
	assert.False(t, created)
	v, _ := c.Get("a")
	assert.Equal(t, 10, v)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions())
	assert.Equal(t, int64(2), stats.MaxSize())
}

func TestLRU_ContainsOrAdd(t *testing.T) {
	c, err := NewLRU[struct{}](10)
	require.NoError(t, err)

	found, err := c.ContainsOrAdd("k", struct{}{})
	require.NoError(t, err)
	assert.False(t, found)

	found, _ = c.ContainsOrAdd("k", struct{}{})
	assert.True(t, found)

	_, err = c.ContainsOrAdd("", struct{}{})
	assert.Error(t, err)
}

func TestLRU_ContainsOrAddConcurrent(t *testing.T) {
	c, err := NewLRU[struct{}](1000)
	require.NoError(t, err)

	var fresh atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if found, _ := c.ContainsOrAdd(fmt.Sprintf("key-%d", i), struct{}{}); !found {
					fresh.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), fresh.Load())
}

func TestLRU_DeleteAndClear(t *testing.T) {
	removed := 0
	c, err := NewLRU[string](5, WithEvictionCallback[string](func(string, string) { removed++ }))
	require.NoError(t, err)

	_, _ = c.Set("x", "1")
	_, _ = c.Set("y", "2")

	ok, err := c.Delete("x")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = c.Delete("x")
	assert.False(t, ok)

	require.NoError(t, c.Clear())
	assert.Zero(t, c.Size())
	assert.Equal(t, 2, removed)
	assert.NoError(t, c.Close())
}

func TestLRU_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, err := NewLRU[int](1, WithMetrics[int](registry, "dedup"))
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	_, _ = c.Get("b")
	_, _ = c.Get("a")

	lru := c.(*lruCache[int])
	assert.Equal(t, 1.0, testutil.ToFloat64(lru.metrics.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(lru.metrics.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(lru.metrics.misses))
	assert.InDelta(t, 0.5, c.Stats().HitRatio(), 1e-9)

	_, err = NewLRU[int](1, WithMetrics[int](registry, "dedup"))
	assert.Error(t, err, "same prefix registers twice")
}

func TestStatistics_LogValue(t *testing.T) {
	c, err := NewLRU[int](2)
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	_, _ = c.Set("c", 3)
	_, _ = c.Delete("c")
	_, _ = c.ContainsOrAdd("b", 0)

	got := map[string]slog.Value{}
	for _, attr := range c.Stats().LogValue().Group() {
		got[attr.Key] = attr.Value
	}
	assert.Equal(t, int64(3), got["sets"].Int64())
	assert.Equal(t, int64(1), got["deletes"].Int64())
	assert.Equal(t, int64(1), got["evictions"].Int64())
	assert.Equal(t, int64(1), got["size"].Int64())
	assert.Equal(t, int64(2), got["max_size"].Int64())
	assert.Equal(t, int64(1), got["hits"].Int64())
	assert.InDelta(t, 1.0, got["hit_ratio"].Float64(), 1e-9)
	assert.Contains(t, got, "uptime")
}
