package cache

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Statistics tracks cache activity. All methods are safe for concurrent use.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
	size      atomic.Int64
	maxSize   atomic.Int64
	startTime time.Time
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Hit records a cache hit
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a cache miss
func (s *Statistics) Miss() { s.misses.Add(1) }

// Set records a set operation
func (s *Statistics) Set() { s.sets.Add(1) }

// Delete records a delete operation
func (s *Statistics) Delete() { s.deletes.Add(1) }

// Eviction records an eviction
func (s *Statistics) Eviction() { s.evictions.Add(1) }

// UpdateSize records the current size and tracks the high-water mark
func (s *Statistics) UpdateSize(size int64) {
	s.size.Store(size)
	for {
		peak := s.maxSize.Load()
		if size <= peak || s.maxSize.CompareAndSwap(peak, size) {
			return
		}
	}
}

// Hits returns the number of hits
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the number of misses
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Sets returns the number of set operations
func (s *Statistics) Sets() int64 { return s.sets.Load() }

// Deletes returns the number of delete operations
func (s *Statistics) Deletes() int64 { return s.deletes.Load() }

// Evictions returns the number of evictions
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// CurrentSize returns the last recorded size
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize returns the largest recorded size
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// HitRatio returns hits / (hits + misses), or 0 with no lookups
func (s *Statistics) HitRatio() float64 {
	hits, misses := s.Hits(), s.Misses()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Uptime returns the time since the statistics were created
func (s *Statistics) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// LogValue reports every counter as one slog group
func (s *Statistics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("hits", s.Hits()),
		slog.Int64("misses", s.Misses()),
		slog.Int64("sets", s.Sets()),
		slog.Int64("deletes", s.Deletes()),
		slog.Int64("evictions", s.Evictions()),
		slog.Int64("size", s.CurrentSize()),
		slog.Int64("max_size", s.MaxSize()),
		slog.Float64("hit_ratio", s.HitRatio()),
		slog.Duration("uptime", s.Uptime()),
	)
}
