// Package cache provides a generic, thread-safe LRU cache with always-on
// statistics and optional Prometheus metrics.
package cache

import (
	"github.com/c360/semrete/errors"
)

// Cache represents a generic cache keyed by string
type Cache[V any] interface {
	// Get retrieves a value and marks it recently used
	Get(key string) (V, bool)

	// Set stores a value. Returns true if a new entry was created.
	Set(key string, value V) (bool, error)

	// ContainsOrAdd stores value only if key is absent, in one step.
	// Returns true if the key was already present.
	ContainsOrAdd(key string, value V) (bool, error)

	// Delete removes an entry. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries
	Clear() error

	// Size returns the current number of entries
	Size() int

	// Keys returns all keys, most recently used first
	Keys() []string

	// Stats returns the cache statistics
	Stats() *Statistics

	// Close releases resources
	Close() error
}

// EvictCallback is called when an entry is evicted or removed
type EvictCallback[V any] func(key string, value V)

// NewLRU creates an LRU cache holding at most maxSize entries
func NewLRU[V any](maxSize int, opts ...Option[V]) (Cache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewLRU", "max size must be positive")
	}
	o := &cacheOptions[V]{}
	for _, opt := range opts {
		opt(o)
	}
	return newLRUCache(maxSize, o)
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
