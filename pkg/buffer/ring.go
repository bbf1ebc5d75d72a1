package buffer

import (
	"context"
	"sync"

	"github.com/c360/semrete/errors"
)

// Buffer is a fixed-capacity ring buffer
type Buffer[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // next read position
	size     int
	closed   bool
	ready    chan struct{}
	policy   OverflowPolicy
	onDrop   DropCallback[T]
	metrics  *bufferMetrics
	writes   int64
	drops    int64
	capacity int
}

// New creates a buffer holding at most capacity items
func New[T any](capacity int, opts ...Option[T]) (*Buffer[T], error) {
	if capacity < 1 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Buffer", "New", "capacity must be at least 1")
	}

	o := &options[T]{policy: DropOldest}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	b := &Buffer[T]{
		items:    make([]T, capacity),
		ready:    make(chan struct{}, 1),
		policy:   o.policy,
		onDrop:   o.onDrop,
		capacity: capacity,
	}
	if o.metricsReg != nil {
		m, err := newBufferMetrics(o.metricsReg, o.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "Buffer", "New", "metrics registration")
		}
		b.metrics = m
	}
	return b, nil
}

// Write adds an item without blocking. A full buffer applies the overflow
// policy. Writing to a closed buffer fails.
func (b *Buffer[T]) Write(item T) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	var (
		dropped T
		didDrop bool
	)
	if b.size == b.capacity {
		didDrop = true
		b.drops++
		b.metrics.recordDrop()
		if b.policy == DropNewest {
			b.mu.Unlock()
			if b.onDrop != nil {
				b.onDrop(item)
			}
			return nil
		}
		var zero T
		dropped = b.items[b.head]
		b.items[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.size--
	}

	b.items[(b.head+b.size)%b.capacity] = item
	b.size++
	b.writes++
	b.metrics.recordSize(b.size)

	select {
	case b.ready <- struct{}{}:
	default:
	}
	b.mu.Unlock()

	if didDrop && b.onDrop != nil {
		b.onDrop(dropped)
	}
	return nil
}

// Read removes the oldest item. It reports false when the buffer is empty.
func (b *Buffer[T]) Read() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked()
}

func (b *Buffer[T]) readLocked() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	item := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % b.capacity
	b.size--
	b.metrics.recordSize(b.size)
	return item, true
}

// Next blocks until an item is available. It returns ctx.Err() when ctx ends
// and ErrAlreadyStopped once the buffer is closed and drained.
func (b *Buffer[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		b.mu.Lock()
		item, ok := b.readLocked()
		closed := b.closed
		b.mu.Unlock()

		if ok {
			return item, nil
		}
		if closed {
			return zero, errors.ErrAlreadyStopped
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-b.ready:
		}
	}
}

// Size returns the number of buffered items
func (b *Buffer[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity returns the maximum number of items
func (b *Buffer[T]) Capacity() int {
	return b.capacity
}

// Writes returns the number of accepted items
func (b *Buffer[T]) Writes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Drops returns the number of items lost to overflow
func (b *Buffer[T]) Drops() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops
}

// Close stops accepting writes and wakes blocked readers. Buffered items stay
// readable. Metrics are unregistered.
func (b *Buffer[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.ready)
	b.metrics.unregister()
	return nil
}
