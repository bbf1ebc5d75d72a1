// Package buffer provides a bounded, thread-safe FIFO that sheds load instead
// of blocking its producer.
//
// A Buffer sits between a producer that must never stall, such as a socket
// read loop, and a slower consumer. When it is full the overflow policy
// decides which item is lost:
//
//	buf, err := buffer.New[[]byte](1024,
//		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
//		buffer.WithMetrics[[]byte](registry, "udp_source"))
//	...
//	_ = buf.Write(datagram)       // never blocks
//	item, err := buf.Next(ctx)    // blocks until an item, Close or ctx
//
// Close lets the consumer drain what is left; Next reports ErrAlreadyStopped
// only once the buffer is closed and empty.
package buffer

import (
	"github.com/c360/semrete/metric"
)

// OverflowPolicy defines what a full buffer does with a new item
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room
	DropOldest OverflowPolicy = iota
	// DropNewest discards the incoming item
	DropNewest
)

// String returns a human-readable representation of the overflow policy
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy maps a config value to a policy. Empty means DropOldest.
func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	switch s {
	case "", "drop_oldest":
		return DropOldest, true
	case "drop_newest":
		return DropNewest, true
	default:
		return DropOldest, false
	}
}

// DropCallback is called with every item lost to overflow
type DropCallback[T any] func(item T)

// Option configures a Buffer
type Option[T any] func(*options[T])

type options[T any] struct {
	policy        OverflowPolicy
	onDrop        DropCallback[T]
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithOverflowPolicy sets the overflow behavior. Defaults to DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *options[T]) {
		o.policy = policy
	}
}

// WithMetrics exports buffer counters under prefix. A nil registry is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(o *options[T]) {
		if registry != nil && prefix != "" {
			o.metricsReg = registry
			o.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a callback invoked outside the lock for dropped items
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(o *options[T]) {
		o.onDrop = callback
	}
}
