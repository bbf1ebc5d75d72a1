package topology

import (
	"context"
	"sync"
)

// mailbox is an unbounded FIFO between node emissions and the executor.
// push never blocks, so a node handing work downstream cannot deadlock on a
// full executor queue.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{signal: make(chan struct{}, 1)}
}

// push appends v and reports false once the mailbox is closed
func (m *mailbox[T]) push(vs ...T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, vs...)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest item, blocking until one arrives. It returns false
// when the mailbox is closed or ctx is done.
func (m *mailbox[T]) pop(ctx context.Context) (T, bool) {
	var zero T
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return zero, false
		}
		if len(m.items) > 0 {
			v := m.items[0]
			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()
			return v, true
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-ctx.Done():
			return zero, false
		}
	}
}

// len returns the number of queued items
func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// close discards queued items and wakes a blocked pop
func (m *mailbox[T]) close() {
	m.mu.Lock()
	m.closed = true
	m.items = nil
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}
