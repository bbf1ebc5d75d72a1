package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/message"
)

// CollectorSink is an in-memory component.Sink that records every write.
// Duplicates are kept so tests can observe at-least-once behaviour.
type CollectorSink struct {
	*component.FlowTracker

	mu      sync.Mutex
	triples []message.Triple
	closed  bool
	failErr error
}

// NewCollectorSink creates an empty collector
func NewCollectorSink() *CollectorSink {
	return &CollectorSink{FlowTracker: component.NewFlowTracker()}
}

// Meta implements component.Discoverable
func (s *CollectorSink) Meta() component.Metadata {
	return component.Metadata{Name: "collector", Type: component.TypeOutput, Description: "in-memory test sink"}
}

// FailWith makes every following Write return err; nil restores normal operation
func (s *CollectorSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Write records t
func (s *CollectorSink) Write(_ context.Context, t message.Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("collector sink is closed")
	}
	if s.failErr != nil {
		return s.failErr
	}
	s.triples = append(s.triples, t)
	s.Record(1)
	return nil
}

// Close marks the sink closed
func (s *CollectorSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *CollectorSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Triples returns every write in arrival order
func (s *CollectorSink) Triples() []message.Triple {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Triple, len(s.triples))
	copy(out, s.triples)
	return out
}

// Set returns the distinct triples written
func (s *CollectorSink) Set() map[message.Triple]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[message.Triple]bool, len(s.triples))
	for _, t := range s.triples {
		set[t] = true
	}
	return set
}

// Lines returns the distinct triples as sorted N-Triples lines
func (s *CollectorSink) Lines() []string {
	set := s.Set()
	lines := make([]string, 0, len(set))
	for t := range set {
		lines = append(lines, t.String())
	}
	sort.Strings(lines)
	return lines
}

// WaitForCount waits until at least n distinct triples were written
func (s *CollectorSink) WaitForCount(t *testing.T, n int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(s.Set()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d derived triples (got %d)", n, len(s.Set()))
}
