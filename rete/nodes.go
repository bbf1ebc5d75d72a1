package rete

import (
	"sync"
	"sync/atomic"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
)

// AlphaNode tests facts against a single pattern. It holds no mutable state
// and is safe for concurrent use.
type AlphaNode struct {
	Pattern Pattern
}

// Accept returns the binding produced by t, or false if t does not match
func (a *AlphaNode) Accept(t message.Triple) (Binding, bool) {
	return a.Pattern.Match(t)
}

// JoinNode combines bindings arriving on its left and right inputs.
// Each input has an append-only memory; arrivals are serialized per node so
// that every compatible pair is merged exactly once.
type JoinNode struct {
	mu    sync.Mutex
	left  []Binding
	right []Binding
}

// ReceiveLeft stores b in left memory and returns its merges with right memory
func (j *JoinNode) ReceiveLeft(b Binding) []Binding {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.left = append(j.left, b)
	return mergeAll(b, j.right)
}

// ReceiveRight stores b in right memory and returns its merges with left memory
func (j *JoinNode) ReceiveRight(b Binding) []Binding {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.right = append(j.right, b)
	return mergeAll(b, j.left)
}

// MemorySize returns the number of bindings held on each side
func (j *JoinNode) MemorySize() (left, right int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.left), len(j.right)
}

func mergeAll(b Binding, memory []Binding) []Binding {
	var out []Binding
	for _, m := range memory {
		if merged, ok := b.Merge(m); ok {
			out = append(out, merged)
		}
	}
	return out
}

// TerminalNode instantiates a rule's head patterns for complete bindings.
type TerminalNode struct {
	ID   NodeID
	Rule string
	Head []Pattern

	failed    atomic.Bool
	dropped   atomic.Int64
	illFormed atomic.Int64
}

// Receive instantiates every head pattern with b.
//
// A missing head variable means the network handed over a partial binding:
// the node is marked failed, an IncompleteBindingError is returned and all
// later deliveries are dropped. Instantiations that are not valid triples,
// such as a literal bound into the subject, are skipped.
func (t *TerminalNode) Receive(b Binding) ([]message.Triple, error) {
	out, _, err := t.receive(b)
	if err == ErrNodeFailed {
		return nil, nil
	}
	return out, err
}

// receive also reports the number of skipped instantiations. Deliveries to a
// failed node return ErrNodeFailed.
func (t *TerminalNode) receive(b Binding) ([]message.Triple, int, error) {
	if t.failed.Load() {
		t.dropped.Add(1)
		return nil, 0, ErrNodeFailed
	}

	out := make([]message.Triple, 0, len(t.Head))
	skipped := 0
	for _, h := range t.Head {
		triple, missing := h.Instantiate(b)
		if missing != "" {
			t.failed.Store(true)
			return nil, 0, &errors.IncompleteBindingError{Rule: t.Rule, Node: int(t.ID), Variable: missing}
		}
		if triple.Valid() != nil {
			t.illFormed.Add(1)
			skipped++
			continue
		}
		out = append(out, triple)
	}
	return out, skipped, nil
}

// Failed reports whether the node has seen an incomplete binding
func (t *TerminalNode) Failed() bool {
	return t.failed.Load()
}

// Dropped returns the number of deliveries discarded after failure
func (t *TerminalNode) Dropped() int64 {
	return t.dropped.Load()
}

// IllFormed returns the number of skipped head instantiations
func (t *TerminalNode) IllFormed() int64 {
	return t.illFormed.Load()
}
