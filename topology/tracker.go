package topology

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ackTree follows every envelope spawned by one ingested fact. value is the
// XOR of all envelope IDs issued into the tree and all acks received; once
// the roots are sealed in, it returns to zero exactly when the last envelope
// has been processed, regardless of the order acks arrive in.
type ackTree struct {
	value  uint64
	sealed bool
	onDone func()
}

// treeTracker owns the open ack trees of one run and bounds them with
// MaxSpoutPending
type treeTracker struct {
	mu    sync.Mutex
	trees map[uint64]*ackTree
	held  int
	next  uint64
	idle  chan struct{}

	sem    *semaphore.Weighted
	logger *slog.Logger
}

func newTreeTracker(maxPending int, logger *slog.Logger) *treeTracker {
	idle := make(chan struct{})
	close(idle)
	t := &treeTracker{
		trees:  make(map[uint64]*ackTree),
		idle:   idle,
		logger: logger,
	}
	if maxPending > 0 {
		t.sem = semaphore.NewWeighted(int64(maxPending))
	}
	return t
}

// open registers a new tree, blocking while MaxSpoutPending trees are open.
// onDone runs once when the tree completes.
func (t *treeTracker) open(ctx context.Context, onDone func()) (uint64, error) {
	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return 0, err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	t.markBusyLocked()
	t.trees[id] = &ackTree{onDone: onDone}
	return id, nil
}

// seal adds the root envelope IDs. Before sealing a tree never completes.
func (t *treeTracker) seal(id, roots uint64) {
	t.update(id, roots, true)
}

// ack records processed envelopes and the children they spawned
func (t *treeTracker) ack(id, value uint64) {
	t.update(id, value, false)
}

func (t *treeTracker) update(id, value uint64, seal bool) {
	t.mu.Lock()
	tree, ok := t.trees[id]
	if !ok {
		t.mu.Unlock()
		t.logger.Debug("Ack for unknown tree ignored", "tree", id)
		return
	}
	tree.value ^= value
	if seal {
		tree.sealed = true
	}
	if !tree.sealed || tree.value != 0 {
		t.mu.Unlock()
		return
	}
	delete(t.trees, id)
	t.markIdleLocked()
	t.mu.Unlock()

	if t.sem != nil {
		t.sem.Release(1)
	}
	if tree.onDone != nil {
		tree.onDone()
	}
}

// hold keeps the tracker busy for a fact that has been accepted but whose
// tree is not open yet
func (t *treeTracker) hold() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markBusyLocked()
	t.held++
}

// release undoes one hold
func (t *treeTracker) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held == 0 {
		return
	}
	t.held--
	t.markIdleLocked()
}

func (t *treeTracker) markBusyLocked() {
	if len(t.trees) == 0 && t.held == 0 {
		t.idle = make(chan struct{})
	}
}

func (t *treeTracker) markIdleLocked() {
	if len(t.trees) == 0 && t.held == 0 {
		close(t.idle)
	}
}

// pending returns the number of open trees
func (t *treeTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.trees)
}

// waitIdle blocks until no tree is open or held, or ctx is done
func (t *treeTracker) waitIdle(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
