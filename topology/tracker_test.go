package topology

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeTracker_CompletesRegardlessOfAckOrder(t *testing.T) {
	tr := newTreeTracker(0, slog.Default())
	var done atomic.Int32

	tree, err := tr.open(context.Background(), func() { done.Add(1) })
	require.NoError(t, err)

	// root r spawns children a and b; b spawns c
	r, a, b, c := uint64(0x11), uint64(0x22), uint64(0x44), uint64(0x88)

	tr.ack(tree, c)     // c processed, no children
	tr.ack(tree, b^c)   // b processed, spawned c
	tr.seal(tree, r)    // root issued
	tr.ack(tree, r^a^b) // root processed, spawned a and b
	assert.Equal(t, int32(0), done.Load(), "a is still open")
	assert.Equal(t, 1, tr.pending())

	tr.ack(tree, a)
	assert.Equal(t, int32(1), done.Load())
	assert.Equal(t, 0, tr.pending())

	tr.ack(tree, a)
	assert.Equal(t, int32(1), done.Load(), "acks for finished trees are ignored")
}

func TestTreeTracker_UnsealedTreeStaysOpen(t *testing.T) {
	tr := newTreeTracker(0, slog.Default())
	tree, err := tr.open(context.Background(), nil)
	require.NoError(t, err)

	tr.ack(tree, 0)
	assert.Equal(t, 1, tr.pending())

	tr.seal(tree, 0)
	assert.Equal(t, 0, tr.pending(), "a fact matching no alpha completes when sealed")
}

func TestTreeTracker_MaxPendingBlocks(t *testing.T) {
	tr := newTreeTracker(1, slog.Default())

	first, err := tr.open(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = tr.open(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	opened := make(chan uint64, 1)
	go func() {
		id, err := tr.open(context.Background(), nil)
		assert.NoError(t, err)
		opened <- id
	}()

	select {
	case <-opened:
		t.Fatal("second tree opened while the first was pending")
	case <-time.After(20 * time.Millisecond):
	}

	tr.seal(first, 0)
	select {
	case id := <-opened:
		tr.seal(id, 0)
	case <-time.After(time.Second):
		t.Fatal("second tree never opened")
	}
}

func TestTreeTracker_WaitIdle(t *testing.T) {
	tr := newTreeTracker(0, slog.Default())
	require.NoError(t, tr.waitIdle(context.Background()), "idle when nothing is open")

	tree, err := tr.open(context.Background(), nil)
	require.NoError(t, err)
	tr.hold()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.waitIdle(ctx), context.DeadlineExceeded)

	tr.seal(tree, 0)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	assert.Error(t, tr.waitIdle(ctx2), "held fact keeps the tracker busy")

	tr.release()
	assert.NoError(t, tr.waitIdle(context.Background()))

	tr.release()
	assert.NoError(t, tr.waitIdle(context.Background()), "extra release is ignored")
}
