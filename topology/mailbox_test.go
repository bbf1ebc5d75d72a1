package topology

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_FIFO(t *testing.T) {
	box := newMailbox[int]()
	for i := 0; i < 1000; i++ {
		require.True(t, box.push(i))
	}
	assert.Equal(t, 1000, box.len())

	for i := 0; i < 1000; i++ {
		v, ok := box.pop(context.Background())
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestMailbox_PopWaitsForPush(t *testing.T) {
	box := newMailbox[string]()
	got := make(chan string, 1)
	go func() {
		v, _ := box.pop(context.Background())
		got <- v
	}()

	time.Sleep(10 * time.Millisecond)
	box.push("hello")

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestMailbox_Close(t *testing.T) {
	box := newMailbox[int]()
	box.push(1, 2)

	released := make(chan bool, 1)
	empty := newMailbox[int]()
	go func() {
		_, ok := empty.pop(context.Background())
		released <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	empty.close()
	select {
	case ok := <-released:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("close did not release pop")
	}

	box.close()
	_, ok := box.pop(context.Background())
	assert.False(t, ok, "queued items are discarded on close")
	assert.False(t, box.push(3))
}

func TestMailbox_PopHonoursContext(t *testing.T) {
	box := newMailbox[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok := box.pop(ctx)
	assert.False(t, ok)
}
