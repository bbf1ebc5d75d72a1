package ntriples

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
)

const facts = `# people
<http://example.com/John> <http://example.com/speaks> "English" .

<http://example.com/John> <http://example.com/legs> "2" .
this line is broken
<http://example.com/Rex> <http://example.com/legs> "4" .`

type collector struct {
	mu     sync.Mutex
	facts  []message.Triple
	notify chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 64)}
}

func (c *collector) emit(_ context.Context, t message.Triple) error {
	c.mu.Lock()
	c.facts = append(c.facts, t)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.facts)
}

func writeFacts(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "facts.nt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestSource(t *testing.T, url string, mutate ...func(*Config)) *Source {
	cfg := DefaultConfig()
	cfg.URL = url
	for _, m := range mutate {
		m(&cfg)
	}
	src, err := NewSource(cfg, component.Dependencies{})
	require.NoError(t, err)
	return src
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "path", cfg: Config{URL: "facts.nt"}},
		{name: "file url", cfg: Config{URL: "file:///tmp/facts.nt"}},
		{name: "http url", cfg: Config{URL: "https://example.com/facts.nt"}},
		{name: "stdin", cfg: Config{URL: "-"}},
		{name: "missing url", cfg: Config{}, wantErr: true},
		{name: "unknown scheme", cfg: Config{URL: "ftp://example.com/facts.nt"}, wantErr: true},
		{name: "follow remote", cfg: Config{URL: "http://example.com/f.nt", Follow: true}, wantErr: true},
		{name: "negative rate", cfg: Config{URL: "f.nt", RateLimit: -1}, wantErr: true},
		{name: "rate without burst", cfg: Config{URL: "f.nt", RateLimit: 10}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSource_SkipsMalformedLines(t *testing.T) {
	src := newTestSource(t, writeFacts(t, facts))
	c := newCollector()

	require.NoError(t, src.Run(context.Background(), c.emit))

	require.Len(t, c.facts, 3)
	assert.Equal(t, message.IRI("http://example.com/Rex"), c.facts[2].Subject)
	assert.Equal(t, int64(3), src.Messages())
	assert.Equal(t, int64(1), src.Errors())
	assert.True(t, src.Health().Healthy)
	assert.Contains(t, src.Health().LastError, ":5:")
}

func TestSource_FileURL(t *testing.T) {
	path := writeFacts(t, facts)
	src := newTestSource(t, "file://"+path)
	c := newCollector()

	require.NoError(t, src.Run(context.Background(), c.emit))
	assert.Len(t, c.facts, 3)
}

func TestSource_MissingFile(t *testing.T) {
	src := newTestSource(t, filepath.Join(t.TempDir(), "absent.nt"))
	err := src.Run(context.Background(), newCollector().emit)
	require.Error(t, err)
	assert.False(t, src.Health().Healthy)
}

func TestSource_HTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/facts.nt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(facts))
	}))
	defer server.Close()

	src := newTestSource(t, server.URL+"/facts.nt")
	c := newCollector()
	require.NoError(t, src.Run(context.Background(), c.emit))
	assert.Len(t, c.facts, 3)

	missing := newTestSource(t, server.URL+"/missing.nt")
	assert.Error(t, missing.Run(context.Background(), c.emit))
}

func TestSource_HTTPRetriesServerErrorsOnly(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch {
		case r.URL.Path == "/gone.nt":
			http.NotFound(w, r)
		case n < 3:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte(facts))
		}
	}))
	defer server.Close()

	src := newTestSource(t, server.URL+"/facts.nt")
	c := newCollector()
	require.NoError(t, src.Run(context.Background(), c.emit))
	assert.Len(t, c.facts, 3)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	gone := newTestSource(t, server.URL+"/gone.nt")
	err := gone.Run(context.Background(), c.emit)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestSource_Stdin(t *testing.T) {
	src := newTestSource(t, "-")
	src.stdin = strings.NewReader(facts)
	c := newCollector()
	require.NoError(t, src.Run(context.Background(), c.emit))
	assert.Len(t, c.facts, 3)
}

func TestSource_EmitErrorStopsRun(t *testing.T) {
	src := newTestSource(t, writeFacts(t, facts))
	stop := errors.ErrShuttingDown
	err := src.Run(context.Background(), func(context.Context, message.Triple) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestSource_RateLimit(t *testing.T) {
	src := newTestSource(t, writeFacts(t, facts), func(c *Config) {
		c.RateLimit = 20
		c.Burst = 1
	})
	c := newCollector()

	start := time.Now()
	require.NoError(t, src.Run(context.Background(), c.emit))
	assert.Len(t, c.facts, 3)
	// Three facts with a burst of one wait for two refills at 50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestSource_Follow(t *testing.T) {
	path := writeFacts(t, "<http://example.com/a> <http://example.com/p> <http://example.com/b> .\n")
	src := newTestSource(t, path, func(c *Config) { c.Follow = true })
	c := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, c.emit) }()

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("<http://example.com/c> <http://example.com/p> ")
	require.NoError(t, err)
	_, err = f.WriteString("<http://example.com/d> .\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return c.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not stop after cancel")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, message.IRI("http://example.com/c"), c.facts[1].Subject)
}

func TestSource_FollowRereadsTruncatedFile(t *testing.T) {
	path := writeFacts(t, "<http://example.com/first> <http://example.com/p> <http://example.com/o> .\n"+
		"<http://example.com/second> <http://example.com/p> <http://example.com/o> .\n")
	src := newTestSource(t, path, func(c *Config) { c.Follow = true })
	c := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, c.emit) }()

	require.Eventually(t, func() bool { return c.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	// copytruncate: same inode, emptied, then written again from the top
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("<http://example.com/n> <http://example.com/p> <http://example.com/o> .\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return c.count() == 3 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not stop after cancel")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.facts, 3)
	assert.Equal(t, message.IRI("http://example.com/n"), c.facts[2].Subject)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	src, err := registry.CreateSource("ntriples", []byte(`{"url":"facts.nt"}`), component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, component.TypeInput, src.Meta().Type)

	_, err = registry.CreateSource("ntriples", []byte(`{}`), component.Dependencies{})
	assert.Error(t, err)
}
