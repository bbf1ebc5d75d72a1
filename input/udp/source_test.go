package udp

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/metric"
)

type collector struct {
	mu    sync.Mutex
	facts []message.Triple
}

func (c *collector) emit(_ context.Context, t message.Triple) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facts = append(c.facts, t)
	return nil
}

func (c *collector) snapshot() []message.Triple {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message.Triple(nil), c.facts...)
}

// startSource runs a source on a free loopback port and returns a client socket
func startSource(t *testing.T, cfg Config, deps component.Dependencies, emit component.EmitFunc) (*Source, *net.UDPConn, <-chan error) {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	src, err := NewSource(cfg, deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, emit) }()

	select {
	case <-src.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("source stopped before binding: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("source never bound")
	}

	client, err := net.DialUDP("udp", nil, src.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("source did not stop")
		}
	})
	return src, client, done
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing addr", mutate: func(c *Config) { c.Addr = "" }, wantErr: true},
		{name: "no port", mutate: func(c *Config) { c.Addr = "localhost" }, wantErr: true},
		{name: "datagram too large", mutate: func(c *Config) { c.MaxDatagramSize = 70000 }, wantErr: true},
		{name: "zero buffer", mutate: func(c *Config) { c.BufferSize = 0 }, wantErr: true},
		{name: "bad overflow", mutate: func(c *Config) { c.Overflow = "block" }, wantErr: true},
		{name: "drop newest", mutate: func(c *Config) { c.Overflow = "drop_newest" }},
		{name: "negative socket buffer", mutate: func(c *Config) { c.SocketBuffer = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSource_ReceivesFacts(t *testing.T) {
	c := &collector{}
	src, client, _ := startSource(t, DefaultConfig(), component.Dependencies{}, c.emit)

	_, err := client.Write([]byte("<http://example.com/John> <http://example.com/legs> \"2\" .\n" +
		"# comment\n" +
		"<http://example.com/Rex> <http://example.com/legs> \"4\" .\n"))
	require.NoError(t, err)
	_, err = client.Write([]byte("not a triple\n<http://example.com/Tweety> <http://example.com/legs> \"2\" ."))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)

	facts := c.snapshot()
	assert.Equal(t, message.IRI("http://example.com/John"), facts[0].Subject)
	assert.Equal(t, message.IRI("http://example.com/Rex"), facts[1].Subject)
	assert.Equal(t, message.IRI("http://example.com/Tweety"), facts[2].Subject)

	assert.Equal(t, int64(2), src.Messages())
	assert.Equal(t, int64(1), src.Errors())
	assert.Zero(t, src.Dropped())
}

func TestSource_StopsOnCancel(t *testing.T) {
	src, err := NewSource(Config{
		Addr:            "127.0.0.1:0",
		MaxDatagramSize: 1024,
		BufferSize:      8,
	}, component.Dependencies{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, (&collector{}).emit) }()

	<-src.Ready()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSource_EmitErrorStopsRun(t *testing.T) {
	boom := stderrors.New("run failed")
	_, client, done := startSource(t, DefaultConfig(), component.Dependencies{},
		func(context.Context, message.Triple) error { return boom })

	_, err := client.Write([]byte(`<http://example.com/a> <http://example.com/p> <http://example.com/b> .`))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return the emit error")
	}
}

func TestSource_OverflowDrops(t *testing.T) {
	release := make(chan struct{})
	c := &collector{}
	emit := func(ctx context.Context, tr message.Triple) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return c.emit(ctx, tr)
	}

	cfg := DefaultConfig()
	cfg.BufferSize = 1
	src, client, _ := startSource(t, cfg, component.Dependencies{MetricsRegistry: metric.NewMetricsRegistry()}, emit)

	line := []byte(`<http://example.com/a> <http://example.com/p> <http://example.com/b> .`)
	for i := 0; i < 20; i++ {
		_, err := client.Write(line)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return src.Dropped() > 0 }, 2*time.Second, 10*time.Millisecond)
	close(release)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	src, err := registry.CreateSource("udp", []byte(`{"addr": "127.0.0.1:0"}`), component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, component.TypeInput, src.Meta().Type)

	_, err = registry.CreateSource("udp", []byte(`{"addr": "127.0.0.1:0", "overflow": "sometimes"}`), component.Dependencies{})
	assert.Error(t, err)
}
