package httppost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
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
	"github.com/c360/semrete/pkg/security"
	"github.com/c360/semrete/pkg/tlsutil"
	"github.com/c360/semrete/testutil"
)

func triple(i int) message.Triple {
	return message.NewTriple(
		message.IRI(fmt.Sprintf("http://example.com/s%d", i)),
		message.IRI("http://example.com/p"),
		message.Literal("v"))
}

// recorder is a webhook that keeps every batch it accepts
type recorder struct {
	mu      sync.Mutex
	bodies  []string
	headers []http.Header
	status  atomic.Int32
	calls   atomic.Int32
}

func newRecorder() (*recorder, *httptest.Server) {
	rec := &recorder{}
	rec.status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		status := int(rec.status.Load())
		if status == http.StatusOK {
			rec.mu.Lock()
			rec.bodies = append(rec.bodies, string(body))
			rec.headers = append(rec.headers, r.Header.Clone())
			rec.mu.Unlock()
		}
		w.WriteHeader(status)
	}))
	return rec, srv
}

func (r *recorder) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.bodies {
		out = append(out, strings.Split(strings.TrimSuffix(b, "\n"), "\n")...)
	}
	return out
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Timeout = 5
	cfg.BatchSize = 3
	cfg.FlushInterval = time.Hour
	cfg.Retry.MaxRetries = 2
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{name: "defaults", mutate: func(*Config) {}, valid: true},
		{name: "missing url", mutate: func(c *Config) { c.URL = "" }},
		{name: "bad scheme", mutate: func(c *Config) { c.URL = "ftp://example.com" }},
		{name: "timeout too long", mutate: func(c *Config) { c.Timeout = 301 }},
		{name: "empty batch", mutate: func(c *Config) { c.BatchSize = 0 }},
		{name: "no flush interval", mutate: func(c *Config) { c.FlushInterval = 0 }},
		{name: "too many retries", mutate: func(c *Config) { c.Retry.MaxRetries = 11 }},
		{name: "tls version", mutate: func(c *Config) { c.TLS = security.ClientTLSConfig{Enabled: true, MinVersion: "1.0"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestSink_PostsBatches(t *testing.T) {
	rec, srv := newRecorder()
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Headers = map[string]string{"X-Run": "test"}
	sink, err := NewSink(cfg, component.Dependencies{})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, sink.Write(ctx, triple(i)))
	}
	assert.Equal(t, int32(2), rec.calls.Load(), "two full batches posted before close")

	require.NoError(t, sink.Close(ctx))
	assert.Equal(t, int32(3), rec.calls.Load())

	var want []string
	for i := 0; i < 7; i++ {
		want = append(want, triple(i).String())
	}
	assert.Equal(t, want, rec.lines())
	assert.Equal(t, int64(7), sink.Sent())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, ContentTypeNTriples, rec.headers[0].Get("Content-Type"))
	assert.Equal(t, "test", rec.headers[0].Get("X-Run"))
}

func TestSink_HTTPSWithPrivateCA(t *testing.T) {
	pair := testutil.WriteCert(t, "webhook")
	serverTLS, err := tlsutil.LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled: true, CertFile: pair.CertFile, KeyFile: pair.KeyFile,
	})
	require.NoError(t, err)

	var got atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		got.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	srv.TLS = serverTLS
	srv.StartTLS()
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BatchSize = 1
	cfg.TLS = security.ClientTLSConfig{Enabled: true, CAFiles: []string{pair.CertFile}}
	sink, err := NewSink(cfg, component.Dependencies{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, triple(1)))
	require.NoError(t, sink.Close(ctx))
	assert.Equal(t, int32(1), got.Load())
}

func TestSink_PeriodicFlush(t *testing.T) {
	rec, srv := newRecorder()
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BatchSize = 100
	cfg.FlushInterval = 20 * time.Millisecond
	sink, err := NewSink(cfg, component.Dependencies{})
	require.NoError(t, err)
	defer sink.Close(context.Background())

	require.NoError(t, sink.Write(context.Background(), triple(1)))
	assert.Eventually(t, func() bool { return len(rec.lines()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestSink_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BatchSize = 1
	sink, err := NewSink(cfg, component.Dependencies{})
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), triple(1)))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(2), sink.Retried())
	require.NoError(t, sink.Close(context.Background()))
}

func TestSink_ClientErrorIsFatalAtOnce(t *testing.T) {
	rec, srv := newRecorder()
	defer srv.Close()
	rec.status.Store(http.StatusBadRequest)

	cfg := testConfig(srv.URL)
	cfg.BatchSize = 1
	sink, err := NewSink(cfg, component.Dependencies{})
	require.NoError(t, err)

	err = sink.Write(context.Background(), triple(1))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, errors.ErrSinkExhausted)
	assert.Equal(t, int32(1), rec.calls.Load(), "4xx is not retried")

	assert.ErrorIs(t, sink.Write(context.Background(), triple(2)), errors.ErrSinkExhausted)
	assert.False(t, sink.Health().Healthy)
	assert.Error(t, sink.Close(context.Background()))
}

func TestSink_ExhaustedServerErrors(t *testing.T) {
	rec, srv := newRecorder()
	defer srv.Close()
	rec.status.Store(http.StatusBadGateway)

	cfg := testConfig(srv.URL)
	cfg.BatchSize = 1
	sink, err := NewSink(cfg, component.Dependencies{})
	require.NoError(t, err)

	err = sink.Write(context.Background(), triple(1))
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, int32(3), rec.calls.Load(), "max_retries 2 means three attempts")
	_ = sink.Close(context.Background())
}

func TestSink_WriteAfterClose(t *testing.T) {
	_, srv := newRecorder()
	defer srv.Close()

	sink, err := NewSink(testConfig(srv.URL), component.Dependencies{})
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))
	assert.ErrorIs(t, sink.Write(context.Background(), triple(1)), errors.ErrAlreadyStopped)
}

func TestRegister(t *testing.T) {
	_, srv := newRecorder()
	defer srv.Close()

	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	raw, err := json.Marshal(map[string]any{"url": srv.URL, "batch_size": 2})
	require.NoError(t, err)
	sink, err := registry.CreateSink("httppost", raw, component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "httppost", sink.Meta().Name)
	require.NoError(t, sink.Close(context.Background()))
}
