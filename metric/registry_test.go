package metric

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/errors"
)

func TestMetricsRegistry_Register(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"})
	require.NoError(t, registry.RegisterCounter("svc", "test_counter", counter))
	counter.Inc()

	err := registry.RegisterCounter("svc", "test_counter", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	clash := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_counter", Help: "same name"})
	err = registry.RegisterGauge("other", "test_counter", clash)
	require.Error(t, err)

	assert.True(t, registry.Unregister("svc", "test_counter"))
	assert.False(t, registry.Unregister("svc", "test_counter"))
	require.NoError(t, registry.RegisterCounter("svc", "test_counter", counter))
}

func TestMetricsRegistry_VecTypes(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NoError(t, registry.RegisterCounterVec("svc", "cv",
		prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cv_total", Help: "h"}, []string{"l"})))
	require.NoError(t, registry.RegisterGaugeVec("svc", "gv",
		prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "gv", Help: "h"}, []string{"l"})))
	require.NoError(t, registry.RegisterHistogramVec("svc", "hv",
		prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "hv", Help: "h"}, []string{"l"})))
	require.NoError(t, registry.RegisterHistogram("svc", "h",
		prometheus.NewHistogram(prometheus.HistogramOpts{Name: "h", Help: "h"})))
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordFactIngested("t")
	m.RecordFactIngested("t")
	m.RecordDerived("t", "landAnimal")
	m.RecordToken("t", "join")
	m.RecordJoinMemory("t", 7)
	m.RecordIllFormed("t", "r", 0)
	m.RecordSinkWrite("file", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FactsIngested.WithLabelValues("t")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Derived.WithLabelValues("t", "landAnimal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Tokens.WithLabelValues("t", "join")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.JoinMemory.WithLabelValues("t")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.IllFormed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SinkWrites.WithLabelValues("file")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordFactIngested("t")
		m.RecordDerived("t", "r")
		m.RecordNodeFailure("t", "r")
		m.RecordSinkRetry("s")
		m.RecordNATSStatus(true)
		m.RecordOpenTrees("t", 3)
	})
}

func TestServer_ServesMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordFactIngested("served")

	srv := NewServer("127.0.0.1:0", "", registry)
	require.NoError(t, srv.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, srv.Stop(ctx))
	}()

	assert.Error(t, srv.Start())

	resp, err := http.Get(srv.Address())
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `semrete_facts_ingested_total{topology="served"} 1`))
}

func TestServer_Handle(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "/m", NewMetricsRegistry())
	srv.Handle("/status", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("running"))
	}))
	require.NoError(t, srv.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, srv.Stop(ctx))
	}()

	base := strings.TrimSuffix(srv.Address(), "/m")
	for path, want := range map[string]string{"/status": "running", "/health": "OK"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, want, string(body), path)
	}
}
