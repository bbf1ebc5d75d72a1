package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/health"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/topology"
)

// startStatusServer serves a metrics registry and a monitor the way a run does
func startStatusServer(t *testing.T, probes map[string]health.Probe) (string, *metric.Metrics) {
	t.Helper()
	registry := metric.NewMetricsRegistry()
	srv := metric.NewServer("127.0.0.1:0", "/metrics", registry)

	mon := health.NewMonitor(appName)
	for name, p := range probes {
		mon.Register(name, p)
	}
	srv.Handle("/status", mon)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return strings.TrimSuffix(srv.Address(), "/metrics"), registry.CoreMetrics()
}

func TestStatus_Healthy(t *testing.T) {
	src := &component.HealthStatus{Healthy: true}
	base, m := startStatusServer(t, map[string]health.Probe{
		"humans": func() health.Status {
			return health.FromRun(topology.RunStatus{
				Name: "humans", State: component.StateStarted, Source: src, Sink: src,
			})
		},
	})
	for range 3 {
		m.RecordFactIngested("humans")
	}
	m.RecordDerived("humans", "mammal")
	m.RecordDerived("humans", "mammal")
	m.RecordDerived("humans", "human")
	m.RecordFactIngested("other")

	stdout, _, err := execute(t, "status", "--addr", base)
	require.NoError(t, err)

	assert.Contains(t, stdout, "semrete: healthy")
	assert.Contains(t, stdout, "humans: healthy (Run started)")
	assert.Contains(t, stdout, "source: healthy")
	assert.Regexp(t, `facts:\s+3\n`, stdout)
	assert.Regexp(t, `derived:\s+3\n`, stdout)
	assert.Contains(t, stdout, "rule human: 1")
	assert.Contains(t, stdout, "rule mammal: 2")
	assert.Less(t, strings.Index(stdout, "rule human"), strings.Index(stdout, "rule mammal"))
	assert.NotContains(t, stdout, "other")
}

func TestStatus_Unhealthy(t *testing.T) {
	base, _ := startStatusServer(t, map[string]health.Probe{
		"broken": func() health.Status {
			return health.FromRun(topology.RunStatus{
				Name: "broken", State: component.StateFailed, Error: "sink closed",
			})
		},
	})

	stdout, _, err := execute(t, "status", "--addr", base+"/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "semrete is unhealthy")
	assert.Contains(t, stdout, "broken: unhealthy (sink closed)")
}

func TestStatus_Unreachable(t *testing.T) {
	base, _ := startStatusServer(t, nil)

	_, _, err := execute(t, "status", "--addr", base, "--metrics-path", "/missing")
	assert.Error(t, err)

	_, _, err = execute(t, "status", "--addr", "http://127.0.0.1:1", "--timeout", "200ms")
	assert.Error(t, err)
}
