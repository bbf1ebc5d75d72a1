package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semrete/metric"
)

// bufferMetrics are nil when no registry was given; every method is nil-safe
type bufferMetrics struct {
	registry *metric.MetricsRegistry
	service  string
	drops    prometheus.Counter
	size     prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	m := &bufferMetrics{
		registry: registry,
		service:  prefix,
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "semrete",
			Subsystem:   "buffer",
			Name:        "drops_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Items lost to buffer overflow",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "semrete",
			Subsystem:   "buffer",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Items currently buffered",
		}),
	}

	if err := registry.RegisterCounter(prefix, "buffer_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_size", m.size); err != nil {
		registry.Unregister(prefix, "buffer_drops")
		return nil, err
	}
	return m, nil
}

func (m *bufferMetrics) recordDrop() {
	if m == nil {
		return
	}
	m.drops.Inc()
}

func (m *bufferMetrics) recordSize(size int) {
	if m == nil {
		return
	}
	m.size.Set(float64(size))
}

func (m *bufferMetrics) unregister() {
	if m == nil {
		return
	}
	m.registry.Unregister(m.service, "buffer_drops")
	m.registry.Unregister(m.service, "buffer_size")
}
