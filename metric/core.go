package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "semrete"

// Metrics contains the rule engine metrics shared by all topologies.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	TopologyStatus *prometheus.GaugeVec

	FactsIngested  *prometheus.CounterVec
	FactsMalformed *prometheus.CounterVec
	Tokens         *prometheus.CounterVec
	JoinMemory     *prometheus.GaugeVec
	OpenTrees      *prometheus.GaugeVec
	Derived        *prometheus.CounterVec
	IllFormed      *prometheus.CounterVec
	NodeFailures   *prometheus.CounterVec
	Dropped        *prometheus.CounterVec

	SinkWrites     *prometheus.CounterVec
	SinkRetries    *prometheus.CounterVec
	SinkDuplicates *prometheus.CounterVec

	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates the rule engine metrics
func NewMetrics() *Metrics {
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}

	return &Metrics{
		TopologyStatus: gauge("topology", "status",
			"Topology status (0=created, 1=initialized, 2=started, 3=stopped, 4=failed)", "topology"),

		FactsIngested:  counter("facts", "ingested_total", "Facts read from the fact source", "topology"),
		FactsMalformed: counter("facts", "malformed_total", "Input lines skipped as malformed", "topology"),
		Tokens:         counter("network", "tokens_total", "Deliveries processed by node kind", "topology", "kind"),
		JoinMemory:     gauge("network", "join_memory_bindings", "Bindings held in join memories", "topology"),
		OpenTrees:      gauge("network", "open_fact_trees", "Fact trees not yet fully processed", "topology"),
		Derived:        counter("rules", "derived_total", "Consequents produced per rule", "topology", "rule"),
		IllFormed:      counter("rules", "ill_formed_total", "Consequents skipped as invalid triples", "topology", "rule"),
		NodeFailures:   counter("rules", "node_failures_total", "Terminal nodes failed on incomplete bindings", "topology", "rule"),
		Dropped:        counter("network", "dropped_total", "Deliveries dropped by failed nodes", "topology"),

		SinkWrites:     counter("sink", "writes_total", "Triples written by output sinks", "sink"),
		SinkRetries:    counter("sink", "retries_total", "Output sink write retries", "sink"),
		SinkDuplicates: counter("sink", "duplicates_total", "Duplicate triples suppressed by output sinks", "sink"),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "nats", Name: "connected",
			Help: "NATS connection status (0=disconnected, 1=connected)",
		}),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "nats", Name: "reconnects_total",
			Help: "Total number of NATS reconnections",
		}),
		NATSCircuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "nats", Name: "circuit_breaker",
			Help: "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TopologyStatus,
		m.FactsIngested, m.FactsMalformed, m.Tokens, m.JoinMemory, m.OpenTrees,
		m.Derived, m.IllFormed, m.NodeFailures, m.Dropped,
		m.SinkWrites, m.SinkRetries, m.SinkDuplicates,
		m.NATSConnected, m.NATSReconnects, m.NATSCircuitBreaker,
	}
}

// RecordTopologyStatus updates the topology status gauge
func (m *Metrics) RecordTopologyStatus(topology string, status int) {
	if m == nil {
		return
	}
	m.TopologyStatus.WithLabelValues(topology).Set(float64(status))
}

// RecordFactIngested counts a fact read from the source
func (m *Metrics) RecordFactIngested(topology string) {
	if m == nil {
		return
	}
	m.FactsIngested.WithLabelValues(topology).Inc()
}

// RecordFactMalformed counts a skipped input line
func (m *Metrics) RecordFactMalformed(topology string) {
	if m == nil {
		return
	}
	m.FactsMalformed.WithLabelValues(topology).Inc()
}

// RecordToken counts one delivery processed by a node of the given kind
func (m *Metrics) RecordToken(topology, kind string) {
	if m == nil {
		return
	}
	m.Tokens.WithLabelValues(topology, kind).Inc()
}

// RecordJoinMemory sets the total join memory size
func (m *Metrics) RecordJoinMemory(topology string, bindings int) {
	if m == nil {
		return
	}
	m.JoinMemory.WithLabelValues(topology).Set(float64(bindings))
}

// RecordOpenTrees sets the number of in-flight fact trees
func (m *Metrics) RecordOpenTrees(topology string, open int64) {
	if m == nil {
		return
	}
	m.OpenTrees.WithLabelValues(topology).Set(float64(open))
}

// RecordDerived counts a consequent produced by a rule
func (m *Metrics) RecordDerived(topology, rule string) {
	if m == nil {
		return
	}
	m.Derived.WithLabelValues(topology, rule).Inc()
}

// RecordIllFormed adds skipped consequents for a rule
func (m *Metrics) RecordIllFormed(topology, rule string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.IllFormed.WithLabelValues(topology, rule).Add(float64(n))
}

// RecordNodeFailure counts a terminal node failure
func (m *Metrics) RecordNodeFailure(topology, rule string) {
	if m == nil {
		return
	}
	m.NodeFailures.WithLabelValues(topology, rule).Inc()
}

// RecordDropped counts deliveries discarded by failed nodes
func (m *Metrics) RecordDropped(topology string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(topology).Inc()
}

// RecordSinkWrite counts triples written by a sink
func (m *Metrics) RecordSinkWrite(sink string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SinkWrites.WithLabelValues(sink).Add(float64(n))
}

// RecordSinkRetry counts a sink write retry
func (m *Metrics) RecordSinkRetry(sink string) {
	if m == nil {
		return
	}
	m.SinkRetries.WithLabelValues(sink).Inc()
}

// RecordSinkDuplicate counts a suppressed duplicate
func (m *Metrics) RecordSinkDuplicate(sink string) {
	if m == nil {
		return
	}
	m.SinkDuplicates.WithLabelValues(sink).Inc()
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSReconnect increments the reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	if m == nil {
		return
	}
	m.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (m *Metrics) RecordCircuitBreakerState(state int) {
	if m == nil {
		return
	}
	m.NATSCircuitBreaker.Set(float64(state))
}
