package health

import (
	"encoding/json"
	"net/http"
	"slices"
	"fmt"
	"sync"

	"github.com/c360/semrete/natsclient"
	"github.com/c360/semrete/topology"
)

// Probe reports the current health of one monitored thing
type Probe func() Status

// RunSource looks runs up by name. Both cluster kinds satisfy it.
type RunSource interface {
	Health(name string) (topology.RunStatus, error)
}

// RunProbe reports the named run. A run the cluster no longer knows is unhealthy.
func RunProbe(src RunSource, name string) Probe {
	return func() Status {
		rs, err := src.Health(name)
		if err != nil {
			return newStatus(name, StatusUnhealthy, sanitizeErrorMessage(err.Error()))
		}
		return FromRun(rs)
	}
}

// ConnectionSource snapshots a NATS connection. *natsclient.Client satisfies it.
type ConnectionSource interface {
	GetStatus() *natsclient.Status
}

// NATSProbe reports the NATS connection. An open circuit or a lost connection
// is unhealthy; reconnecting or recent failures degrade it.
func NATSProbe(src ConnectionSource) Probe {
	return func() Status {
		cs := src.GetStatus()
		var st Status
		switch cs.Status {
		case natsclient.StatusConnected:
			if cs.FailureCount > 0 {
				st = newStatus("nats", StatusDegraded, fmt.Sprintf("Connected with %d recent failures", cs.FailureCount))
			} else {
				st = newStatus("nats", StatusHealthy, fmt.Sprintf("Connected, rtt %v", cs.RTT))
			}
		case natsclient.StatusReconnecting, natsclient.StatusConnecting:
			st = newStatus("nats", StatusDegraded, "Connection "+cs.Status.String())
		default:
			st = newStatus("nats", StatusUnhealthy, "Connection "+cs.Status.String())
		}
		st.Metrics = &Metrics{ErrorCount: int(cs.FailureCount)}
		return st
	}
}

// Monitor evaluates registered probes on demand
type Monitor struct {
	system string

	mu     sync.RWMutex
	probes map[string]Probe
}

// NewMonitor creates a monitor reporting under system
func NewMonitor(system string) *Monitor {
	return &Monitor{system: system, probes: make(map[string]Probe)}
}

// Register adds or replaces a probe
func (m *Monitor) Register(name string, p Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = p
}

// Remove stops monitoring name
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.probes, name)
}

// Check runs every probe and aggregates the results in name order
func (m *Monitor) Check() Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	slices.Sort(names)
	probes := make([]Probe, len(names))
	for i, name := range names {
		probes[i] = m.probes[name]
	}
	m.mu.RUnlock()

	subs := make([]Status, len(probes))
	for i, p := range probes {
		st := p()
		st.Component = names[i]
		subs[i] = st
	}
	return Aggregate(m.system, subs)
}

// ServeHTTP writes the aggregated status as JSON, with 503 when unhealthy
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	st := m.Check()
	w.Header().Set("Content-Type", "application/json")
	if st.IsUnhealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}
