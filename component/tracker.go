package component

import (
	"sync"
	"sync/atomic"
	"time"
)

// FlowTracker accumulates the counters behind Health and DataFlow.
// The zero value is not usable; call NewFlowTracker.
type FlowTracker struct {
	started  time.Time
	messages atomic.Int64
	bytes    atomic.Int64
	errors   atomic.Int64
	lastSeen atomic.Int64 // unix nanos

	mu        sync.RWMutex
	lastError string
	failed    bool
}

// NewFlowTracker creates a tracker whose uptime starts now
func NewFlowTracker() *FlowTracker {
	return &FlowTracker{started: time.Now()}
}

// Record counts one message of the given size
func (f *FlowTracker) Record(size int) {
	f.messages.Add(1)
	f.bytes.Add(int64(size))
	f.lastSeen.Store(time.Now().UnixNano())
}

// RecordError counts a recoverable error
func (f *FlowTracker) RecordError(err error) {
	if err == nil {
		return
	}
	f.errors.Add(1)
	f.mu.Lock()
	f.lastError = err.Error()
	f.mu.Unlock()
}

// Fail records an unrecoverable error; the component reports unhealthy from now on
func (f *FlowTracker) Fail(err error) {
	f.RecordError(err)
	f.mu.Lock()
	f.failed = true
	f.mu.Unlock()
}

// Messages returns the number of recorded messages
func (f *FlowTracker) Messages() int64 {
	return f.messages.Load()
}

// Errors returns the number of recorded errors
func (f *FlowTracker) Errors() int64 {
	return f.errors.Load()
}

// Health returns the current health status
func (f *FlowTracker) Health() HealthStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return HealthStatus{
		Healthy:    !f.failed,
		LastCheck:  time.Now(),
		ErrorCount: int(f.errors.Load()),
		LastError:  f.lastError,
		Uptime:     time.Since(f.started),
	}
}

// DataFlow returns average rates since the tracker was created
func (f *FlowTracker) DataFlow() FlowMetrics {
	elapsed := time.Since(f.started).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	msgs := f.messages.Load()
	errs := f.errors.Load()

	var errorRate float64
	if msgs+errs > 0 {
		errorRate = float64(errs) / float64(msgs+errs)
	}

	var last time.Time
	if ns := f.lastSeen.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}

	return FlowMetrics{
		MessagesPerSecond: float64(msgs) / elapsed,
		BytesPerSecond:    float64(f.bytes.Load()) / elapsed,
		ErrorRate:         errorRate,
		LastActivity:      last,
	}
}
