package errors

import "errors"

// Lifecycle
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrAlreadyStopped = errors.New("component already stopped")
	ErrShuttingDown   = errors.New("component is shutting down")
)

// Connectivity and storage. All of these are transient.
var (
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Input and configuration
var (
	ErrInvalidData   = errors.New("invalid data format")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// Topology lifecycle and output
var (
	ErrTopologyExists   = errors.New("topology already submitted")
	ErrTopologyNotFound = errors.New("topology not found")
	ErrClusterShutdown  = errors.New("cluster is shut down")
	ErrDrainTimeout     = errors.New("drain timeout exceeded")
	ErrSinkExhausted    = errors.New("output sink retries exhausted")
)
