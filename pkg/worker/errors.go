package worker

import "errors"

// Errors returned by Pool. ErrQueueFull only comes from the non-blocking
// Submit; the rest signal lifecycle misuse.
var (
	ErrPoolNotStarted     = errors.New("worker: pool not started")
	ErrPoolStopped        = errors.New("worker: pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker: pool already started")
	ErrQueueFull          = errors.New("worker: queue full")
	ErrNilProcessor       = errors.New("worker: nil process function")
	ErrStopTimeout        = errors.New("worker: workers still busy at stop deadline")
)
