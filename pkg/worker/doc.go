// Package worker provides a generic worker pool for concurrent task processing.
//
// A Pool runs a fixed number of goroutines that drain a bounded queue:
//
//	pool := worker.NewPool(8, 1024, func(ctx context.Context, d delivery) error {
//		return handle(ctx, d)
//	})
//	if err := pool.Start(ctx); err != nil { ... }
//	defer pool.Stop(5 * time.Second)
//
// Submit never blocks and reports ErrQueueFull when the queue is at capacity.
// SubmitWait blocks for queue space and returns when ctx is done or the pool
// is stopped; the rule engine runtime uses it to apply backpressure from its
// mailbox pump without dropping deliveries.
//
// Statistics are always tracked with atomics. Prometheus metrics are
// registered only when WithMetricsRegistry is given.
//
// Stop closes the queue, lets workers finish what is queued and waits up to
// the timeout. Cancelling the context passed to Start makes workers exit
// without draining.
package worker
