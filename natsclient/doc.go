// Package natsclient wraps a NATS connection with a circuit breaker, context
// scoped subscriptions and the JetStream helpers SemRete's distributed runtime
// needs.
//
// # Circuit breaker
//
// Connection and publish failures are counted. After the threshold (5 by
// default) the circuit opens and Connect, Publish and the JetStream helpers
// return ErrCircuitOpen until the backoff elapses. The backoff doubles on each
// consecutive opening up to WithMaxBackoff. Any success resets it.
//
// # Subscriptions
//
// Subscribe ties a subscription to a context: cancelling ctx unsubscribes.
// Handlers run on the subscription's delivery goroutine and must not block:
//
//	ctx, cancel := context.WithCancel(parent)
//	defer cancel()
//	err := client.Subscribe(ctx, "semrete.run1.node.4", func(ctx context.Context, data []byte) {
//		mailbox.Push(data)
//	})
//
// # JetStream
//
// ConsumeStream leaves acknowledgement to the handler, which lets callers ack
// a message only after all work it caused has completed.
//
// # Testing
//
// NewTestClient starts a NATS server in a container via testcontainers-go.
// Tests that use it carry the integration build tag.
package natsclient
