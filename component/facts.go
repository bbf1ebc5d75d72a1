package component

import (
	"context"

	"github.com/c360/semrete/message"
)

// EmitFunc hands one fact to the consumer. It may block for backpressure and
// returns an error when the consumer stops accepting facts.
type EmitFunc func(ctx context.Context, t message.Triple) error

// FactSource produces facts until it is exhausted or ctx is cancelled.
// Run returns nil on normal end of input.
type FactSource interface {
	Discoverable
	Run(ctx context.Context, emit EmitFunc) error
}

// Sink receives derived facts. Write must be safe for concurrent use.
type Sink interface {
	Discoverable
	Write(ctx context.Context, t message.Triple) error
	Close(ctx context.Context) error
}
