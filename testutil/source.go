package testutil

import (
	"context"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/message"
)

// SliceSource emits a fixed list of facts and then ends
type SliceSource struct {
	*component.FlowTracker
	facts []message.Triple
}

// NewSliceSource creates a source over facts
func NewSliceSource(facts ...message.Triple) *SliceSource {
	return &SliceSource{FlowTracker: component.NewFlowTracker(), facts: facts}
}

// Meta implements component.Discoverable
func (s *SliceSource) Meta() component.Metadata {
	return component.Metadata{Name: "slice", Type: component.TypeInput, Description: "in-memory test source"}
}

// Run emits every fact in order
func (s *SliceSource) Run(ctx context.Context, emit component.EmitFunc) error {
	for _, t := range s.facts {
		if err := emit(ctx, t); err != nil {
			return err
		}
		s.Record(1)
	}
	return nil
}

// ChanSource emits facts received on a channel until it is closed or ctx ends.
// It models an unbounded stream.
type ChanSource struct {
	*component.FlowTracker
	facts <-chan message.Triple
}

// NewChanSource creates a source reading from facts
func NewChanSource(facts <-chan message.Triple) *ChanSource {
	return &ChanSource{FlowTracker: component.NewFlowTracker(), facts: facts}
}

// Meta implements component.Discoverable
func (s *ChanSource) Meta() component.Metadata {
	return component.Metadata{Name: "chan", Type: component.TypeInput, Description: "channel test source"}
}

// Run emits facts until the channel closes or ctx is cancelled
func (s *ChanSource) Run(ctx context.Context, emit component.EmitFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-s.facts:
			if !ok {
				return nil
			}
			if err := emit(ctx, t); err != nil {
				return err
			}
			s.Record(1)
		}
	}
}
