package topology

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/input/ntriples"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/output/file"
)

// FactSource produces the facts a run ingests
type FactSource = component.FactSource

// Sink receives the consequents a run derives
type Sink = component.Sink

// Builder supplies the input and output ends of a topology. It is called once
// per submission so every run gets its own source and sink.
type Builder interface {
	Source(cfg Config) (FactSource, error)
	Sink(cfg Config) (Sink, error)
}

// NTriplesFileBuilder reads facts from an N-Triples location and appends
// consequents to an N-Triples file
type NTriplesFileBuilder struct {
	inURL   string
	outPath string
	deps    component.Dependencies
}

// NewNTriplesFileBuilder creates a builder for inURL (path, file:// or http(s)://) and outPath
func NewNTriplesFileBuilder(inURL, outPath string, deps component.Dependencies) *NTriplesFileBuilder {
	return &NTriplesFileBuilder{inURL: inURL, outPath: outPath, deps: deps}
}

// Source implements Builder
func (b *NTriplesFileBuilder) Source(cfg Config) (FactSource, error) {
	sc := ntriples.DefaultConfig()
	sc.URL = b.inURL
	sc.Name = cfg.Name
	src, err := ntriples.NewSource(sc, b.deps)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Sink implements Builder
func (b *NTriplesFileBuilder) Sink(Config) (Sink, error) {
	fc := file.DefaultConfig()
	fc.Path = b.outPath
	sink, err := file.NewSink(fc, b.deps)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// ComponentSpec selects a registered factory and its raw configuration
type ComponentSpec struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// RegistryBuilder creates sources and sinks from a component.Registry.
// Several outputs are combined into one sink that writes to all of them.
type RegistryBuilder struct {
	registry *component.Registry
	deps     component.Dependencies
	input    ComponentSpec
	outputs  []ComponentSpec
}

// NewRegistryBuilder creates a builder backed by registry
func NewRegistryBuilder(
	registry *component.Registry, deps component.Dependencies, input ComponentSpec, outputs []ComponentSpec,
) *RegistryBuilder {
	return &RegistryBuilder{registry: registry, deps: deps, input: input, outputs: outputs}
}

// Source implements Builder
func (b *RegistryBuilder) Source(Config) (FactSource, error) {
	return b.registry.CreateSource(b.input.Type, b.input.Config, b.deps)
}

// Sink implements Builder
func (b *RegistryBuilder) Sink(Config) (Sink, error) {
	if len(b.outputs) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "RegistryBuilder", "Sink", "output validation")
	}
	sinks := make([]Sink, 0, len(b.outputs))
	for _, out := range b.outputs {
		s, err := b.registry.CreateSink(out.Type, out.Config, b.deps)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return newMultiSink(sinks), nil
}

// StaticBuilder hands out the same source and sink on every call.
// Use it when only one submission is made.
type StaticBuilder struct {
	source FactSource
	sink   Sink
}

// NewStaticBuilder creates a builder around existing components
func NewStaticBuilder(source FactSource, sink Sink) *StaticBuilder {
	return &StaticBuilder{source: source, sink: sink}
}

// Source implements Builder
func (b *StaticBuilder) Source(Config) (FactSource, error) {
	return b.source, nil
}

// Sink implements Builder
func (b *StaticBuilder) Sink(Config) (Sink, error) {
	return b.sink, nil
}

// multiSink writes every triple to all sinks
type multiSink struct {
	*component.FlowTracker
	sinks []Sink
}

func newMultiSink(sinks []Sink) *multiSink {
	return &multiSink{FlowTracker: component.NewFlowTracker(), sinks: sinks}
}

func (m *multiSink) Meta() component.Metadata {
	return component.Metadata{Name: "multi", Type: component.TypeOutput, Description: "fan-out over output sinks"}
}

func (m *multiSink) Health() component.HealthStatus {
	h := m.FlowTracker.Health()
	for _, s := range m.sinks {
		sh := s.Health()
		if !sh.Healthy {
			h.Healthy = false
			h.LastError = sh.LastError
		}
		h.ErrorCount += sh.ErrorCount
	}
	return h
}

func (m *multiSink) Write(ctx context.Context, t message.Triple) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	if err := stderrors.Join(errs...); err != nil {
		m.RecordError(err)
		return err
	}
	m.Record(1)
	return nil
}

func (m *multiSink) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
