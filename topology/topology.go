package topology

import (
	"io"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/rete"
	"github.com/c360/semrete/ruleset"
)

// Topology is a compiled, validated rule network plus the builder that
// supplies its fact source and sink. It is not running until submitted to a
// Cluster, and it can be submitted more than once; every submission gets
// fresh node memories.
type Topology struct {
	cfg        Config
	builder    Builder
	blueprints []rete.Blueprint
	network    *rete.Network
}

// Build parses rules (rule text or a YAML/JSON definitions document),
// compiles and validates the network.
func Build(cfg Config, builder Builder, rules io.Reader) (*Topology, error) {
	defs, err := ruleset.Parse(rules)
	if err != nil {
		return nil, errors.Wrap(err, "Topology", "Build", "parse rules")
	}
	return BuildFromDefs(cfg, builder, defs)
}

// BuildFromDefs builds a topology from programmatic rule definitions
func BuildFromDefs(cfg Config, builder Builder, defs []rete.RuleDef) (*Topology, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if builder == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Topology", "Build", "builder validation")
	}

	bps, err := rete.Compile(defs)
	if err != nil {
		return nil, errors.WrapFatal(err, "Topology", "Build", "compile rules")
	}

	t := &Topology{cfg: cfg, builder: builder, blueprints: bps}
	net, err := t.newNetwork()
	if err != nil {
		return nil, err
	}
	t.network = net
	return t, nil
}

// newNetwork builds and validates a network with empty memories
func (t *Topology) newNetwork() (*rete.Network, error) {
	net, err := rete.Build(t.blueprints, t.cfg.Workers, rete.WithFeedback(t.cfg.Refeed))
	if err != nil {
		return nil, errors.WrapFatal(err, "Topology", "Build", "build network")
	}
	if err := net.Validate(); err != nil {
		return nil, errors.WrapFatal(err, "Topology", "Build", "validate network")
	}
	return net, nil
}

// Config returns the topology configuration
func (t *Topology) Config() Config {
	return t.cfg
}

// Rules returns the compiled rules in declaration order
func (t *Topology) Rules() []rete.Blueprint {
	return t.blueprints
}

// Network returns the network template. Its memories stay empty; runs use copies.
func (t *Topology) Network() *rete.Network {
	return t.network
}
