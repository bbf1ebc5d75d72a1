// Package semrete is a distributed forward-chaining rule engine over streaming
// RDF triples.
//
// Rules are compiled into a Rete network of alpha, join and terminal nodes.
// The network is partitioned across workers and fed from a fact source; every
// consequent a terminal node derives is written to one or more sinks and, by
// default, fed back into the network until a fixed point is reached.
//
// # Layout
//
//   - message: RDF terms, triples and the N-Triples codec
//   - rete: patterns, bindings, the rule compiler and network builder
//   - ruleset: readers for rule text and YAML/JSON rule definitions
//   - topology: runs a compiled network on a Cluster, in process or over NATS
//   - input, output: fact sources and derived-triple sinks
//   - component, componentregistry: the source/sink contracts and factories
//   - config, errors, metric, health, natsclient: shared infrastructure
//   - cmd/semrete: the command line
//
// # Quick start
//
//	semrete run --rules family.rules --input facts.nt --output derived.nt
//
// With metrics.addr configured, a running engine can be inspected with
//
//	semrete status --addr http://localhost:9090
//
// A rule file uses the bracketed rule syntax:
//
//	@prefix ex: <http://example.com/> .
//	[ancestor: (?a ex:parentOf ?b) -> (?a ex:ancestorOf ?b)]
//	[chain: (?a ex:parentOf ?b) (?b ex:ancestorOf ?c) -> (?a ex:ancestorOf ?c)]
//
// Delivery is at least once and unordered. Derivation is monotonic, so
// redelivered facts never produce new consequents and the derived set does not
// depend on arrival order.
package semrete
