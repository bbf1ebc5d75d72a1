// Package component provides the vocabulary shared by SemRete's pluggable parts:
// lifecycle states, metadata, health and flow metrics, the FactSource and Sink
// contracts, and a Registry of factories that turn configuration into sources
// and sinks.
//
// # Registration
//
// Component packages export a Register(*Registry) error function and the
// componentregistry package calls them explicitly; nothing registers itself
// from init():
//
//	registry := component.NewRegistry()
//	if err := componentregistry.Register(registry); err != nil {
//		return err
//	}
//	src, err := registry.CreateSource("ntriples", rawConfig, deps)
//
// Input and output names are separate namespaces.
//
// # Health
//
// FlowTracker holds the atomic counters most components need to implement
// Health and DataFlow. Fail marks a component unhealthy for good, which is
// how sinks report exhausted retries.
package component
