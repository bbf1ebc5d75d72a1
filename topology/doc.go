// Package topology runs compiled rule networks over a stream of facts.
//
// A Topology bundles a validated rete.Network with a Builder that supplies
// the fact source and the sink for derived facts. Topologies are submitted to
// a Cluster by name:
//
//	topo, err := topology.Build(cfg, topology.NewNTriplesFileBuilder(in, out, deps), rules)
//	if err != nil {
//		return err
//	}
//	cluster := topology.NewLocalCluster(topology.WithLogger(logger))
//	if err := cluster.Submit(ctx, "people", topo); err != nil {
//		return err
//	}
//	return cluster.Await(ctx, "people")
//
// # Execution
//
// Every node delivery travels as an envelope. Node work never blocks on
// downstream nodes: emissions are queued in an unbounded mailbox that a pump
// feeds into a bounded worker.Pool, the executor of the run.
//
// LocalCluster keeps everything in one process. NATSCluster publishes
// envelopes on <prefix>.<run>.node.<id> and reports on <prefix>.<run>.derived,
// so partitions of the network can be hosted by other processes via Serve.
//
// # Ack trees
//
// Each ingested fact opens an ack tree. Envelopes carry random 64-bit IDs and
// the tree keeps the XOR of every ID issued and acknowledged, so it returns to
// zero once all deliveries derived from the fact are processed, whatever the
// order of the acknowledgements. Config.MaxSpoutPending bounds open trees and
// throttles the source.
//
// # Refeed
//
// With Config.Refeed, each consequent is written to the sink and, if the run
// has not seen it before, injected back into the alpha nodes inside the same
// tree. The run's fact set makes refeed reach a fixed point.
package topology
