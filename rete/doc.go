// Package rete implements the forward-chaining match network: rule
// compilation, network construction and the alpha, join and terminal nodes.
//
// # Pipeline
//
//	defs -> Compile -> []Blueprint -> Build -> *Network
//
// Compile validates RuleDefs and returns MalformedRuleError for rules that
// cannot be evaluated. Build shares alpha nodes between identical patterns,
// chains one join per additional body pattern in declaration order and ends
// each rule in a terminal node. Build also validates the result, rejecting
// graphs with cycles outside the feedback edges into SourceID.
//
// # Evaluation
//
// The network does not schedule anything itself. A runtime injects facts and
// hands the resulting deliveries back to Process, in any order and from any
// number of goroutines:
//
//	queue := net.Inject(fact)
//	for len(queue) > 0 {
//		d := queue[0]
//		queue = queue[1:]
//		res, err := net.Process(d)
//		...
//		queue = append(queue, res.Next...)
//	}
//
// Join memories are append-only and never evicted. Retraction is not supported.
package rete
