package rete

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/message"
)

const exNS = "http://example.com/"

var rdfType = message.IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")

func ex(local string) message.Term {
	return message.IRI(exNS + local)
}

func v(name string) message.Term {
	return message.Var(name)
}

func fact(s, p, o string) message.Triple {
	return message.NewTriple(ex(s), ex(p), ex(o))
}

func typed(s, class string) message.Triple {
	return message.NewTriple(ex(s), rdfType, ex(class))
}

func mustNetwork(t *testing.T, defs []RuleDef, partitions int, opts ...BuildOption) *Network {
	t.Helper()
	bps, err := Compile(defs)
	require.NoError(t, err)
	net, err := Build(bps, partitions, opts...)
	require.NoError(t, err)
	return net
}

// evaluate drives the network to a fixed point in a single goroutine. Pending
// deliveries are taken in random order when rng is set. Derived facts not yet
// known are fed back in when the network has feedback edges. It returns the
// closure (input plus derived facts) and the number of derivations.
func evaluate(t *testing.T, net *Network, facts []message.Triple, rng *rand.Rand) (map[message.Triple]bool, int) {
	t.Helper()
	known := make(map[message.Triple]bool)
	var queue []Delivery
	for _, f := range facts {
		known[f] = true
		queue = append(queue, net.Inject(f)...)
	}

	derivations := 0
	for len(queue) > 0 {
		i := 0
		if rng != nil {
			i = rng.Intn(len(queue))
		}
		d := queue[i]
		queue[i] = queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		res, err := net.Process(d)
		require.NoError(t, err)
		queue = append(queue, res.Next...)
		for _, der := range res.Derived {
			derivations++
			if known[der.Triple] {
				continue
			}
			known[der.Triple] = true
			if net.Feedback() {
				queue = append(queue, net.Inject(der.Triple)...)
			}
		}
	}
	return known, derivations
}

// naiveClosure is the reference fixed point: every rule is re-evaluated over
// the full fact set until nothing new appears.
func naiveClosure(bps []Blueprint, facts []message.Triple) map[message.Triple]bool {
	known := make(map[message.Triple]bool)
	for _, f := range facts {
		known[f] = true
	}
	for changed := true; changed; {
		changed = false
		snapshot := make([]message.Triple, 0, len(known))
		for f := range known {
			snapshot = append(snapshot, f)
		}
		for _, bp := range bps {
			for _, b := range matchBody(bp.Body, snapshot) {
				for _, h := range bp.Head {
					tr, missing := h.Instantiate(b)
					if missing != "" || tr.Valid() != nil || known[tr] {
						continue
					}
					known[tr] = true
					changed = true
				}
			}
		}
	}
	return known
}

func matchBody(body []Pattern, facts []message.Triple) []Binding {
	bindings := []Binding{{}}
	for _, p := range body {
		var next []Binding
		for _, b := range bindings {
			for _, f := range facts {
				m, ok := p.Match(f)
				if !ok {
					continue
				}
				if merged, ok := b.Merge(m); ok {
					next = append(next, merged)
				}
			}
		}
		bindings = next
	}
	return bindings
}
