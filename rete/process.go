package rete

import (
	"fmt"

	"github.com/c360/semrete/message"
)

// Delivery is one unit of work for a node: a fact for an alpha node or a
// binding for a join or terminal node.
type Delivery struct {
	To      NodeID
	Side    Side
	Fact    message.Triple
	Binding Binding
}

// Derivation is a consequent produced by a terminal node
type Derivation struct {
	Rule   string
	Node   NodeID
	Triple message.Triple
}

// Result is what processing one delivery produced
type Result struct {
	Next    []Delivery
	Derived []Derivation

	// IllFormed counts head instantiations skipped because they were not valid triples
	IllFormed int
	// Dropped is set when a failed terminal node discarded the delivery
	Dropped bool
}

// Inject routes a fact to every alpha node that could match it
func (n *Network) Inject(t message.Triple) []Delivery {
	ids := n.AlphasFor(t)
	out := make([]Delivery, len(ids))
	for i, id := range ids {
		out[i] = Delivery{To: id, Fact: t}
	}
	return out
}

// Process runs one delivery through its target node and returns the
// downstream deliveries and derived facts. It never blocks on other nodes.
// Process is safe for concurrent use; join nodes serialize internally.
func (n *Network) Process(d Delivery) (Result, error) {
	node := n.Node(d.To)
	if node == nil {
		return Result{}, fmt.Errorf("%w: %d", ErrUnknownNode, d.To)
	}

	switch node.Kind {
	case KindAlpha:
		b, ok := node.Alpha.Accept(d.Fact)
		if !ok {
			return Result{}, nil
		}
		return Result{Next: n.fanOut(node.ID, []Binding{b})}, nil

	case KindJoin:
		var merged []Binding
		switch d.Side {
		case SideLeft:
			merged = node.Join.ReceiveLeft(d.Binding)
		case SideRight:
			merged = node.Join.ReceiveRight(d.Binding)
		default:
			return Result{}, fmt.Errorf("join %d: delivery without side", node.ID)
		}
		return Result{Next: n.fanOut(node.ID, merged)}, nil

	case KindTerminal:
		triples, skipped, err := node.Terminal.receive(d.Binding)
		if err == ErrNodeFailed {
			return Result{Dropped: true}, nil
		}
		if err != nil {
			return Result{}, err
		}
		derived := make([]Derivation, len(triples))
		for i, t := range triples {
			derived[i] = Derivation{Rule: node.Terminal.Rule, Node: node.ID, Triple: t}
		}
		return Result{Derived: derived, IllFormed: skipped}, nil
	}
	return Result{}, fmt.Errorf("node %d: unknown kind %s", node.ID, node.Kind)
}

func (n *Network) fanOut(from NodeID, bindings []Binding) []Delivery {
	if len(bindings) == 0 {
		return nil
	}
	edges := n.out[from]
	out := make([]Delivery, 0, len(edges)*len(bindings))
	for _, b := range bindings {
		for _, e := range edges {
			out = append(out, Delivery{To: e.To, Side: e.Side, Binding: b})
		}
	}
	return out
}
