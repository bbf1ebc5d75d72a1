package rete

import (
	"github.com/c360/semrete/message"
)

// Pattern is a triple template. Variable positions bind, fixed positions must
// match exactly. Patterns are comparable; identical patterns share one alpha node.
type Pattern struct {
	Subject   message.Term
	Predicate message.Term
	Object    message.Term
}

// NewPattern creates a pattern from three terms
func NewPattern(s, p, o message.Term) Pattern {
	return Pattern{Subject: s, Predicate: p, Object: o}
}

// Terms returns the positions in subject, predicate, object order
func (p Pattern) Terms() [3]message.Term {
	return [3]message.Term{p.Subject, p.Predicate, p.Object}
}

// Variables returns the distinct variable names in position order
func (p Pattern) Variables() []string {
	var names []string
	seen := make(map[string]bool, 3)
	for _, t := range p.Terms() {
		if t.IsVariable() && !seen[t.Value] {
			seen[t.Value] = true
			names = append(names, t.Value)
		}
	}
	return names
}

// Match tests a fact against the pattern and returns the variables it binds.
// A variable repeated within the pattern must bind the same term everywhere.
func (p Pattern) Match(t message.Triple) (Binding, bool) {
	vars := make(map[string]message.Term, 3)
	pt, tt := p.Terms(), t.Terms()
	for i := range pt {
		if !pt[i].IsVariable() {
			if pt[i] != tt[i] {
				return Binding{}, false
			}
			continue
		}
		if prev, ok := vars[pt[i].Value]; ok {
			if prev != tt[i] {
				return Binding{}, false
			}
			continue
		}
		vars[pt[i].Value] = tt[i]
	}
	return Binding{vars: vars}, true
}

// Instantiate substitutes bound variables. If a variable is unbound the name
// is returned as missing and the triple is incomplete.
func (p Pattern) Instantiate(b Binding) (t message.Triple, missing string) {
	terms := p.Terms()
	for i, term := range terms {
		if !term.IsVariable() {
			continue
		}
		v, ok := b.Get(term.Value)
		if !ok {
			return message.Triple{}, term.Value
		}
		terms[i] = v
	}
	return message.NewTriple(terms[0], terms[1], terms[2]), ""
}

// String renders the pattern in rule syntax, e.g. (?x <http://ex/p> ?y)
func (p Pattern) String() string {
	return "(" + p.Subject.String() + " " + p.Predicate.String() + " " + p.Object.String() + ")"
}
