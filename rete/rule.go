package rete

import (
	"fmt"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
)

// RuleDef is an uncompiled production rule as read from a rule source
type RuleDef struct {
	Name string
	Line int // source line of the rule, 0 if unknown
	Body []Pattern
	Head []Pattern
}

// Blueprint is a validated rule ready for network construction
type Blueprint struct {
	Name  string
	Index int
	Body  []Pattern
	Head  []Pattern
	// Vars lists the body variables in first-occurrence order
	Vars []string
}

// Compile validates rule definitions and produces blueprints in the same order.
// It is pure; the first invalid rule aborts compilation with a MalformedRuleError.
func Compile(defs []RuleDef) ([]Blueprint, error) {
	bps := make([]Blueprint, 0, len(defs))
	names := make(map[string]int, len(defs))

	for i, def := range defs {
		name := def.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		fail := func(format string, args ...any) error {
			return &errors.MalformedRuleError{Rule: name, Line: def.Line, Reason: fmt.Sprintf(format, args...)}
		}

		if prev, dup := names[name]; dup {
			return nil, fail("duplicate rule name (first defined as rule %d)", prev)
		}
		names[name] = i

		if len(def.Body) == 0 {
			return nil, fail("rule has no body patterns")
		}
		if len(def.Head) == 0 {
			return nil, fail("rule has no head patterns")
		}

		var vars []string
		bound := make(map[string]bool)
		for _, p := range def.Body {
			if err := checkPattern(p, true); err != "" {
				return nil, fail("body pattern %s: %s", p, err)
			}
			for _, v := range p.Variables() {
				if !bound[v] {
					bound[v] = true
					vars = append(vars, v)
				}
			}
		}
		for _, p := range def.Head {
			if err := checkPattern(p, false); err != "" {
				return nil, fail("head pattern %s: %s", p, err)
			}
			for _, v := range p.Variables() {
				if !bound[v] {
					return nil, fail("head variable ?%s does not occur in body", v)
				}
			}
		}

		bps = append(bps, Blueprint{
			Name:  name,
			Index: i,
			Body:  append([]Pattern(nil), def.Body...),
			Head:  append([]Pattern(nil), def.Head...),
			Vars:  vars,
		})
	}
	return bps, nil
}

func checkPattern(p Pattern, body bool) string {
	for _, t := range p.Terms() {
		if t.IsZero() {
			return "empty term"
		}
	}
	switch {
	case p.Subject.IsLiteral():
		return "literal in subject position"
	case !p.Predicate.IsIRI() && !p.Predicate.IsVariable():
		return fmt.Sprintf("predicate must be an IRI or variable, got %s", p.Predicate.Kind)
	}
	if body {
		for _, t := range p.Terms() {
			if t.Kind == message.KindBlank {
				return "blank node in body pattern"
			}
		}
	}
	return ""
}
