// Package message provides the fact vocabulary shared by every SemRete component:
// RDF terms, subject-predicate-object triples and the N-Triples line codec used
// on fact input and derived-fact output.
//
// # Terms
//
// A Term is a small comparable value. Structural equality is plain ==, which lets
// terms, triples and patterns be used directly as map keys:
//
//	john := message.IRI("http://example.com/John")
//	name := message.Literal("John")
//	age := message.TypedLiteral("42", "http://www.w3.org/2001/XMLSchema#integer")
//	x := message.Var("x")
//
// Variables only appear in rule patterns. A Triple holding a variable is a
// template, not a fact, and Triple.Valid rejects it.
//
// # N-Triples
//
// ParseNTriple parses exactly one line. Blank lines and comment lines return
// ErrSkipLine so callers can distinguish "nothing here" from malformed input:
//
//	t, err := message.ParseNTriple(line)
//	switch {
//	case errors.Is(err, message.ErrSkipLine):
//		continue
//	case err != nil:
//		// malformed fact: log and move on
//	}
//
// Triple.String renders the canonical line form without the trailing newline.
package message
