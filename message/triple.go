package message

import (
	"fmt"
	"strings"
)

// Triple is a subject-predicate-object statement.
//
// Triples are comparable values: two triples are equal when all three terms are
// structurally equal, so they can be used as map keys for dedup and set
// comparison. When any position holds a variable the triple is a template
// (see rete.Pattern) rather than a fact. JSON encoding goes through the
// N-Triples line form, so only ground triples can be marshaled.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// NewTriple creates a triple from three terms
func NewTriple(s, p, o Term) Triple {
	return Triple{Subject: s, Predicate: p, Object: o}
}

// Terms returns the three positions in subject, predicate, object order
func (t Triple) Terms() [3]Term {
	return [3]Term{t.Subject, t.Predicate, t.Object}
}

// Valid checks that the triple is a ground RDF statement: subject IRI or blank,
// predicate IRI, object IRI, blank or literal.
func (t Triple) Valid() error {
	switch t.Subject.Kind {
	case KindIRI, KindBlank:
	default:
		return fmt.Errorf("subject must be an IRI or blank node, got %s", t.Subject.Kind)
	}
	if t.Predicate.Kind != KindIRI {
		return fmt.Errorf("predicate must be an IRI, got %s", t.Predicate.Kind)
	}
	switch t.Object.Kind {
	case KindIRI, KindBlank, KindLiteral:
	default:
		return fmt.Errorf("object must be an IRI, blank node or literal, got %s", t.Object.Kind)
	}
	return nil
}

// HasVariables reports whether any position is a variable
func (t Triple) HasVariables() bool {
	return t.Subject.IsVariable() || t.Predicate.IsVariable() || t.Object.IsVariable()
}

// String renders the triple as one N-Triples line without the trailing newline
func (t Triple) String() string {
	var sb strings.Builder
	t.Subject.writeTo(&sb)
	sb.WriteByte(' ')
	t.Predicate.writeTo(&sb)
	sb.WriteByte(' ')
	t.Object.writeTo(&sb)
	sb.WriteString(" .")
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler using the N-Triples line form
func (t Triple) MarshalText() ([]byte, error) {
	if err := t.Valid(); err != nil {
		return nil, err
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Triple) UnmarshalText(text []byte) error {
	parsed, err := ParseNTriple(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
