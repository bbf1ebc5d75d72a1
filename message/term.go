package message

import (
	"strings"
)

// TermKind discriminates the variants a Term can hold
type TermKind uint8

const (
	// KindIRI is an absolute IRI reference
	KindIRI TermKind = iota + 1
	// KindLiteral is a plain, language-tagged or typed literal
	KindLiteral
	// KindBlank is a blank node label
	KindBlank
	// KindVariable is a rule variable placeholder
	KindVariable
)

// String returns the string representation of TermKind
func (k TermKind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindLiteral:
		return "literal"
	case KindBlank:
		return "blank"
	case KindVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// XSDString is the implicit datatype of a plain literal.
const XSDString = "http://www.w3.org/2001/XMLSchema#string"

// Term is an immutable RDF term or rule variable.
//
// Value holds the IRI, the lexical form, the blank label or the variable name
// (without the leading '?'). Datatype and Lang are only meaningful for literals.
type Term struct {
	Kind     TermKind `json:"kind"`
	Value    string   `json:"value"`
	Datatype string   `json:"datatype,omitempty"`
	Lang     string   `json:"lang,omitempty"`
}

// IRI creates an IRI term
func IRI(iri string) Term {
	return Term{Kind: KindIRI, Value: iri}
}

// Literal creates a plain literal
func Literal(lexical string) Term {
	return Term{Kind: KindLiteral, Value: lexical}
}

// LangLiteral creates a language-tagged literal. Tags are case-insensitive and stored lower case.
func LangLiteral(lexical, lang string) Term {
	return Term{Kind: KindLiteral, Value: lexical, Lang: strings.ToLower(lang)}
}

// TypedLiteral creates a literal with an explicit datatype IRI.
// xsd:string is folded into the plain form so both spellings compare equal.
func TypedLiteral(lexical, datatype string) Term {
	if datatype == XSDString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: lexical, Datatype: datatype}
}

// Blank creates a blank node term
func Blank(label string) Term {
	return Term{Kind: KindBlank, Value: label}
}

// Var creates a variable term. A leading '?' is stripped.
func Var(name string) Term {
	return Term{Kind: KindVariable, Value: strings.TrimPrefix(name, "?")}
}

// IsZero reports whether the term was never set
func (t Term) IsZero() bool {
	return t.Kind == 0
}

// IsVariable reports whether the term is a rule variable
func (t Term) IsVariable() bool {
	return t.Kind == KindVariable
}

// IsIRI reports whether the term is an IRI
func (t Term) IsIRI() bool {
	return t.Kind == KindIRI
}

// IsLiteral reports whether the term is a literal
func (t Term) IsLiteral() bool {
	return t.Kind == KindLiteral
}

// IsBlank reports whether the term is a blank node
func (t Term) IsBlank() bool {
	return t.Kind == KindBlank
}

// String renders the term in N-Triples syntax. Variables render as ?name.
func (t Term) String() string {
	var sb strings.Builder
	t.writeTo(&sb)
	return sb.String()
}

func (t Term) writeTo(sb *strings.Builder) {
	switch t.Kind {
	case KindIRI:
		sb.WriteByte('<')
		escapeIRI(sb, t.Value)
		sb.WriteByte('>')
	case KindLiteral:
		sb.WriteByte('"')
		escapeLiteral(sb, t.Value)
		sb.WriteByte('"')
		if t.Lang != "" {
			sb.WriteByte('@')
			sb.WriteString(t.Lang)
		} else if t.Datatype != "" {
			sb.WriteString("^^<")
			escapeIRI(sb, t.Datatype)
			sb.WriteByte('>')
		}
	case KindBlank:
		sb.WriteString("_:")
		sb.WriteString(t.Value)
	case KindVariable:
		sb.WriteByte('?')
		sb.WriteString(t.Value)
	default:
		sb.WriteString("<invalid>")
	}
}

func escapeLiteral(sb *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
}

func escapeIRI(sb *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '>', '<', '"', '\\', '{', '}', '|', '^', '`':
			writeUnicodeEscape(sb, r)
		default:
			if r <= 0x20 {
				writeUnicodeEscape(sb, r)
				continue
			}
			sb.WriteRune(r)
		}
	}
}

func writeUnicodeEscape(sb *strings.Builder, r rune) {
	const hex = "0123456789ABCDEF"
	sb.WriteString(`\u`)
	for shift := 12; shift >= 0; shift -= 4 {
		sb.WriteByte(hex[(r>>uint(shift))&0xF])
	}
}
