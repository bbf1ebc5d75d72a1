package ruleset

import (
	"fmt"
	"strings"

	"github.com/c360/semrete/message"
)

// Well-known namespaces available without a @prefix declaration
const (
	NSRDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRDFS = "http://www.w3.org/2000/01/rdf-schema#"
	NSXSD  = "http://www.w3.org/2001/XMLSchema#"
	NSOWL  = "http://www.w3.org/2002/07/owl#"
)

// Prefixes maps prefix labels to namespace IRIs
type Prefixes map[string]string

// DefaultPrefixes returns the built-in rdf, rdfs, xsd and owl prefixes
func DefaultPrefixes() Prefixes {
	return Prefixes{
		"rdf":  NSRDF,
		"rdfs": NSRDFS,
		"xsd":  NSXSD,
		"owl":  NSOWL,
	}
}

// Expand resolves a prefixed name such as ex:Mammal
func (p Prefixes) Expand(qname string) (message.Term, error) {
	i := strings.IndexByte(qname, ':')
	if i < 0 {
		return message.Term{}, fmt.Errorf("%q is not a prefixed name", qname)
	}
	ns, ok := p[qname[:i]]
	if !ok {
		return message.Term{}, fmt.Errorf("unknown prefix %q", qname[:i])
	}
	return message.IRI(ns + qname[i+1:]), nil
}

func (p Prefixes) clone() Prefixes {
	out := make(Prefixes, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
