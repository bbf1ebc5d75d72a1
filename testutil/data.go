package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/c360/semrete/message"
)

// Namespaces used by the fixtures
const (
	ExampleNS = "http://example.com/"
	RDFType   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
)

// HumanBeingRules derives HumanBeing typings in two chained steps, so the
// second rule only fires on re-fed consequents of the first.
const HumanBeingRules = `# biped mammals that speak are human beings
@prefix example: <http://example.com/>.

[biped: (?person rdf:type example:Mammal) (?person example:legs 2)
        -> (?person rdf:type example:Biped)]

[human: (?person rdf:type example:Biped) (?person example:speaks ?language)
        -> (?person rdf:type example:HumanBeing)]
`

// HumanBeingFacts is the N-Triples input for HumanBeingRules. Only John and
// Steve become HumanBeing; the malformed line must be skipped.
const HumanBeingFacts = `# people and animals
<http://example.com/John> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://example.com/Mammal> .
<http://example.com/John> <http://example.com/legs> "2"^^<http://www.w3.org/2001/XMLSchema#integer> .
<http://example.com/John> <http://example.com/speaks> "English"@en .
<http://example.com/Rex> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://example.com/Mammal> .
<http://example.com/Rex> <http://example.com/legs> "4"^^<http://www.w3.org/2001/XMLSchema#integer> .
this line is not a triple
<http://example.com/Tweety> <http://example.com/legs> "2"^^<http://www.w3.org/2001/XMLSchema#integer> .
<http://example.com/Tweety> <http://example.com/speaks> "Chirp" .
<http://example.com/Steve> <http://example.com/speaks> "French"@fr .
<http://example.com/Steve> <http://example.com/legs> "2"^^<http://www.w3.org/2001/XMLSchema#integer> .
<http://example.com/Steve> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://example.com/Mammal> .
`

// HumanBeingExpected lists the consequents of HumanBeingRules over HumanBeingFacts
func HumanBeingExpected() []message.Triple {
	typ := message.IRI(RDFType)
	var out []message.Triple
	for _, who := range []string{"John", "Steve"} {
		s := message.IRI(ExampleNS + who)
		out = append(out,
			message.NewTriple(s, typ, message.IRI(ExampleNS+"Biped")),
			message.NewTriple(s, typ, message.IRI(ExampleNS+"HumanBeing")))
	}
	return out
}

// AncestorRules computes the transitive closure of parentOf
const AncestorRules = `@prefix ex: <http://example.com/>.
[base: (?a ex:parentOf ?b) -> (?a ex:ancestorOf ?b)]
[step: (?a ex:ancestorOf ?b) (?b ex:ancestorOf ?c) -> (?a ex:ancestorOf ?c)]
`

// ParentChain returns parentOf facts along a chain of n people p0..pn
func ParentChain(n int) []message.Triple {
	parentOf := message.IRI(ExampleNS + "parentOf")
	out := make([]message.Triple, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, message.NewTriple(person(i), parentOf, person(i+1)))
	}
	return out
}

// AncestorClosure returns the ancestorOf facts ParentChain(n) implies
func AncestorClosure(n int) []message.Triple {
	ancestorOf := message.IRI(ExampleNS + "ancestorOf")
	var out []message.Triple
	for i := 0; i <= n; i++ {
		for j := i + 1; j <= n; j++ {
			out = append(out, message.NewTriple(person(i), ancestorOf, person(j)))
		}
	}
	return out
}

func person(i int) message.Term {
	return message.IRI(ExampleNS + "p" + strconv.Itoa(i))
}

// WriteFile writes content to name inside a fresh temp dir and returns the path
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}
