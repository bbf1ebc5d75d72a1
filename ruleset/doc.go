// Package ruleset reads rule sources into rete.RuleDef values.
//
// Two syntaxes are supported. Rule text uses @prefix declarations and
// bracketed rules:
//
//	@prefix ex: <http://example.com/>.
//	[landAnimal: (?x rdf:type ex:Mammal) (?x ex:livesIn ?y) -> (?x rdf:type ex:LandAnimal)]
//
// Definitions documents are YAML or JSON with a prefixes map and a rules
// list whose body and head entries are "s p o" strings. The rdf, rdfs, xsd
// and owl prefixes are predeclared in both.
//
// Syntax errors are reported as *errors.MalformedRuleError carrying the line
// number where available. Parsing does not validate rule semantics; that is
// rete.Compile's job.
package ruleset
