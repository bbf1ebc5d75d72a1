package ruleset

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/rete"
)

// Definitions is the structured rule file format. JSON documents are accepted
// as well since they are valid YAML.
//
//	prefixes:
//	  ex: http://example.com/
//	rules:
//	  - name: landAnimal
//	    body: ["?x rdf:type ex:Mammal", "?x ex:livesIn ?y"]
//	    head: ["?x rdf:type ex:LandAnimal"]
type Definitions struct {
	Prefixes map[string]string `yaml:"prefixes" json:"prefixes"`
	Rules    []Definition      `yaml:"rules" json:"rules"`
}

// Definition is one rule in a Definitions document. Patterns use the same
// term syntax as rule text, without the surrounding parentheses.
type Definition struct {
	Name string   `yaml:"name" json:"name"`
	Body []string `yaml:"body" json:"body"`
	Head []string `yaml:"head" json:"head"`
}

// ParseDefinitions decodes a YAML or JSON rule document
func ParseDefinitions(data []byte) ([]rete.RuleDef, error) {
	var doc Definitions
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, &errors.MalformedRuleError{Reason: fmt.Sprintf("decode rule definitions: %v", err)}
	}
	return doc.RuleDefs()
}

// RuleDefs converts the document into rule definitions
func (d Definitions) RuleDefs() ([]rete.RuleDef, error) {
	prefixes := DefaultPrefixes()
	for k, v := range d.Prefixes {
		prefixes[k] = v
	}

	defs := make([]rete.RuleDef, 0, len(d.Rules))
	for _, r := range d.Rules {
		def := rete.RuleDef{Name: r.Name}
		for _, s := range r.Body {
			pat, err := parsePattern(s, prefixes)
			if err != nil {
				return nil, &errors.MalformedRuleError{Rule: r.Name, Reason: fmt.Sprintf("body %q: %v", s, err)}
			}
			def.Body = append(def.Body, pat)
		}
		for _, s := range r.Head {
			pat, err := parsePattern(s, prefixes)
			if err != nil {
				return nil, &errors.MalformedRuleError{Rule: r.Name, Reason: fmt.Sprintf("head %q: %v", s, err)}
			}
			def.Head = append(def.Head, pat)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ParsePattern parses "s p o" (parentheses optional) using the given prefixes
func ParsePattern(s string, prefixes Prefixes) (rete.Pattern, error) {
	if prefixes == nil {
		prefixes = DefaultPrefixes()
	}
	return parsePattern(s, prefixes)
}

func parsePattern(s string, prefixes Prefixes) (rete.Pattern, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") {
		s = "(" + s + ")"
	}
	p := &textParser{src: s, line: 1, prefixes: prefixes.clone()}
	pat, err := p.clause()
	if err != nil {
		var mre *errors.MalformedRuleError
		if stderrors.As(err, &mre) {
			return rete.Pattern{}, fmt.Errorf("%s", mre.Reason)
		}
		return rete.Pattern{}, err
	}
	p.skip()
	if !p.eof() {
		return rete.Pattern{}, fmt.Errorf("unexpected trailing %q", p.src[p.pos:])
	}
	return pat, nil
}

// Format identifies a rule source syntax
type Format int

const (
	// FormatText is bracketed rule text
	FormatText Format = iota
	// FormatDefinitions is a YAML or JSON Definitions document
	FormatDefinitions
)

// FormatFor picks the format from a file extension
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatDefinitions
	default:
		return FormatText
	}
}

// Parse reads a rule source, detecting its format from the first significant
// character: '[' or '@' means rule text, anything else a definitions document.
func Parse(r io.Reader) ([]rete.RuleDef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapTransient(err, "ruleset", "Parse", "read rule source")
	}
	if sniff(data) == FormatText {
		return ParseText(bytes.NewReader(data))
	}
	return ParseDefinitions(data)
}

// Load reads rules from a file, choosing the format by extension
func Load(path string) ([]rete.RuleDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "ruleset", "Load", "read rule file")
	}
	if FormatFor(path) == FormatDefinitions {
		return ParseDefinitions(data)
	}
	return ParseText(bytes.NewReader(data))
}

func sniff(data []byte) Format {
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if line[0] == '[' || line[0] == '@' {
			return FormatText
		}
		return FormatDefinitions
	}
	return FormatText
}
