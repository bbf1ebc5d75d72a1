package ruleset

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/rete"
)

// ParseText reads rules in bracketed rule syntax:
//
//	@prefix ex: <http://example.com/>.
//	# comment
//	[landAnimal: (?x rdf:type ex:Mammal) (?x ex:livesIn ?y) -> (?x rdf:type ex:LandAnimal)]
//
// Terms are variables (?x), IRIs (<...>), prefixed names (ex:Foo), blank
// nodes (_:b), quoted literals with optional @lang or ^^datatype, and bare
// integers or decimals. Builtin calls are not supported.
func ParseText(r io.Reader) ([]rete.RuleDef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapTransient(err, "ruleset", "ParseText", "read rule source")
	}
	p := &textParser{src: string(data), line: 1, prefixes: DefaultPrefixes()}
	return p.parse()
}

type textParser struct {
	src      string
	pos      int
	line     int
	prefixes Prefixes
	rule     string
}

func (p *textParser) fail(format string, args ...any) error {
	return &errors.MalformedRuleError{Rule: p.rule, Line: p.line, Reason: fmt.Sprintf(format, args...)}
}

func (p *textParser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *textParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *textParser) advance() {
	if p.src[p.pos] == '\n' {
		p.line++
	}
	p.pos++
}

// skip consumes whitespace and comments
func (p *textParser) skip() {
	for !p.eof() {
		c := p.peek()
		switch {
		case c == '#' || strings.HasPrefix(p.src[p.pos:], "//"):
			for !p.eof() && p.peek() != '\n' {
				p.pos++
			}
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.advance()
		default:
			return
		}
	}
}

func (p *textParser) expect(c byte) error {
	p.skip()
	if p.peek() != c {
		if p.eof() {
			return p.fail("expected %q, got end of input", c)
		}
		return p.fail("expected %q, got %q", c, p.peek())
	}
	p.advance()
	return nil
}

func (p *textParser) parse() ([]rete.RuleDef, error) {
	var defs []rete.RuleDef
	for {
		p.skip()
		if p.eof() {
			return defs, nil
		}
		switch {
		case strings.HasPrefix(p.src[p.pos:], "@prefix"):
			if err := p.prefixDecl(); err != nil {
				return nil, err
			}
		case p.peek() == '[':
			def, err := p.ruleDecl()
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		default:
			return nil, p.fail("unexpected %q at top level", p.peek())
		}
	}
}

func (p *textParser) prefixDecl() error {
	p.rule = ""
	p.pos += len("@prefix")
	p.skip()
	start := p.pos
	for !p.eof() && p.peek() != ':' && !isSpace(p.peek()) {
		p.pos++
	}
	label := p.src[start:p.pos]
	if err := p.expect(':'); err != nil {
		return err
	}
	p.skip()
	if p.peek() != '<' {
		return p.fail("expected namespace IRI after prefix %q", label)
	}
	iri, err := p.iri()
	if err != nil {
		return err
	}
	p.prefixes[label] = iri.Value
	return p.expect('.')
}

func (p *textParser) ruleDecl() (rete.RuleDef, error) {
	def := rete.RuleDef{Line: p.line}
	p.rule = ""
	p.advance() // '['
	p.skip()

	if p.peek() != '(' {
		start := p.pos
		for !p.eof() && p.peek() != ':' && !isSpace(p.peek()) && p.peek() != ']' {
			p.pos++
		}
		def.Name = p.src[start:p.pos]
		p.rule = def.Name
		if err := p.expect(':'); err != nil {
			return def, err
		}
	}

	head := false
	for {
		p.skip()
		switch {
		case p.eof():
			return def, p.fail("unterminated rule")
		case p.peek() == ']':
			p.advance()
			if !head {
				return def, p.fail("missing '->'")
			}
			return def, nil
		case strings.HasPrefix(p.src[p.pos:], "->"):
			if head {
				return def, p.fail("more than one '->'")
			}
			head = true
			p.pos += 2
		case p.peek() == '(':
			pat, err := p.clause()
			if err != nil {
				return def, err
			}
			if head {
				def.Head = append(def.Head, pat)
			} else {
				def.Body = append(def.Body, pat)
			}
		case isNameStart(p.peek()):
			start := p.pos
			for !p.eof() && p.peek() != '(' && !isSpace(p.peek()) {
				p.pos++
			}
			return def, p.fail("builtin %q is not supported", p.src[start:p.pos])
		default:
			return def, p.fail("unexpected %q in rule", p.peek())
		}
	}
}

func (p *textParser) clause() (rete.Pattern, error) {
	p.advance() // '('
	var terms [3]message.Term
	for i := range terms {
		p.skip()
		t, err := p.term()
		if err != nil {
			return rete.Pattern{}, err
		}
		terms[i] = t
	}
	if err := p.expect(')'); err != nil {
		return rete.Pattern{}, err
	}
	return rete.NewPattern(terms[0], terms[1], terms[2]), nil
}

func (p *textParser) term() (message.Term, error) {
	if p.eof() {
		return message.Term{}, p.fail("unexpected end of input")
	}
	switch c := p.peek(); {
	case c == '?':
		p.pos++
		name := p.word()
		if name == "" {
			return message.Term{}, p.fail("empty variable name")
		}
		return message.Var(name), nil
	case c == '<':
		return p.iri()
	case c == '"' || c == '\'':
		return p.literal()
	case c == '_' && strings.HasPrefix(p.src[p.pos:], "_:"):
		p.pos += 2
		label := p.word()
		if label == "" {
			return message.Term{}, p.fail("empty blank node label")
		}
		return message.Blank(label), nil
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.number()
	case isNameStart(c):
		start := p.pos
		for !p.eof() && !isSpace(p.peek()) && p.peek() != ')' && p.peek() != '(' {
			p.pos++
		}
		qname := p.src[start:p.pos]
		t, err := p.prefixes.Expand(qname)
		if err != nil {
			return message.Term{}, p.fail("%v", err)
		}
		return t, nil
	default:
		return message.Term{}, p.fail("unexpected %q in clause", c)
	}
}

func (p *textParser) word() string {
	start := p.pos
	for !p.eof() {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			break
		}
		p.pos += size
	}
	return p.src[start:p.pos]
}

func (p *textParser) iri() (message.Term, error) {
	end := strings.IndexByte(p.src[p.pos:], '>')
	if end < 0 {
		return message.Term{}, p.fail("unterminated IRI")
	}
	iri := p.src[p.pos : p.pos+end+1]
	t, err := message.ParseTerm(iri)
	if err != nil {
		return message.Term{}, p.fail("%v", err)
	}
	p.pos += end + 1
	return t, nil
}

func (p *textParser) literal() (message.Term, error) {
	quote := p.peek()
	p.pos++
	var sb strings.Builder
	for {
		if p.eof() || p.peek() == '\n' {
			return message.Term{}, p.fail("unterminated literal")
		}
		c := p.peek()
		if c == quote {
			p.pos++
			break
		}
		if c == '\\' && p.pos+1 < len(p.src) {
			switch e := p.src[p.pos+1]; e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(e)
			}
			p.pos += 2
			continue
		}
		sb.WriteByte(c)
		p.pos++
	}

	lexical := sb.String()
	switch {
	case p.peek() == '@':
		p.pos++
		lang := p.word()
		if lang == "" {
			return message.Term{}, p.fail("empty language tag")
		}
		return message.LangLiteral(lexical, lang), nil
	case strings.HasPrefix(p.src[p.pos:], "^^"):
		p.pos += 2
		dt, err := p.term()
		if err != nil {
			return message.Term{}, err
		}
		if !dt.IsIRI() {
			return message.Term{}, p.fail("datatype must be an IRI")
		}
		return message.TypedLiteral(lexical, dt.Value), nil
	default:
		return message.Literal(lexical), nil
	}
}

func (p *textParser) number() (message.Term, error) {
	start := p.pos
	p.pos++
	for !p.eof() && (p.peek() == '.' || (p.peek() >= '0' && p.peek() <= '9')) {
		p.pos++
	}
	lexical := p.src[start:p.pos]
	if _, err := strconv.ParseInt(lexical, 10, 64); err == nil {
		return message.TypedLiteral(lexical, NSXSD+"integer"), nil
	}
	if _, err := strconv.ParseFloat(lexical, 64); err == nil {
		return message.TypedLiteral(lexical, NSXSD+"decimal"), nil
	}
	return message.Term{}, p.fail("invalid number %q", lexical)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}
