package message

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrSkipLine is returned by ParseNTriple for blank and comment-only lines
var ErrSkipLine = stderrors.New("no triple on line")

// SyntaxError describes why a line is not a valid N-Triples statement
type SyntaxError struct {
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("ntriples: column %d: %s", e.Column, e.Msg)
}

// ParseNTriple parses a single N-Triples statement.
// Leading/trailing whitespace and a trailing comment are allowed.
func ParseNTriple(line string) (Triple, error) {
	p := &lineParser{src: strings.TrimRight(line, "\r\n")}
	p.skipSpace()
	if p.eof() || p.peek() == '#' {
		return Triple{}, ErrSkipLine
	}

	subj, err := p.term()
	if err != nil {
		return Triple{}, err
	}
	if !subj.IsIRI() && !subj.IsBlank() {
		return Triple{}, p.errorf("subject must be an IRI or blank node")
	}
	if !p.requireSpace() {
		return Triple{}, p.errorf("expected whitespace after subject")
	}

	pred, err := p.term()
	if err != nil {
		return Triple{}, err
	}
	if !pred.IsIRI() {
		return Triple{}, p.errorf("predicate must be an IRI")
	}
	if !p.requireSpace() {
		return Triple{}, p.errorf("expected whitespace after predicate")
	}

	obj, err := p.term()
	if err != nil {
		return Triple{}, err
	}

	p.skipSpace()
	if p.eof() || p.peek() != '.' {
		return Triple{}, p.errorf("expected '.' terminating statement")
	}
	p.pos++
	p.skipSpace()
	if !p.eof() && p.peek() != '#' {
		return Triple{}, p.errorf("unexpected trailing content %q", p.src[p.pos:])
	}

	return Triple{Subject: subj, Predicate: pred, Object: obj}, nil
}

// ParseTerm parses a single N-Triples term (IRI, blank node or literal)
func ParseTerm(s string) (Term, error) {
	p := &lineParser{src: strings.TrimSpace(s)}
	t, err := p.term()
	if err != nil {
		return Term{}, err
	}
	if !p.eof() {
		return Term{}, p.errorf("unexpected trailing content %q", p.src[p.pos:])
	}
	return t, nil
}

type lineParser struct {
	src string
	pos int
}

func (p *lineParser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *lineParser) peek() byte {
	return p.src[p.pos]
}

func (p *lineParser) errorf(format string, args ...any) error {
	return &SyntaxError{Column: p.pos + 1, Msg: fmt.Sprintf(format, args...)}
}

func (p *lineParser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func (p *lineParser) requireSpace() bool {
	start := p.pos
	p.skipSpace()
	return p.pos > start
}

func (p *lineParser) term() (Term, error) {
	if p.eof() {
		return Term{}, p.errorf("unexpected end of line")
	}
	switch c := p.peek(); {
	case c == '<':
		iri, err := p.iriRef()
		if err != nil {
			return Term{}, err
		}
		return IRI(iri), nil
	case c == '_':
		return p.blank()
	case c == '"':
		return p.literal()
	default:
		return Term{}, p.errorf("unexpected character %q", c)
	}
}

func (p *lineParser) iriRef() (string, error) {
	p.pos++ // '<'
	var sb strings.Builder
	for {
		if p.eof() {
			return "", p.errorf("unterminated IRI")
		}
		c := p.peek()
		switch {
		case c == '>':
			p.pos++
			if sb.Len() == 0 {
				return "", p.errorf("empty IRI")
			}
			return sb.String(), nil
		case c == '\\':
			r, err := p.unicodeEscape()
			if err != nil {
				return "", err
			}
			sb.WriteRune(r)
		case c <= 0x20 || c == '<' || c == '"' || c == '{' || c == '}' || c == '|' || c == '^' || c == '`':
			return "", p.errorf("invalid character %q in IRI", c)
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			sb.WriteRune(r)
			p.pos += size
		}
	}
}

func (p *lineParser) blank() (Term, error) {
	if !strings.HasPrefix(p.src[p.pos:], "_:") {
		return Term{}, p.errorf("malformed blank node")
	}
	p.pos += 2
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == ' ' || c == '\t' || (c == '.' && (p.pos+1 == len(p.src) || p.src[p.pos+1] == ' ' || p.src[p.pos+1] == '\t')) {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return Term{}, p.errorf("empty blank node label")
	}
	return Blank(p.src[start:p.pos]), nil
}

func (p *lineParser) literal() (Term, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for {
		if p.eof() {
			return Term{}, p.errorf("unterminated literal")
		}
		c := p.peek()
		if c == '"' {
			p.pos++
			break
		}
		if c == '\\' {
			r, err := p.escape()
			if err != nil {
				return Term{}, err
			}
			sb.WriteRune(r)
			continue
		}
		if c == '\n' || c == '\r' {
			return Term{}, p.errorf("raw line break in literal")
		}
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		sb.WriteRune(r)
		p.pos += size
	}

	lexical := sb.String()
	if p.eof() {
		return Literal(lexical), nil
	}

	switch {
	case p.peek() == '@':
		p.pos++
		start := p.pos
		for !p.eof() {
			c := p.peek()
			if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' {
				p.pos++
				continue
			}
			break
		}
		if p.pos == start {
			return Term{}, p.errorf("empty language tag")
		}
		return LangLiteral(lexical, p.src[start:p.pos]), nil
	case strings.HasPrefix(p.src[p.pos:], "^^"):
		p.pos += 2
		if p.eof() || p.peek() != '<' {
			return Term{}, p.errorf("expected datatype IRI")
		}
		dt, err := p.iriRef()
		if err != nil {
			return Term{}, err
		}
		return TypedLiteral(lexical, dt), nil
	default:
		return Literal(lexical), nil
	}
}

func (p *lineParser) escape() (rune, error) {
	if p.pos+1 >= len(p.src) {
		return 0, p.errorf("dangling escape")
	}
	switch p.src[p.pos+1] {
	case 't':
		p.pos += 2
		return '\t', nil
	case 'b':
		p.pos += 2
		return '\b', nil
	case 'n':
		p.pos += 2
		return '\n', nil
	case 'r':
		p.pos += 2
		return '\r', nil
	case 'f':
		p.pos += 2
		return '\f', nil
	case '"':
		p.pos += 2
		return '"', nil
	case '\'':
		p.pos += 2
		return '\'', nil
	case '\\':
		p.pos += 2
		return '\\', nil
	case 'u', 'U':
		return p.unicodeEscape()
	default:
		return 0, p.errorf("unknown escape \\%c", p.src[p.pos+1])
	}
}

// unicodeEscape consumes \uXXXX or \UXXXXXXXX starting at the backslash
func (p *lineParser) unicodeEscape() (rune, error) {
	if p.pos+1 >= len(p.src) {
		return 0, p.errorf("dangling escape")
	}
	var width int
	switch p.src[p.pos+1] {
	case 'u':
		width = 4
	case 'U':
		width = 8
	default:
		return 0, p.errorf("only \\u and \\U escapes are allowed here")
	}
	start := p.pos + 2
	if start+width > len(p.src) {
		return 0, p.errorf("truncated unicode escape")
	}
	v, err := strconv.ParseUint(p.src[start:start+width], 16, 32)
	if err != nil || !utf8.ValidRune(rune(v)) {
		return 0, p.errorf("invalid unicode escape %q", p.src[p.pos:start+width])
	}
	p.pos = start + width
	return rune(v), nil
}
