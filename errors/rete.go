package errors

import (
	"fmt"
	"strings"
)

// MalformedRuleError reports a rule rejected by the compiler or a rule source
// that cannot be parsed. It is fatal at startup.
type MalformedRuleError struct {
	Rule   string // rule name, empty when the rule could not be named
	Line   int    // source line, 0 when not from text
	Reason string
}

func (e *MalformedRuleError) Error() string {
	var sb strings.Builder
	sb.WriteString("malformed rule")
	if e.Rule != "" {
		fmt.Fprintf(&sb, " %q", e.Rule)
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d", e.Line)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	return sb.String()
}

// CyclicDependencyError reports a cycle in the node graph outside the
// feedback edges into the fact source.
type CyclicDependencyError struct {
	Nodes []int
}

func (e *CyclicDependencyError) Error() string {
	ids := make([]string, len(e.Nodes))
	for i, id := range e.Nodes {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return "cyclic dependency among nodes [" + strings.Join(ids, " ") + "]"
}

// IncompleteBindingError is raised by a terminal node when a binding lacks a
// variable the rule head needs. It signals a broken network, not bad input.
type IncompleteBindingError struct {
	Rule     string
	Node     int
	Variable string
}

func (e *IncompleteBindingError) Error() string {
	return fmt.Sprintf("rule %q terminal %d: binding has no value for ?%s", e.Rule, e.Node, e.Variable)
}

// MalformedFactError reports an input line that is not a valid fact.
// The line is skipped and processing continues.
type MalformedFactError struct {
	Source string
	Line   int
	Err    error
}

func (e *MalformedFactError) Error() string {
	return fmt.Sprintf("malformed fact at %s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *MalformedFactError) Unwrap() error {
	return e.Err
}
