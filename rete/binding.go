package rete

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/c360/semrete/message"
)

// Binding is an immutable mapping from variable names to ground terms.
// The zero value is the empty binding.
type Binding struct {
	vars map[string]message.Term
}

// NewBinding copies vars into a new binding
func NewBinding(vars map[string]message.Term) Binding {
	if len(vars) == 0 {
		return Binding{}
	}
	cp := make(map[string]message.Term, len(vars))
	for k, v := range vars {
		cp[k] = v
	}
	return Binding{vars: cp}
}

// Get returns the term bound to name
func (b Binding) Get(name string) (message.Term, bool) {
	t, ok := b.vars[name]
	return t, ok
}

// Len returns the number of bound variables
func (b Binding) Len() int {
	return len(b.vars)
}

// Names returns the bound variable names in sorted order
func (b Binding) Names() []string {
	names := make([]string, 0, len(b.vars))
	for k := range b.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Merge returns the union of b and other. It fails when a variable bound in
// both has different values. Merge is commutative and associative.
func (b Binding) Merge(other Binding) (Binding, bool) {
	out := make(map[string]message.Term, len(b.vars)+len(other.vars))
	for k, v := range b.vars {
		out[k] = v
	}
	for k, v := range other.vars {
		if prev, ok := out[k]; ok && prev != v {
			return Binding{}, false
		}
		out[k] = v
	}
	return Binding{vars: out}, true
}

// Equal reports whether both bindings hold the same variables and values
func (b Binding) Equal(other Binding) bool {
	if len(b.vars) != len(other.vars) {
		return false
	}
	for k, v := range b.vars {
		if ov, ok := other.vars[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Key returns a deterministic string identifying the binding's contents
func (b Binding) Key() string {
	var sb strings.Builder
	for i, name := range b.Names() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte('?')
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(b.vars[name].String())
	}
	return sb.String()
}

// String implements fmt.Stringer
func (b Binding) String() string {
	return "{" + b.Key() + "}"
}

// MarshalJSON encodes the binding as an object of N-Triples term strings
func (b Binding) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(b.vars))
	for k, v := range b.vars {
		out[k] = v.String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (b *Binding) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	vars := make(map[string]message.Term, len(raw))
	for k, v := range raw {
		t, err := message.ParseTerm(v)
		if err != nil {
			return fmt.Errorf("binding ?%s: %w", k, err)
		}
		vars[k] = t
	}
	b.vars = vars
	return nil
}
