package rete

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
)

func landAnimalRule() RuleDef {
	return RuleDef{
		Name: "landAnimal",
		Body: []Pattern{
			NewPattern(v("x"), rdfType, ex("Mammal")),
			NewPattern(v("x"), ex("livesIn"), v("y")),
		},
		Head: []Pattern{NewPattern(v("x"), rdfType, ex("LandAnimal"))},
	}
}

func TestCompile(t *testing.T) {
	unnamed := landAnimalRule()
	unnamed.Name = ""

	bps, err := Compile([]RuleDef{landAnimalRule(), unnamed})
	require.NoError(t, err)
	require.Len(t, bps, 2)

	assert.Equal(t, "landAnimal", bps[0].Name)
	assert.Equal(t, []string{"x", "y"}, bps[0].Vars)
	assert.Equal(t, "rule-1", bps[1].Name)
	assert.Equal(t, 1, bps[1].Index)
}

func TestCompile_Malformed(t *testing.T) {
	p := NewPattern(v("x"), ex("p"), v("y"))

	tests := []struct {
		name   string
		defs   []RuleDef
		reason string
	}{
		{"no body", []RuleDef{{Name: "r", Head: []Pattern{p}}}, "no body"},
		{"no head", []RuleDef{{Name: "r", Body: []Pattern{p}}}, "no head"},
		{"unbound head variable", []RuleDef{{
			Name: "r",
			Body: []Pattern{p},
			Head: []Pattern{NewPattern(v("x"), ex("q"), v("z"))},
		}}, "?z does not occur in body"},
		{"literal predicate", []RuleDef{{
			Name: "r",
			Body: []Pattern{NewPattern(v("x"), message.Literal("p"), v("y"))},
			Head: []Pattern{p},
		}}, "predicate must be an IRI or variable"},
		{"literal subject", []RuleDef{{
			Name: "r",
			Body: []Pattern{NewPattern(message.Literal("s"), ex("p"), v("y"))},
			Head: []Pattern{NewPattern(ex("a"), ex("q"), v("y"))},
		}}, "literal in subject position"},
		{"blank node in body", []RuleDef{{
			Name: "r",
			Body: []Pattern{NewPattern(message.Blank("b"), ex("p"), v("y"))},
			Head: []Pattern{NewPattern(ex("a"), ex("q"), v("y"))},
		}}, "blank node in body"},
		{"duplicate name", []RuleDef{
			{Name: "r", Body: []Pattern{p}, Head: []Pattern{p}},
			{Name: "r", Body: []Pattern{p}, Head: []Pattern{p}},
		}, "duplicate rule name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.defs)
			require.Error(t, err)

			var mre *errors.MalformedRuleError
			require.ErrorAs(t, err, &mre)
			assert.Equal(t, "r", mre.Rule)
			assert.Contains(t, mre.Reason, tt.reason)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestCompile_PreservesOrder(t *testing.T) {
	var defs []RuleDef
	for _, name := range []string{"c", "a", "b"} {
		r := landAnimalRule()
		r.Name = name
		defs = append(defs, r)
	}
	bps, err := Compile(defs)
	require.NoError(t, err)
	assert.Equal(t, "c", bps[0].Name)
	assert.Equal(t, "a", bps[1].Name)
	assert.Equal(t, "b", bps[2].Name)
}
