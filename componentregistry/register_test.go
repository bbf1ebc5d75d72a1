package componentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
)

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	names := map[string]string{}
	for _, reg := range registry.ListFactories() {
		names[reg.Name] = reg.Type
	}
	assert.Equal(t, map[string]string{
		"ntriples":  component.TypeInput,
		"udp":       component.TypeInput,
		"file":      component.TypeOutput,
		"nats":      component.TypeOutput,
		"httppost":  component.TypeOutput,
		"websocket": component.TypeOutput,
	}, names)
}

func TestRegister_Twice(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	err := Register(registry)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegister_NilRegistry(t *testing.T) {
	err := Register(nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
