package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(999).String())
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name                      string
		err                       error
		transient, fatal, invalid bool
	}{
		{"nil", nil, false, false, false},
		{"connection timeout", ErrConnectionTimeout, true, false, false},
		{"circuit open", fmt.Errorf("publish: %w", ErrCircuitOpen), true, false, false},
		{"context canceled", context.Canceled, true, false, false},
		{"network message", fmt.Errorf("network connection failed"), true, false, false},
		{"sink exhausted", fmt.Errorf("flush: %w", ErrSinkExhausted), false, true, false},
		{"invalid config", ErrInvalidConfig, false, true, false},
		{"disk full message", errors.New("write out.nt: no space left on device"), false, true, false},
		{"malformed rule", &MalformedRuleError{Rule: "r", Reason: "no head"}, false, true, false},
		{"cycle", &CyclicDependencyError{Nodes: []int{1, 2}}, false, true, false},
		{"malformed fact", &MalformedFactError{Source: "in.nt", Line: 3, Err: errors.New("bad")}, false, false, true},
		{"invalid data", ErrInvalidData, false, false, true},
		{"unknown", errors.New("something odd"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err), "transient")
			assert.Equal(t, tt.fatal, IsFatal(tt.err), "fatal")
			assert.Equal(t, tt.invalid, IsInvalid(tt.err), "invalid")
		})
	}
}

func TestWrapHelpers(t *testing.T) {
	base := errors.New("boom")

	assert.Nil(t, Wrap(nil, "c", "m", "a"))
	assert.Nil(t, WrapFatal(nil, "c", "m", "a"))

	err := WrapTransient(base, "FileSink", "Flush", "write batch")
	assert.Equal(t, "FileSink.Flush: write batch failed: boom", err.Error())
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, base)

	var ce *ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "FileSink", ce.Component)
	assert.Equal(t, "Flush", ce.Operation)

	assert.True(t, IsFatal(WrapFatal(base, "c", "m", "a")))
	assert.True(t, IsInvalid(WrapInvalid(base, "c", "m", "a")))
	// explicit classification wins over message patterns
	assert.False(t, IsTransient(WrapInvalid(errors.New("timeout"), "c", "m", "a")))
}

func TestReteErrorMessages(t *testing.T) {
	assert.Equal(t, `malformed rule "r1" at line 4: head variable ?z does not occur in body`,
		(&MalformedRuleError{Rule: "r1", Line: 4, Reason: "head variable ?z does not occur in body"}).Error())
	assert.Equal(t, "malformed rule: empty body", (&MalformedRuleError{Reason: "empty body"}).Error())
	assert.Equal(t, "cyclic dependency among nodes [3 4 5]", (&CyclicDependencyError{Nodes: []int{3, 4, 5}}).Error())
	assert.Equal(t, `rule "r" terminal 7: binding has no value for ?x`,
		(&IncompleteBindingError{Rule: "r", Node: 7, Variable: "x"}).Error())

	inner := errors.New("expected '.'")
	fe := &MalformedFactError{Source: "facts.nt", Line: 2, Err: inner}
	assert.ErrorIs(t, fe, inner)
	assert.Contains(t, fe.Error(), "facts.nt:2")
}

func TestRetryConfig(t *testing.T) {
	def := DefaultRetryConfig().ToRetryConfig()
	assert.Equal(t, 4, def.MaxAttempts)
	assert.True(t, def.AddJitter)

	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Second, BackoffFactor: 3}.ToRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 3.0, cfg.Multiplier)
	require.NotNil(t, cfg.Retryable)
	assert.True(t, cfg.Retryable(errors.New("write: broken pipe")))
	assert.False(t, cfg.Retryable(ErrSinkExhausted))
	assert.False(t, cfg.Retryable(WrapInvalid(errors.New("x"), "c", "m", "a")))
}
