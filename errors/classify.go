package errors

import (
	"context"
	"errors"
	"strings"
)

var (
	transientSentinels = []error{
		ErrConnectionTimeout,
		ErrConnectionLost,
		ErrStorageUnavailable,
		ErrCircuitOpen,
		context.DeadlineExceeded,
		context.Canceled,
	}
	transientWords = []string{"timeout", "connection", "network", "temporary", "unavailable", "busy"}

	fatalSentinels = []error{ErrInvalidConfig, ErrMissingConfig, ErrSinkExhausted}
	fatalWords     = []string{"fatal", "panic", "corrupted", "out of memory", "disk full", "no space left"}
)

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func mentions(err error, words []string) bool {
	msg := strings.ToLower(err.Error())
	for _, w := range words {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying. Unclassified errors are
// judged by sentinel, then by message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}
	return isAny(err, transientSentinels) || mentions(err, transientWords)
}

// IsFatal reports whether err should stop processing. Rule compilation
// failures are always fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorFatal
	}
	var (
		cyclic *CyclicDependencyError
		rule   *MalformedRuleError
	)
	if errors.As(err, &cyclic) || errors.As(err, &rule) {
		return true
	}
	return isAny(err, fatalSentinels) || mentions(err, fatalWords)
}

// IsInvalid reports whether err stems from bad input such as a malformed fact
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorInvalid
	}
	var fact *MalformedFactError
	return errors.As(err, &fact) || errors.Is(err, ErrInvalidData)
}
