package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// maxMultiplier caps growth so the delay arithmetic cannot overflow
const maxMultiplier = 1000

// NonRetryableError marks a failure that retrying cannot fix
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps err so Do returns it without further attempts
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was wrapped with NonRetryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// ExhaustedError is returned when every attempt failed
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Config controls attempts and backoff
type Config struct {
	MaxAttempts  int           // total attempts; 0 or less runs once
	InitialDelay time.Duration // delay after the first failure
	MaxDelay     time.Duration // upper bound on any single delay
	Multiplier   float64       // growth factor between delays
	AddJitter    bool          // add up to 25% random delay

	// Retryable reports whether an error may be retried. Nil retries everything
	// except NonRetryable errors.
	Retryable func(error) bool
	// Notify is called before each backoff sleep with the failed attempt number.
	Notify func(attempt int, err error, delay time.Duration)
}

// DefaultConfig suits single network operations such as binding a socket
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Quick suits cheap operations retried many times, such as reopening an input
// or publishing an envelope
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

// Validate rejects negative timings and a MaxDelay below InitialDelay
func (c Config) Validate() error {
	switch {
	case c.InitialDelay < 0:
		return errors.New("retry: InitialDelay cannot be negative")
	case c.MaxDelay < 0:
		return errors.New("retry: MaxDelay cannot be negative")
	case c.Multiplier < 0:
		return errors.New("retry: Multiplier cannot be negative")
	}
	n := c.withDefaults()
	if n.MaxDelay < n.InitialDelay {
		return errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	c.Multiplier = min(c.Multiplier, maxMultiplier)
	return c
}

func (c Config) retryable(err error) bool {
	if IsNonRetryable(err) {
		return false
	}
	return c.Retryable == nil || c.Retryable(err)
}

// backoff yields the delay before each retry
type backoff struct {
	next   time.Duration
	max    time.Duration
	factor float64
	jitter bool
}

func (b *backoff) delay() time.Duration {
	d := b.next
	if b.jitter && d >= 4 {
		d += rand.N(d / 4)
	}
	grown := float64(b.next) * b.factor
	if grown > float64(b.max) {
		b.next = b.max
	} else {
		b.next = time.Duration(grown)
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx ends
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()
	b := &backoff{next: cfg.InitialDelay, max: cfg.MaxDelay, factor: cfg.Multiplier, jitter: cfg.AddJitter}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		d := b.delay()
		if cfg.Notify != nil {
			cfg.Notify(attempt, err, d)
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return &ExhaustedError{Attempts: cfg.MaxAttempts, Err: lastErr}
}

// DoWithResult is Do for functions that also return a value
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
