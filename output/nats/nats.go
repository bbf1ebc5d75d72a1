package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/pkg/retry"
)

// Config holds configuration for the NATS sink
type Config struct {
	Subject string             `json:"subject"`
	Retry   errors.RetryConfig `json:"retry"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Subject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "subject is required")
	}
	if strings.ContainsAny(c.Subject, " *>") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: subject %q must be literal", errors.ErrInvalidConfig, c.Subject),
			"Config", "Validate", "subject validation")
	}
	if c.Retry.MaxRetries < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "retry.max_retries cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the NATS sink
func DefaultConfig() Config {
	return Config{
		Subject: "semrete.derived",
		Retry:   errors.DefaultRetryConfig(),
	}
}

// Publisher is the NATS call the sink needs
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// flusher is implemented by publishers that buffer, like *natsclient.Client
type flusher interface {
	Flush(ctx context.Context) error
}

// Sink publishes each derived triple as one N-Triples line on a subject
type Sink struct {
	*component.FlowTracker

	cfg     Config
	pub     Publisher
	logger  *slog.Logger
	metrics *metric.Metrics
	closed  atomic.Bool

	fatalMu sync.Mutex
	fatal   error
}

// NewSink creates a NATS sink publishing through pub
func NewSink(cfg Config, pub Publisher, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Sink", "NewSink", "NATS client required")
	}
	s := &Sink{
		FlowTracker: component.NewFlowTracker(),
		cfg:         cfg,
		pub:         pub,
		logger:      deps.GetLoggerWithComponent("nats-sink").With("subject", cfg.Subject),
	}
	if deps.MetricsRegistry != nil {
		s.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	return s, nil
}

// NewSinkFromConfig is the registry factory; it publishes through deps.NATSClient
func NewSinkFromConfig(rawConfig json.RawMessage, deps component.Dependencies) (component.Sink, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Sink", "NewSinkFromConfig", "config unmarshal")
		}
	}
	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Sink", "NewSinkFromConfig", "NATS client required")
	}
	sink, err := NewSink(cfg, deps.NATSClient, deps)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// Meta returns component metadata
func (s *Sink) Meta() component.Metadata {
	return component.Metadata{
		Name:        "nats",
		Type:        component.TypeOutput,
		Description: "Publishes derived triples to a NATS subject",
		Version:     "0.1.0",
	}
}

// Write publishes t, retrying transient failures. Exhausted retries latch a
// fatal error.
func (s *Sink) Write(ctx context.Context, t message.Triple) error {
	if err := s.latched(); err != nil {
		return err
	}
	if s.closed.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStopped, "Sink", "Write", "publish triple")
	}

	data := []byte(t.String())
	cfg := s.cfg.Retry.ToRetryConfig()
	cfg.Notify = func(attempt int, err error, delay time.Duration) {
		s.metrics.RecordSinkRetry("nats")
		s.logger.Warn("Publish failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	err := retry.Do(ctx, cfg, func() error {
		return s.pub.Publish(ctx, s.cfg.Subject, data)
	})
	if err != nil {
		exhausted := errors.WrapFatal(
			fmt.Errorf("%w: %s: %w", errors.ErrSinkExhausted, s.cfg.Subject, err), "Sink", "Write", "publish triple")
		s.fatalMu.Lock()
		if s.fatal == nil {
			s.fatal = exhausted
		}
		s.fatalMu.Unlock()
		s.Fail(exhausted)
		return exhausted
	}

	s.Record(len(data))
	s.metrics.RecordSinkWrite("nats", 1)
	return nil
}

// Close flushes the publisher when it buffers
func (s *Sink) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if f, ok := s.pub.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return errors.WrapTransient(err, "Sink", "Close", "flush publisher")
		}
	}
	return s.latched()
}

func (s *Sink) latched() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatal
}

// Register registers the NATS sink with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(&component.Registration{
		Name:        "nats",
		Type:        component.TypeOutput,
		Protocol:    "nats",
		Description: "Publishes derived triples as N-Triples lines to a NATS subject",
		Version:     "0.1.0",
		Sink:        NewSinkFromConfig,
	})
}

var _ component.Sink = (*Sink)(nil)
