package httppost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/pkg/retry"
	"github.com/c360/semrete/pkg/security"
	"github.com/c360/semrete/pkg/tlsutil"
)

// ContentTypeNTriples is the media type of a batch body
const ContentTypeNTriples = "application/n-triples"

// Config holds configuration for the HTTP POST sink
type Config struct {
	URL           string             `json:"url"`
	Headers       map[string]string  `json:"headers,omitempty"`
	Timeout       int                `json:"timeout"`
	BatchSize     int                `json:"batch_size"`
	FlushInterval time.Duration      `json:"flush_interval"`
	ContentType   string             `json:"content_type"`
	Retry         errors.RetryConfig `json:"retry"`
	// TLS configures https:// endpoints with private CAs or client certificates
	TLS security.ClientTLSConfig `json:"tls"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: scheme %q", errors.ErrInvalidConfig, u.Scheme), "Config", "Validate", "url scheme")
	}
	if c.Timeout < 0 || c.Timeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 0 and 300 seconds")
	}
	if c.BatchSize < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "batch_size must be at least 1")
	}
	if c.FlushInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "flush_interval must be positive")
	}
	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 10 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"retry.max_retries must be between 0 and 10")
	}
	return c.TLS.Validate()
}

// DefaultConfig returns default configuration for the HTTP POST sink
func DefaultConfig() Config {
	return Config{
		URL:           "http://localhost:8080/webhook",
		Headers:       make(map[string]string),
		Timeout:       30,
		BatchSize:     100,
		FlushInterval: time.Second,
		ContentType:   ContentTypeNTriples,
		Retry:         errors.DefaultRetryConfig(),
	}
}

// Sink posts derived triples to an HTTP endpoint in N-Triples batches.
// Batches are sent one at a time, so the endpoint sees complete lines in
// write order per batch.
type Sink struct {
	*component.FlowTracker

	cfg        Config
	logger     *slog.Logger
	metrics    *metric.Metrics
	httpClient *http.Client

	batch   bytes.Buffer
	pending int
	batchMu sync.Mutex
	sendMu  sync.Mutex

	shutdown  chan struct{}
	loopOnce  sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	wg        sync.WaitGroup

	messagesSent    atomic.Int64
	messagesRetried atomic.Int64

	fatalMu sync.Mutex
	fatal   error
}

// NewSink creates an HTTP POST sink
func NewSink(cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ContentType == "" {
		cfg.ContentType = ContentTypeNTriples
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: timeout}
	if tlsConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		client.Transport = transport
	}

	s := &Sink{
		FlowTracker: component.NewFlowTracker(),
		cfg:         cfg,
		logger:      deps.GetLoggerWithComponent("httppost-sink").With("url", cfg.URL),
		httpClient:  client,
		shutdown:    make(chan struct{}),
	}
	if deps.MetricsRegistry != nil {
		s.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	return s, nil
}

// NewSinkFromConfig is the registry factory for the HTTP POST sink
func NewSinkFromConfig(rawConfig json.RawMessage, deps component.Dependencies) (component.Sink, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Sink", "NewSinkFromConfig", "config unmarshal")
		}
	}
	sink, err := NewSink(cfg, deps)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// Meta returns component metadata
func (s *Sink) Meta() component.Metadata {
	return component.Metadata{
		Name:        "httppost",
		Type:        component.TypeOutput,
		Description: "HTTP POST output for derived triples in N-Triples batches",
		Version:     "0.1.0",
	}
}

// Write adds t to the current batch and posts it when the batch is full
func (s *Sink) Write(ctx context.Context, t message.Triple) error {
	if err := s.latched(); err != nil {
		return err
	}
	if s.closed.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStopped, "Sink", "Write", "post triple")
	}

	s.loopOnce.Do(func() {
		s.wg.Add(1)
		go s.flushLoop()
	})

	line := t.String()
	s.batchMu.Lock()
	s.batch.WriteString(line)
	s.batch.WriteByte('\n')
	s.pending++
	full := s.pending >= s.cfg.BatchSize
	s.batchMu.Unlock()

	s.Record(len(line) + 1)
	if full {
		return s.flush(ctx)
	}
	return nil
}

// Close posts the last batch
func (s *Sink) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.shutdown)
		s.wg.Wait()
		err = s.flush(ctx)
		s.httpClient.CloseIdleConnections()
	})
	if err == nil {
		err = s.latched()
	}
	return err
}

func (s *Sink) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.httpClient.Timeout)
			if err := s.flush(ctx); err != nil {
				s.logger.Debug("Periodic post failed", "error", err)
			}
			cancel()
		}
	}
}

// flush posts the buffered batch. 4xx responses are not retried; exhausted
// retries latch a fatal error.
func (s *Sink) flush(ctx context.Context) error {
	if err := s.latched(); err != nil {
		return err
	}

	s.batchMu.Lock()
	if s.pending == 0 {
		s.batchMu.Unlock()
		return nil
	}
	body := bytes.Clone(s.batch.Bytes())
	count := s.pending
	s.batch.Reset()
	s.pending = 0
	s.batchMu.Unlock()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	cfg := s.cfg.Retry.ToRetryConfig()
	cfg.Notify = func(attempt int, err error, delay time.Duration) {
		s.messagesRetried.Add(1)
		s.metrics.RecordSinkRetry("httppost")
		s.logger.Warn("POST failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	err := retry.Do(ctx, cfg, func() error {
		return s.post(ctx, body)
	})
	if err != nil {
		exhausted := errors.WrapFatal(
			fmt.Errorf("%w: %s: %w", errors.ErrSinkExhausted, s.cfg.URL, err), "Sink", "flush", "post triples")
		s.fatalMu.Lock()
		if s.fatal == nil {
			s.fatal = exhausted
		}
		s.fatalMu.Unlock()
		s.Fail(exhausted)
		s.logger.Error("HTTP POST exhausted", "lines_lost", count, "error", err)
		return exhausted
	}

	s.messagesSent.Add(int64(count))
	s.metrics.RecordSinkWrite("httppost", count)
	return nil
}

// post sends a single HTTP POST request
func (s *Sink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return retry.NonRetryable(err)
	}
	req.Header.Set("Content-Type", s.cfg.ContentType)
	for key, value := range s.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// drain to reuse the connection
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.NonRetryable(fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return nil
}

// Sent returns the number of triples delivered
func (s *Sink) Sent() int64 {
	return s.messagesSent.Load()
}

// Retried returns the number of retried posts
func (s *Sink) Retried() int64 {
	return s.messagesRetried.Load()
}

func (s *Sink) latched() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatal
}

// Register registers the HTTP POST sink with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(&component.Registration{
		Name:        "httppost",
		Type:        component.TypeOutput,
		Protocol:    "http",
		Description: "HTTP POST output for derived triples with retries",
		Version:     "0.1.0",
		Sink:        NewSinkFromConfig,
	})
}

var _ component.Sink = (*Sink)(nil)
