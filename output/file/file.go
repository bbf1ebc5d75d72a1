package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/pkg/cache"
	"github.com/c360/semrete/pkg/retry"
)

// Config holds configuration for the file sink
type Config struct {
	Path          string             `json:"path"`
	Append        bool               `json:"append"`
	BufferSize    int                `json:"buffer_size"`
	FlushInterval time.Duration      `json:"flush_interval"`
	DedupSize     int                `json:"dedup_size"`
	Retry         errors.RetryConfig `json:"retry"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path is required")
	}
	if c.BufferSize < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "buffer_size must be at least 1")
	}
	if c.FlushInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "flush_interval must be positive")
	}
	if c.DedupSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "dedup_size cannot be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "retry.max_retries cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the file sink
func DefaultConfig() Config {
	return Config{
		Append:        true,
		BufferSize:    100,
		FlushInterval: time.Second,
		Retry:         errors.DefaultRetryConfig(),
	}
}

// writer is the part of *os.File the sink uses
type writer interface {
	io.Writer
	Sync() error
	Close() error
}

// Sink appends derived triples to a file, one N-Triples line per triple.
// Lines are buffered and written under fileMu, so concurrent writers never
// interleave partial lines.
type Sink struct {
	*component.FlowTracker

	name    string
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics
	dedup   cache.Cache[struct{}]
	open    func(path string, flag int, perm os.FileMode) (writer, error)

	file      writer
	truncated bool
	fileMu    sync.Mutex

	buffer   []byte
	pending  int
	bufferMu sync.Mutex

	shutdown  chan struct{}
	loopOnce  sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	wg        sync.WaitGroup

	fatalMu sync.Mutex
	fatal   error
}

// NewSink creates a file sink. The file is opened on the first flush.
func NewSink(cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sink{
		FlowTracker: component.NewFlowTracker(),
		name:        "file",
		cfg:         cfg,
		logger:      deps.GetLoggerWithComponent("file-sink").With("path", cfg.Path),
		shutdown:    make(chan struct{}),
		open: func(path string, flag int, perm os.FileMode) (writer, error) {
			return os.OpenFile(path, flag, perm)
		},
	}
	if deps.MetricsRegistry != nil {
		s.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	if cfg.DedupSize > 0 {
		dedup, err := cache.NewLRU[struct{}](cfg.DedupSize)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Sink", "NewSink", "create dedup cache")
		}
		s.dedup = dedup
	}
	return s, nil
}

// NewSinkFromConfig is the registry factory for the file sink
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

// Write buffers one triple. It flushes when the buffer is full and returns
// the latched fatal error once writes have been exhausted.
func (s *Sink) Write(ctx context.Context, t message.Triple) error {
	if err := s.latched(); err != nil {
		return err
	}
	if s.closed.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStopped, "Sink", "Write", "write triple")
	}

	line := t.String()
	if s.dedup != nil {
		seen, err := s.dedup.ContainsOrAdd(line, struct{}{})
		if err == nil && seen {
			s.metrics.RecordSinkDuplicate(s.name)
			return nil
		}
	}

	s.loopOnce.Do(func() {
		s.wg.Add(1)
		go s.flushLoop()
	})

	s.bufferMu.Lock()
	s.buffer = append(s.buffer, line...)
	s.buffer = append(s.buffer, '\n')
	s.pending++
	shouldFlush := s.pending >= s.cfg.BufferSize
	s.bufferMu.Unlock()

	s.Record(len(line) + 1)

	if shouldFlush {
		return s.flush(ctx)
	}
	return nil
}

// Close flushes buffered lines, syncs and closes the file. The file is
// created even when nothing was written.
func (s *Sink) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.shutdown)
		s.wg.Wait()

		if ferr := s.flush(ctx); ferr != nil {
			err = ferr
		}

		s.fileMu.Lock()
		defer s.fileMu.Unlock()
		if s.file == nil && err == nil {
			if oerr := s.ensureOpenLocked(); oerr != nil {
				err = oerr
				return
			}
		}
		if s.file != nil {
			if serr := s.file.Sync(); serr != nil {
				s.logger.Warn("Failed to sync output file", "error", serr)
			}
			if cerr := s.file.Close(); cerr != nil && err == nil {
				err = errors.WrapTransient(cerr, "Sink", "Close", "close output file")
			}
			s.file = nil
		}
		if s.dedup != nil {
			s.logger.Debug("Dedup cache closed", "dedup", s.dedup.Stats())
			_ = s.dedup.Close()
		}
	})
	if err == nil {
		err = s.latched()
	}
	return err
}

// Meta returns component metadata
func (s *Sink) Meta() component.Metadata {
	return component.Metadata{
		Name:        s.name,
		Type:        component.TypeOutput,
		Description: "N-Triples file output for derived facts",
		Version:     "0.1.0",
	}
}

// flushLoop periodically flushes the buffer
func (s *Sink) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushInterval*10)
			if err := s.flush(ctx); err != nil {
				s.logger.Debug("Periodic flush failed", "error", err)
			}
			cancel()
		}
	}
}

// flush writes buffered lines, retrying transient failures with backoff.
// Exhausted retries latch a fatal error.
func (s *Sink) flush(ctx context.Context) error {
	if err := s.latched(); err != nil {
		return err
	}

	s.bufferMu.Lock()
	if len(s.buffer) == 0 {
		s.bufferMu.Unlock()
		return nil
	}
	data := s.buffer
	count := s.pending
	s.buffer = nil
	s.pending = 0
	s.bufferMu.Unlock()

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	cfg := s.cfg.Retry.ToRetryConfig()
	cfg.Notify = func(attempt int, err error, delay time.Duration) {
		s.metrics.RecordSinkRetry(s.name)
		s.logger.Warn("Write failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	written := 0
	err := retry.Do(ctx, cfg, func() error {
		if err := s.ensureOpenLocked(); err != nil {
			return err
		}
		n, err := s.file.Write(data[written:])
		written += n
		if err != nil {
			_ = s.file.Close()
			s.file = nil
			return errors.WrapTransient(err, "Sink", "flush", "write output file")
		}
		return nil
	})
	if err != nil {
		exhausted := errors.WrapFatal(
			fmt.Errorf("%w: %s: %w", errors.ErrSinkExhausted, s.cfg.Path, err), "Sink", "flush", "write triples")
		s.latch(exhausted)
		s.logger.Error("Output file writes exhausted", "lines_lost", count, "error", err)
		return exhausted
	}

	s.metrics.RecordSinkWrite(s.name, count)
	return nil
}

func (s *Sink) ensureOpenLocked() error {
	if s.file != nil {
		return nil
	}
	if dir := filepath.Dir(s.cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapTransient(err, "Sink", "open", "create output directory")
		}
	}
	// Only the first open of a non-append sink truncates. Reopening after a
	// failed write must keep the lines already flushed by this sink.
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !s.cfg.Append && !s.truncated {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := s.open(s.cfg.Path, flags, 0o644)
	if err != nil {
		return errors.WrapTransient(err, "Sink", "open", "open output file")
	}
	s.file = f
	s.truncated = true
	return nil
}

func (s *Sink) latch(err error) {
	s.fatalMu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	s.fatalMu.Unlock()
	s.Fail(err)
}

func (s *Sink) latched() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatal
}

// Register registers the file sink with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(&component.Registration{
		Name:        "file",
		Type:        component.TypeOutput,
		Protocol:    "file",
		Description: "Appends derived triples to an N-Triples file",
		Version:     "0.1.0",
		Sink:        NewSinkFromConfig,
	})
}

var _ component.Sink = (*Sink)(nil)
