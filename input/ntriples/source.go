package ntriples

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/pkg/retry"
)

// Source reads N-Triples facts line by line. Malformed lines are logged,
// counted and skipped.
type Source struct {
	*component.FlowTracker

	cfg     Config
	loc     location
	logger  *slog.Logger
	metrics *metric.Metrics
	client  *http.Client
	limiter *rate.Limiter
	stdin   io.Reader
}

// NewSource creates an N-Triples source. Nothing is opened until Run.
func NewSource(cfg Config, deps component.Dependencies) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "ntriples"
	}
	loc, _ := parseLocation(cfg.URL)

	s := &Source{
		FlowTracker: component.NewFlowTracker(),
		cfg:         cfg,
		loc:         loc,
		logger:      deps.GetLoggerWithComponent("ntriples-source").With("url", cfg.URL),
		client:      &http.Client{Timeout: cfg.Timeout},
		stdin:       os.Stdin,
	}
	if deps.MetricsRegistry != nil {
		s.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	return s, nil
}

// NewSourceFromConfig is the registry factory for the N-Triples source
func NewSourceFromConfig(rawConfig json.RawMessage, deps component.Dependencies) (component.FactSource, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Source", "NewSourceFromConfig", "config unmarshal")
		}
	}
	src, err := NewSource(cfg, deps)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Meta returns component metadata
func (s *Source) Meta() component.Metadata {
	return component.Metadata{
		Name:        s.cfg.Name,
		Type:        component.TypeInput,
		Description: "N-Triples fact source",
		Version:     "0.1.0",
	}
}

// Run reads the input and hands every fact to emit. It returns nil at end of
// input, or when ctx is cancelled in follow mode.
func (s *Source) Run(ctx context.Context, emit component.EmitFunc) error {
	r, err := s.open(ctx)
	if err != nil {
		s.Fail(err)
		return err
	}
	defer r.Close()

	s.logger.Info("Reading facts", "follow", s.cfg.Follow)

	reader := bufio.NewReaderSize(r, 64*1024)
	lr := &lineReader{src: s, emit: emit}

	if !s.cfg.Follow {
		return lr.drain(ctx, reader, true)
	}
	f, ok := r.(*os.File)
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Source", "Run", "follow requires a local file")
	}
	return s.follow(ctx, f, reader, lr)
}

func (s *Source) open(ctx context.Context) (io.ReadCloser, error) {
	switch s.loc.kind {
	case locationStdin:
		return io.NopCloser(s.stdin), nil
	case locationHTTP:
		var body io.ReadCloser
		cfg := retry.Quick()
		cfg.Retryable = errors.IsTransient
		err := retry.Do(ctx, cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.loc.path, nil)
			if err != nil {
				return errors.WrapInvalid(err, "Source", "open", "build request")
			}
			resp, err := s.client.Do(req)
			if err != nil {
				return errors.WrapTransient(err, "Source", "open", "GET facts")
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				err := fmt.Errorf("GET %s: status %d", s.loc.path, resp.StatusCode)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return errors.WrapInvalid(err, "Source", "open", "GET facts")
				}
				return errors.WrapTransient(err, "Source", "open", "GET facts")
			}
			body = resp.Body
			return nil
		})
		if errors.IsInvalid(err) {
			return nil, errors.WrapInvalid(err, "Source", "open", "fetch facts")
		}
		if err != nil {
			return nil, errors.WrapTransient(err, "Source", "open", "fetch facts")
		}
		return body, nil
	default:
		f, err := os.Open(s.loc.path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Source", "open", "open fact file")
		}
		return f, nil
	}
}

// follow reads to EOF, then waits for the file to grow. A partial last line
// is kept until its newline arrives. A file truncated in place is read again
// from the start.
func (s *Source) follow(ctx context.Context, f *os.File, reader *bufio.Reader, lr *lineReader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapTransient(err, "Source", "follow", "create file watcher")
	}
	defer watcher.Close()

	// Events for the file arrive through its parent directory
	if err := watcher.Add(filepath.Dir(s.loc.path)); err != nil {
		return errors.WrapTransient(err, "Source", "follow", "watch fact file")
	}
	target := filepath.Clean(s.loc.path)

	for {
		if err := lr.drain(ctx, reader, false); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				s.logger.Warn("Followed file was removed; stopping")
				return lr.flushPartial(ctx)
			}
			if ev.Has(fsnotify.Write) {
				if err := s.rewindIfTruncated(f, reader, lr); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("File watcher error", "error", err)
			s.RecordError(err)
		}
	}
}

// rewindIfTruncated seeks back to the start when the file is now shorter
// than what has been read. Reads stop at EOF before each event, so the file
// offset equals the bytes consumed.
func (s *Source) rewindIfTruncated(f *os.File, reader *bufio.Reader, lr *lineReader) error {
	info, err := f.Stat()
	if err != nil {
		return errors.WrapTransient(err, "Source", "follow", "stat fact file")
	}
	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.WrapTransient(err, "Source", "follow", "read file offset")
	}
	if info.Size() >= offset {
		return nil
	}

	s.logger.Info("Followed file was truncated; reading from the start", "size", info.Size(), "offset", offset)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.WrapTransient(err, "Source", "follow", "rewind fact file")
	}
	reader.Reset(f)
	lr.restart()
	return nil
}

// lineReader turns bytes into facts and tracks line numbers across reads
type lineReader struct {
	src     *Source
	emit    component.EmitFunc
	line    int
	partial strings.Builder
}

// drain consumes everything currently readable. With final set a last line
// without newline is processed too.
func (lr *lineReader) drain(ctx context.Context, reader *bufio.Reader, final bool) error {
	for {
		if err := ctx.Err(); err != nil {
			if lr.src.cfg.Follow {
				return nil
			}
			return err
		}

		chunk, err := reader.ReadString('\n')
		lr.partial.WriteString(chunk)
		if err == nil {
			text := lr.partial.String()
			lr.partial.Reset()
			if err := lr.handle(ctx, text); err != nil {
				return err
			}
			continue
		}
		if stderrors.Is(err, io.EOF) {
			if final {
				return lr.flushPartial(ctx)
			}
			return nil
		}
		lr.src.Fail(err)
		return errors.WrapTransient(err, "Source", "Run", "read facts")
	}
}

// restart forgets the partial line and numbers lines from the top again
func (lr *lineReader) restart() {
	lr.line = 0
	lr.partial.Reset()
}

func (lr *lineReader) flushPartial(ctx context.Context) error {
	if lr.partial.Len() == 0 {
		return nil
	}
	text := lr.partial.String()
	lr.partial.Reset()
	return lr.handle(ctx, text)
}

func (lr *lineReader) handle(ctx context.Context, text string) error {
	lr.line++
	s := lr.src

	t, err := message.ParseNTriple(text)
	if stderrors.Is(err, message.ErrSkipLine) {
		return nil
	}
	if err != nil {
		malformed := &errors.MalformedFactError{Source: s.cfg.URL, Line: lr.line, Err: err}
		s.logger.Warn("Skipping malformed fact", "line", lr.line, "error", err)
		s.metrics.RecordFactMalformed(s.cfg.Name)
		s.RecordError(malformed)
		return nil
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return lr.stopped(ctx, err)
		}
	}
	if err := lr.emit(ctx, t); err != nil {
		return lr.stopped(ctx, err)
	}
	s.Record(len(text))
	return nil
}

// stopped maps a cancelled emit to a clean stop in follow mode
func (lr *lineReader) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil && lr.src.cfg.Follow {
		return nil
	}
	return err
}

// Register registers the N-Triples source with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(&component.Registration{
		Name:        "ntriples",
		Type:        component.TypeInput,
		Protocol:    "file",
		Description: "Reads N-Triples facts from a file, URL or stdin",
		Version:     "0.1.0",
		Source:      NewSourceFromConfig,
	})
}

var _ component.FactSource = (*Source)(nil)
