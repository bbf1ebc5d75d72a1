package udp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/pkg/buffer"
	"github.com/c360/semrete/pkg/retry"
)

// Source listens for N-Triples datagrams
type Source struct {
	*component.FlowTracker

	cfg      Config
	logger   *slog.Logger
	metrics  *metric.Metrics
	registry *metric.MetricsRegistry

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
	buf   *buffer.Buffer[[]byte]
	lines int
}

// NewSource creates a UDP source. The socket is bound in Run.
func NewSource(cfg Config, deps component.Dependencies) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "udp"
	}

	s := &Source{
		FlowTracker: component.NewFlowTracker(),
		cfg:         cfg,
		logger:      deps.GetLoggerWithComponent("udp-source").With("addr", cfg.Addr),
		registry:    deps.MetricsRegistry,
		ready:       make(chan struct{}),
	}
	if deps.MetricsRegistry != nil {
		s.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	return s, nil
}

// NewSourceFromConfig is the registry factory for the UDP source
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
		Description: fmt.Sprintf("N-Triples datagram source on %s", s.cfg.Addr),
		Version:     "0.1.0",
	}
}

// Ready is closed once the socket is bound
func (s *Source) Ready() <-chan struct{} {
	return s.ready
}

// LocalAddr returns the bound address, or nil before Ready
func (s *Source) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Dropped returns the number of datagrams lost to buffer overflow
func (s *Source) Dropped() int64 {
	s.mu.Lock()
	buf := s.buf
	s.mu.Unlock()
	if buf == nil {
		return 0
	}
	return buf.Drops()
}

// Run binds the socket and emits facts until ctx is cancelled or emit fails
func (s *Source) Run(ctx context.Context, emit component.EmitFunc) error {
	conn, err := s.bind(ctx)
	if err != nil {
		s.Fail(err)
		return err
	}

	policy, _ := buffer.ParseOverflowPolicy(s.cfg.Overflow)
	buf, err := buffer.New(s.cfg.BufferSize,
		buffer.WithOverflowPolicy[[]byte](policy),
		buffer.WithMetrics[[]byte](s.registry, s.cfg.Name+"_source"))
	if err != nil {
		_ = conn.Close()
		return err
	}

	s.mu.Lock()
	s.addr = conn.LocalAddr()
	s.buf = buf
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("Listening for facts", "local", conn.LocalAddr().String(), "overflow", policy.String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return buf.Close()
	})
	g.Go(func() error {
		return s.readLoop(gctx, conn, buf)
	})
	g.Go(func() error {
		return s.emitLoop(gctx, buf, emit)
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Source) bind(ctx context.Context) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Addr)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Source", "bind", "resolve address")
	}

	conn, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*net.UDPConn, error) {
		return net.ListenUDP("udp", addr)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Source", "bind", "socket binding")
	}

	if s.cfg.SocketBuffer > 0 {
		if err := conn.SetReadBuffer(s.cfg.SocketBuffer); err != nil {
			s.logger.Warn("Could not set UDP buffer size", "buffer_size", s.cfg.SocketBuffer, "error", err)
		}
	}
	return conn, nil
}

// readLoop copies datagrams into buf until the socket is closed
func (s *Source) readLoop(ctx context.Context, conn *net.UDPConn, buf *buffer.Buffer[[]byte]) error {
	packet := make([]byte, s.cfg.MaxDatagramSize)
	for {
		n, _, err := conn.ReadFromUDP(packet)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			s.RecordError(err)
			s.logger.Warn("UDP read failed", "error", err)
			continue
		}
		if n == 0 {
			continue
		}
		datagram := make([]byte, n)
		copy(datagram, packet[:n])
		if err := buf.Write(datagram); err != nil {
			return nil
		}
	}
}

// emitLoop parses buffered datagrams line by line
func (s *Source) emitLoop(ctx context.Context, buf *buffer.Buffer[[]byte], emit component.EmitFunc) error {
	for {
		datagram, err := buf.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, errors.ErrAlreadyStopped) {
				return nil
			}
			return err
		}
		s.Record(len(datagram))

		for _, line := range strings.Split(string(datagram), "\n") {
			if err := s.handle(ctx, line, emit); err != nil {
				return err
			}
		}
	}
}

func (s *Source) handle(ctx context.Context, line string, emit component.EmitFunc) error {
	t, err := message.ParseNTriple(line)
	if stderrors.Is(err, message.ErrSkipLine) {
		return nil
	}

	s.mu.Lock()
	s.lines++
	n := s.lines
	s.mu.Unlock()

	if err != nil {
		malformed := &errors.MalformedFactError{Source: s.cfg.Addr, Line: n, Err: err}
		s.logger.Warn("Skipping malformed fact", "line", n, "error", err)
		s.metrics.RecordFactMalformed(s.cfg.Name)
		s.RecordError(malformed)
		return nil
	}
	return emit(ctx, t)
}

// Register registers the UDP source with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(&component.Registration{
		Name:        "udp",
		Type:        component.TypeInput,
		Protocol:    "udp",
		Description: "Receives N-Triples facts as UDP datagrams",
		Version:     "0.1.0",
		Source:      NewSourceFromConfig,
	})
}

var _ component.FactSource = (*Source)(nil)
