package websocket

import (
	"context"
	"crypto/tls"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/pkg/security"
	"github.com/c360/semrete/pkg/tlsutil"
)

// Config holds configuration for the WebSocket sink
type Config struct {
	// Addr is the listen address. Empty means the caller mounts the sink as an http.Handler.
	Addr string `json:"addr"`
	// Path is the WebSocket endpoint when the sink runs its own server
	Path string `json:"path"`
	// ClientBuffer is the per-client send queue; a full queue drops messages for that client
	ClientBuffer int `json:"client_buffer"`
	// WriteTimeout bounds a single frame write
	WriteTimeout time.Duration `json:"write_timeout"`
	// PingInterval is how often idle clients are pinged
	PingInterval time.Duration `json:"ping_interval"`
	// TLS serves wss:// on Addr
	TLS security.ServerTLSConfig `json:"tls"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Addr != "" && c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path is required with addr")
	}
	if c.ClientBuffer < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "client_buffer must be at least 1")
	}
	if c.WriteTimeout <= 0 || c.PingInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"write_timeout and ping_interval must be positive")
	}
	if c.TLS.Enabled && c.Addr == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "tls requires addr")
	}
	return c.TLS.Validate()
}

// DefaultConfig returns the default configuration for the WebSocket sink
func DefaultConfig() Config {
	return Config{
		Addr:         ":8081",
		Path:         "/ws",
		ClientBuffer: 256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// MessageEnvelope wraps every frame sent to clients.
// Type is "data" for derived triples.
type MessageEnvelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// TriplePayload is the payload of a data frame
type TriplePayload struct {
	Triple string `json:"triple"`
}

// clientInfo holds information about a connected WebSocket client
type clientInfo struct {
	conn        *websocket.Conn
	connectedAt time.Time
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	sent        atomic.Int64
}

func (c *clientInfo) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Metrics holds Prometheus metrics for the WebSocket sink
type Metrics struct {
	registry         *metric.MetricsRegistry
	messagesSent     prometheus.Counter
	messagesDropped  prometheus.Counter
	clientsConnected prometheus.Gauge
	connectionTotal  prometheus.Counter
}

const metricsService = "websocket-sink"

// newMetrics creates and registers sink metrics; a nil registry disables them
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semrete", Subsystem: "websocket", Name: name, Help: help,
		})
	}

	m := &Metrics{
		registry:        registry,
		messagesSent:    counter("messages_sent_total", "Derived triples sent to WebSocket clients"),
		messagesDropped: counter("messages_dropped_total", "Derived triples dropped for slow clients"),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semrete", Subsystem: "websocket",
			Name: "clients_connected", Help: "Number of currently connected clients",
		}),
		connectionTotal: counter("client_connections_total", "Total client connections (including disconnected)"),
	}

	if err := registry.RegisterCounter(metricsService, "messages_sent", m.messagesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "messages_dropped", m.messagesDropped); err != nil {
		m.unregister()
		return nil, err
	}
	if err := registry.RegisterGauge(metricsService, "clients_connected", m.clientsConnected); err != nil {
		m.unregister()
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "client_connections", m.connectionTotal); err != nil {
		m.unregister()
		return nil, err
	}
	return m, nil
}

func (m *Metrics) unregister() {
	if m == nil {
		return
	}
	for _, name := range []string{"messages_sent", "messages_dropped", "clients_connected", "client_connections"} {
		m.registry.Unregister(metricsService, name)
	}
}

// Sink broadcasts derived triples to connected WebSocket clients. Delivery is
// at most once: a client whose queue is full misses the triple, and clients
// only see triples derived after they connect.
type Sink struct {
	*component.FlowTracker

	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics
	core     *metric.Metrics
	upgrader websocket.Upgrader

	server   *http.Server
	listener net.Listener
	serveErr chan error

	clients   map[*clientInfo]struct{}
	clientsMu sync.RWMutex

	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewSink creates a WebSocket sink. With a non-empty Addr it starts listening
// at once; otherwise mount it on an existing server.
func NewSink(cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Sink", "NewSink", "register metrics")
	}

	s := &Sink{
		FlowTracker: component.NewFlowTracker(),
		cfg:         cfg,
		logger:      deps.GetLoggerWithComponent("websocket-sink"),
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*clientInfo]struct{}),
	}
	if deps.MetricsRegistry != nil {
		s.core = deps.MetricsRegistry.CoreMetrics()
	}

	if cfg.Addr != "" {
		if err := s.listen(); err != nil {
			metrics.unregister()
			return nil, err
		}
	}
	return s, nil
}

// NewSinkFromConfig is the registry factory for the WebSocket sink
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

func (s *Sink) listen() error {
	tlsConfig, err := tlsutil.LoadServerTLSConfig(s.cfg.TLS)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapTransient(err, "Sink", "listen", fmt.Sprintf("listen on %s", s.cfg.Addr))
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	s.listener = ln
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.serveErr = make(chan error, 1)

	go func() {
		err := s.server.Serve(ln)
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("WebSocket server failed", "error", err)
			s.RecordError(err)
		}
		s.serveErr <- err
	}()
	s.logger.Info("WebSocket sink listening", "addr", ln.Addr().String(), "path", s.cfg.Path, "tls", tlsConfig != nil)
	return nil
}

// Addr returns the bound listen address, or "" when the sink has no server
func (s *Sink) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ServeHTTP upgrades the request and registers the client
func (s *Sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "sink closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.RecordError(err)
		return
	}

	info := &clientInfo{
		conn:        conn,
		connectedAt: time.Now(),
		send:        make(chan []byte, s.cfg.ClientBuffer),
		done:        make(chan struct{}),
	}

	s.clientsMu.Lock()
	if s.closed.Load() {
		s.clientsMu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[info] = struct{}{}
	count := len(s.clients)
	s.wg.Add(2)
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.connectionTotal.Inc()
		s.metrics.clientsConnected.Set(float64(count))
	}
	s.logger.Debug("Client connected", "remote", r.RemoteAddr, "clients", count)

	go s.writePump(info)
	go s.readPump(info)
}

// readPump discards client frames and notices disconnects
func (s *Sink) readPump(info *clientInfo) {
	defer s.wg.Done()
	defer info.close()

	info.conn.SetReadLimit(4096)
	_ = info.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	info.conn.SetPongHandler(func(string) error {
		return info.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	})
	for {
		if _, _, err := info.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection
func (s *Sink) writePump(info *clientInfo) {
	defer s.wg.Done()
	defer s.removeClient(info)
	defer info.conn.Close()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-info.done:
			s.drainClient(info)
			_ = info.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case data := <-info.send:
			if err := s.writeFrame(info, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := info.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// drainClient writes whatever is still queued before a close
func (s *Sink) drainClient(info *clientInfo) {
	for {
		select {
		case data := <-info.send:
			if err := s.writeFrame(info, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Sink) writeFrame(info *clientInfo, data []byte) error {
	_ = info.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := info.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("Client write failed", "error", err)
		return err
	}
	info.sent.Add(1)
	s.sent.Add(1)
	if s.metrics != nil {
		s.metrics.messagesSent.Inc()
	}
	return nil
}

func (s *Sink) removeClient(info *clientInfo) {
	info.close()
	s.clientsMu.Lock()
	delete(s.clients, info)
	count := len(s.clients)
	s.clientsMu.Unlock()
	if s.metrics != nil {
		s.metrics.clientsConnected.Set(float64(count))
	}
}

// Write broadcasts t to every connected client without blocking
func (s *Sink) Write(_ context.Context, t message.Triple) error {
	if s.closed.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStopped, "Sink", "Write", "broadcast triple")
	}

	payload, err := json.Marshal(TriplePayload{Triple: t.String()})
	if err != nil {
		return errors.WrapInvalid(err, "Sink", "Write", "marshal payload")
	}
	data, err := json.Marshal(MessageEnvelope{
		Type:      "data",
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	})
	if err != nil {
		return errors.WrapInvalid(err, "Sink", "Write", "marshal envelope")
	}

	s.clientsMu.RLock()
	for info := range s.clients {
		select {
		case info.send <- data:
		case <-info.done:
		default:
			s.dropped.Add(1)
			if s.metrics != nil {
				s.metrics.messagesDropped.Inc()
			}
		}
	}
	s.clientsMu.RUnlock()

	s.Record(len(data))
	s.core.RecordSinkWrite("websocket", 1)
	return nil
}

// Close disconnects every client after flushing its queue and stops the
// server when the sink owns one
func (s *Sink) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.clientsMu.Lock()
		s.closed.Store(true)
		for info := range s.clients {
			info.close()
		}
		s.clientsMu.Unlock()

		if s.server != nil {
			if serr := s.server.Shutdown(ctx); serr != nil {
				err = errors.WrapTransient(serr, "Sink", "Close", "shutdown server")
			}
			<-s.serveErr
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			if err == nil {
				err = errors.WrapTransient(ctx.Err(), "Sink", "Close", "wait for clients")
			}
		}
		s.metrics.unregister()
	})
	return err
}

// Clients returns the number of connected clients
func (s *Sink) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Sent returns the number of frames written to clients
func (s *Sink) Sent() int64 {
	return s.sent.Load()
}

// Dropped returns the number of frames dropped for slow clients
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Meta returns component metadata
func (s *Sink) Meta() component.Metadata {
	return component.Metadata{
		Name:        "websocket",
		Type:        component.TypeOutput,
		Description: "Broadcasts derived triples to WebSocket clients",
		Version:     "0.1.0",
	}
}

// Register registers the WebSocket sink with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(&component.Registration{
		Name:        "websocket",
		Type:        component.TypeOutput,
		Protocol:    "websocket",
		Description: "Live WebSocket feed of derived triples",
		Version:     "0.1.0",
		Sink:        NewSinkFromConfig,
	})
}

var (
	_ component.Sink = (*Sink)(nil)
	_ http.Handler   = (*Sink)(nil)
)
