package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/componentregistry"
	"github.com/c360/semrete/config"
	"github.com/c360/semrete/health"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/natsclient"
	"github.com/c360/semrete/pkg/tlsutil"
	"github.com/c360/semrete/rete"
	"github.com/c360/semrete/ruleset"
	"github.com/c360/semrete/topology"
)

// app holds the infrastructure shared by run and worker
type app struct {
	cfg           *config.Config
	logger        *slog.Logger
	metrics       *metric.MetricsRegistry
	metricsServer *metric.Server
	natsClient    *natsclient.Client
	registry      *component.Registry
}

// newApp sets up logging, metrics and the component registry
func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	logger := setupLogger(logOut, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metric.NewMetricsRegistry(),
		registry: component.NewRegistry(),
	}

	if err := componentregistry.Register(a.registry); err != nil {
		return nil, fmt.Errorf("register components: %w", err)
	}
	logger.Debug("Component factories registered", "count", len(a.registry.ListFactories()))

	if cfg.Metrics.Addr != "" {
		a.metricsServer = metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, a.metrics)
		if err := a.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("Metrics server started", "addr", a.metricsServer.Address(), "path", cfg.Metrics.Path)
	}
	return a, nil
}

// needsNATS reports whether the cluster or any output talks to NATS
func (a *app) needsNATS() bool {
	if a.cfg.Cluster == config.ClusterNATS {
		return true
	}
	for _, out := range a.cfg.Outputs {
		if out.Type == "nats" {
			return true
		}
	}
	return false
}

// connectNATS establishes the NATS connection and waits for it to be ready
func (a *app) connectNATS(ctx context.Context) error {
	nc := a.cfg.NATS
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithMetrics(a.metrics),
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithReconnectWait(nc.ReconnectWait),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			a.logger.Info("NATS connection health changed", "healthy", healthy)
		}),
	}
	if nc.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(nc.PingInterval))
	}
	if nc.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(nc.DrainTimeout))
	}
	if nc.Username != "" {
		opts = append(opts, natsclient.WithCredentials(nc.Username, nc.Password))
	}
	if nc.Token != "" {
		opts = append(opts, natsclient.WithToken(nc.Token))
	}
	tlsConfig, err := tlsutil.LoadClientTLSConfig(nc.TLS)
	if err != nil {
		return fmt.Errorf("load NATS TLS config: %w", err)
	}
	opts = append(opts, natsclient.WithTLSConfig(tlsConfig))

	client, err := natsclient.NewClient(strings.Join(nc.URLs, ","), opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	a.logger.Info("Connecting to NATS", "urls", nc.URLs)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("wait for NATS: %w", err)
	}

	a.natsClient = client
	return nil
}

func (a *app) deps() component.Dependencies {
	return component.Dependencies{
		NATSClient:      a.natsClient,
		MetricsRegistry: a.metrics,
		Logger:          a.logger,
	}
}

// buildTopology loads the rule file and compiles it against the config
func (a *app) buildTopology(builder topology.Builder) (*topology.Topology, error) {
	return buildTopology(a.cfg, builder)
}

func buildTopology(cfg *config.Config, builder topology.Builder) (*topology.Topology, error) {
	defs, err := ruleset.Load(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("load rules %s: %w", cfg.Rules, err)
	}
	topo, err := topology.BuildFromDefs(cfg.Topology, builder, defs)
	if err != nil {
		return nil, fmt.Errorf("build topology: %w", err)
	}
	return topo, nil
}

// newCluster picks the substrate named by the config
func (a *app) newCluster() topology.Cluster {
	opts := []topology.Option{topology.WithLogger(a.logger), topology.WithMetrics(a.metrics)}
	if a.cfg.Cluster == config.ClusterNATS {
		return topology.NewNATSCluster(a.natsClient, opts...)
	}
	return topology.NewLocalCluster(opts...)
}

// watch publishes the run's health on the metrics server under /status
func (a *app) watch(cluster topology.Cluster, name string) {
	if a.metricsServer == nil {
		return
	}
	mon := health.NewMonitor(appName)
	mon.Register(name, health.RunProbe(cluster, name))
	if a.natsClient != nil {
		mon.Register("nats", health.NATSProbe(a.natsClient))
	}
	a.metricsServer.Handle("/status", mon)
}

// close releases NATS and the metrics server
func (a *app) close(ctx context.Context) {
	if a.natsClient != nil {
		if err := a.natsClient.Close(ctx); err != nil {
			a.logger.Warn("NATS close failed", "error", err)
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(ctx); err != nil {
			a.logger.Warn("Metrics server stop failed", "error", err)
		}
	}
}

// networkSummary counts nodes by kind
type networkSummary struct {
	Rules    int
	Alpha    int
	Join     int
	Terminal int
	Workers  int
}

func summarize(topo *topology.Topology) networkSummary {
	s := networkSummary{Rules: len(topo.Rules()), Workers: topo.Config().Workers}
	for _, n := range topo.Network().Nodes() {
		switch n.Kind {
		case rete.KindAlpha:
			s.Alpha++
		case rete.KindJoin:
			s.Join++
		case rete.KindTerminal:
			s.Terminal++
		}
	}
	return s
}
