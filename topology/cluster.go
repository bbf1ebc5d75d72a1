package topology

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/pkg/retry"
)

// Cluster runs submitted topologies by name
type Cluster interface {
	// Submit starts a run of topo. It returns once the run is started.
	Submit(ctx context.Context, name string, topo *Topology) error
	// Await blocks until the named run has ingested all facts and drained
	Await(ctx context.Context, name string) error
	// Kill stops ingestion, drains in-flight trees up to DrainTimeout, closes
	// the sink and stops the executor
	Kill(name string) error
	// Shutdown kills every run
	Shutdown(ctx context.Context) error
	// Health returns a snapshot of the named run
	Health(name string) (RunStatus, error)
}

// Option configures a cluster
type Option func(*clusterOptions)

type clusterOptions struct {
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	publish  retry.Config
}

// WithLogger sets the cluster logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *clusterOptions) {
		o.logger = logger
	}
}

// WithMetrics records runtime and executor metrics in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *clusterOptions) {
		o.registry = registry
	}
}

// WithPublishRetry sets the retry policy for NATS publishes. A publish that
// still fails fails the run.
func WithPublishRetry(cfg retry.Config) Option {
	return func(o *clusterOptions) {
		o.publish = cfg
	}
}

func buildOptions(opts []Option) clusterOptions {
	o := clusterOptions{logger: slog.Default(), publish: retry.Quick()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// runSet is the name-indexed run table shared by both cluster kinds
type runSet struct {
	mu       sync.Mutex
	runs     map[string]*run
	shutdown bool
}

func newRunSet() runSet {
	return runSet{runs: make(map[string]*run)}
}

// reserve checks that name can be submitted
func (s *runSet) reserve(name string) error {
	if err := component.ValidateComponentName(name); err != nil {
		return errors.WrapInvalid(err, "Cluster", "Submit", "validate topology name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return errors.WrapInvalid(errors.ErrClusterShutdown, "Cluster", "Submit", "accept topology")
	}
	if r, ok := s.runs[name]; ok && !r.finishedRun() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrTopologyExists, name), "Cluster", "Submit", "accept topology")
	}
	return nil
}

// add registers a started run, replacing a finished one with the same name
func (s *runSet) add(r *run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return errors.WrapInvalid(errors.ErrClusterShutdown, "Cluster", "Submit", "accept topology")
	}
	if prev, ok := s.runs[r.name]; ok && !prev.finishedRun() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrTopologyExists, r.name), "Cluster", "Submit", "accept topology")
	}
	s.runs[r.name] = r
	return nil
}

func (s *runSet) get(name, method string) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrTopologyNotFound, name), "Cluster", method, "find topology")
	}
	return r, nil
}

func (s *runSet) kill(name string) error {
	r, err := s.get(name, "Kill")
	if err != nil {
		return err
	}
	err = r.kill()

	s.mu.Lock()
	if s.runs[name] == r {
		delete(s.runs, name)
	}
	s.mu.Unlock()
	return err
}

// closeAll marks the set shut down and kills every run in parallel
func (s *runSet) closeAll(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.runs = make(map[string]*run)
	s.mu.Unlock()

	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, r := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.kill()
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Cluster", "Shutdown", "drain topologies")
	}
}

// LocalCluster runs topologies in this process. Each run gets its own
// network memories, executor pool and mailbox; partitions are informational.
type LocalCluster struct {
	opts clusterOptions
	runs runSet
}

// NewLocalCluster creates an in-process cluster
func NewLocalCluster(opts ...Option) *LocalCluster {
	o := buildOptions(opts)
	o.logger = o.logger.With("component", "local-cluster")
	return &LocalCluster{opts: o, runs: newRunSet()}
}

// Submit implements Cluster. The run outlives ctx; use Kill to stop it.
func (c *LocalCluster) Submit(_ context.Context, name string, topo *Topology) error {
	if topo == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "LocalCluster", "Submit", "topology validation")
	}
	if err := c.runs.reserve(name); err != nil {
		return err
	}

	r, err := newRun(name, topo, runOptions{owner: true, logger: c.opts.logger, registry: c.opts.registry})
	if err != nil {
		return err
	}
	r.eng.send = r.enqueue
	r.eng.report = func(ctx context.Context, rep report) error {
		return r.eng.apply(ctx, rep)
	}

	if err := c.runs.add(r); err != nil {
		r.discard()
		return err
	}
	if err := r.start(); err != nil {
		r.discard()
		return err
	}
	return nil
}

// Await implements Cluster
func (c *LocalCluster) Await(ctx context.Context, name string) error {
	r, err := c.runs.get(name, "Await")
	if err != nil {
		return err
	}
	return r.await(ctx)
}

// Kill implements Cluster
func (c *LocalCluster) Kill(name string) error {
	return c.runs.kill(name)
}

// Shutdown implements Cluster
func (c *LocalCluster) Shutdown(ctx context.Context) error {
	return c.runs.closeAll(ctx)
}

// Health implements Cluster
func (c *LocalCluster) Health(name string) (RunStatus, error) {
	r, err := c.runs.get(name, "Health")
	if err != nil {
		return RunStatus{}, err
	}
	return r.status(), nil
}
