package topology

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/pkg/worker"
)

const (
	poolStopTimeout  = 5 * time.Second
	sinkCloseTimeout = 10 * time.Second
)

// work is one executor item: an envelope to process or a report to apply
type work struct {
	env *envelope
	rep *report
}

// RunStatus is a snapshot of one submitted topology
type RunStatus struct {
	Name     string          `json:"name"`
	RunID    string          `json:"run_id,omitempty"`
	State    component.State `json:"state"`
	Error    string          `json:"error,omitempty"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished,omitempty"`

	FactsIngested  int64 `json:"facts_ingested"`
	DuplicateFacts int64 `json:"duplicate_facts"`
	Tokens         int64 `json:"tokens"`
	Derived        int64 `json:"derived"`
	IllFormed      int64 `json:"ill_formed"`
	Dropped        int64 `json:"dropped"`
	NodeFailures   int64 `json:"node_failures"`
	OpenTrees      int   `json:"open_trees"`
	KnownFacts     int   `json:"known_facts"`
	JoinMemory     int   `json:"join_memory"`
	Queued         int   `json:"queued"`

	Source *component.HealthStatus `json:"source,omitempty"`
	Sink   *component.HealthStatus `json:"sink,omitempty"`
}

// runOptions carries what the cluster hands to every run
type runOptions struct {
	runID    string
	owner    bool
	logger   *slog.Logger
	registry *metric.MetricsRegistry
}

// run is one live submission of a topology
type run struct {
	name   string
	runID  string
	cfg    Config
	owner  bool
	source FactSource
	sink   Sink
	eng    *engine
	box    *mailbox[work]
	pool   *worker.Pool[work]
	logger *slog.Logger

	// emit hands a source fact to the engine; JetStream ingestion replaces it
	emit component.EmitFunc
	// cleanup runs at the end of teardown
	cleanup []func()

	ctx        context.Context
	cancel     context.CancelFunc
	ingestCtx  context.Context
	stopIngest context.CancelFunc
	done       chan struct{}

	mu       sync.Mutex
	state    component.State
	err      error
	killed   bool
	started  time.Time
	finished time.Time
}

func newRun(name string, topo *Topology, opts runOptions) (*run, error) {
	cfg := topo.cfg
	cfg.Name = name

	net, err := topo.newNetwork()
	if err != nil {
		return nil, err
	}

	logger := opts.logger.With("topology", name)
	if opts.runID != "" {
		logger = logger.With("run", opts.runID)
	}
	var metrics *metric.Metrics
	if opts.registry != nil {
		metrics = opts.registry.CoreMetrics()
	}

	r := &run{
		name:   name,
		runID:  opts.runID,
		cfg:    cfg,
		owner:  opts.owner,
		box:    newMailbox[work](),
		logger: logger,
		done:   make(chan struct{}),
		state:  component.StateCreated,
	}

	if opts.owner {
		if r.source, err = topo.builder.Source(cfg); err != nil {
			return nil, errors.Wrap(err, "Topology", "Submit", "create source")
		}
		if r.sink, err = topo.builder.Sink(cfg); err != nil {
			return nil, errors.Wrap(err, "Topology", "Submit", "create sink")
		}
	}

	r.eng = newEngine(name, cfg, net, r.sink, logger, metrics)
	r.emit = func(ctx context.Context, t message.Triple) error {
		return r.eng.ingest(ctx, t, nil)
	}

	var poolOpts []worker.Option[work]
	if opts.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[work](opts.registry, "semrete_executor_"+metricName(name)))
	}
	r.pool = worker.NewPool(cfg.Parallelism, cfg.QueueSize, r.execute, poolOpts...)

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.eng.cancel = r.cancel
	r.ingestCtx, r.stopIngest = context.WithCancel(r.ctx)
	return r, nil
}

// execute is the executor's processor
func (r *run) execute(ctx context.Context, w work) error {
	var err error
	switch {
	case w.env != nil:
		err = r.eng.process(ctx, *w.env)
	case w.rep != nil:
		err = r.eng.apply(ctx, *w.rep)
	}
	if err != nil && ctx.Err() == nil {
		r.eng.fail(err)
	}
	return err
}

// enqueue hands envelopes to the local executor
func (r *run) enqueue(_ context.Context, envs []envelope) error {
	if len(envs) == 0 {
		return nil
	}
	items := make([]work, len(envs))
	for i := range envs {
		items[i] = work{env: &envs[i]}
	}
	if !r.box.push(items...) {
		return errors.WrapTransient(errors.ErrShuttingDown, "Run", "enqueue", "queue envelopes")
	}
	return nil
}

// enqueueReport hands a report to the local executor
func (r *run) enqueueReport(_ context.Context, rep report) error {
	if !r.box.push(work{rep: &rep}) {
		return errors.WrapTransient(errors.ErrShuttingDown, "Run", "enqueueReport", "queue report")
	}
	return nil
}

// start launches the executor, the pump and, on the owner, ingestion
func (r *run) start() error {
	if err := r.pool.Start(r.ctx); err != nil {
		return errors.Wrap(err, "Run", "start", "start executor")
	}

	r.mu.Lock()
	r.state = component.StateStarted
	r.started = time.Now()
	r.mu.Unlock()
	r.recordStatus()

	g := new(errgroup.Group)
	g.Go(r.pump)
	g.Go(func() error {
		r.eng.monitor(r.ctx)
		return nil
	})
	g.Go(r.drive)

	go func() {
		_ = g.Wait()
		close(r.done)
	}()

	r.logger.Info("Topology started", "workers", r.cfg.Workers, "parallelism", r.cfg.Parallelism,
		"max_spout_pending", r.cfg.MaxSpoutPending, "owner", r.owner)
	return nil
}

// pump moves mailbox items into the executor, blocking on a full queue
func (r *run) pump() error {
	for {
		w, ok := r.box.pop(r.ctx)
		if !ok {
			return nil
		}
		if err := r.pool.SubmitWait(r.ctx, w); err != nil {
			return nil
		}
	}
}

// drive ingests the source, waits for every open tree and tears the run down
func (r *run) drive() error {
	defer r.teardown()

	if !r.owner {
		<-r.ingestCtx.Done()
		return nil
	}

	if err := r.source.Run(r.ingestCtx, r.emit); err != nil && r.ingestCtx.Err() == nil {
		r.eng.fail(errors.Wrap(err, "Run", "drive", "read facts"))
		return nil
	}
	r.logger.Debug("Source finished, draining", "open_trees", r.eng.trees.pending())

	if err := r.drain(); err != nil {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
	}
	return nil
}

// drain waits for open trees. Without a kill it waits as long as the run
// lives; after Kill it waits at most DrainTimeout.
func (r *run) drain() error {
	waitCtx, cancelWait := context.WithCancel(r.ctx)
	defer cancelWait()

	stopTimer := make(chan struct{})
	defer close(stopTimer)
	go func() {
		select {
		case <-r.ingestCtx.Done():
		case <-stopTimer:
			return
		}
		timer := time.NewTimer(r.cfg.DrainTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancelWait()
		case <-stopTimer:
		}
	}()

	if err := r.eng.trees.waitIdle(waitCtx); err != nil {
		if r.ctx.Err() != nil {
			return nil
		}
		r.logger.Warn("Drain timed out", "open_trees", r.eng.trees.pending(), "timeout", r.cfg.DrainTimeout)
		return errors.WrapTransient(errors.ErrDrainTimeout, "Run", "drain", "wait for open trees")
	}
	return nil
}

func (r *run) teardown() {
	r.cancel()
	r.box.close()
	if err := r.pool.Stop(poolStopTimeout); err != nil {
		r.logger.Warn("Executor did not stop in time", "error", err)
	}
	r.pool.Unregister()

	var closeErr error
	if r.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkCloseTimeout)
		closeErr = r.sink.Close(ctx)
		cancel()
	}

	failErr := r.eng.err()
	r.mu.Lock()
	r.finished = time.Now()
	switch {
	case failErr != nil:
		r.state = component.StateFailed
		r.err = failErr
	case closeErr != nil:
		r.state = component.StateFailed
		r.err = errors.Wrap(closeErr, "Run", "teardown", "close sink")
	default:
		r.state = component.StateStopped
	}
	state, err := r.state, r.err
	r.mu.Unlock()
	r.recordStatus()

	for _, fn := range r.cleanup {
		fn()
	}

	if err != nil && state == component.StateFailed {
		r.logger.Error("Topology failed", "error", err)
		return
	}
	c := &r.eng.counters
	r.logger.Info("Topology finished", "facts", c.ingested.Load(), "derived", c.derived.Load(),
		"ill_formed", c.illFormed.Load(), "node_failures", c.failures.Load())
}

// discard releases a run whose goroutines were never launched
func (r *run) discard() {
	r.cancel()
	r.mu.Lock()
	r.state = component.StateFailed
	r.mu.Unlock()
	close(r.done)
	if r.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkCloseTimeout)
		defer cancel()
		if err := r.sink.Close(ctx); err != nil {
			r.logger.Warn("Closing unused sink failed", "error", err)
		}
	}
}

// kill stops ingestion and blocks until the run has drained and torn down
func (r *run) kill() error {
	r.mu.Lock()
	r.killed = true
	r.mu.Unlock()

	r.stopIngest()
	<-r.done
	return r.result()
}

// await blocks until the run finishes or ctx is done
func (r *run) await(ctx context.Context) error {
	select {
	case <-r.done:
		return r.result()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finishedRun reports whether teardown has completed
func (r *run) finishedRun() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *run) result() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil && (r.state == component.StateFailed || r.killed) {
		return r.err
	}
	return nil
}

func (r *run) recordStatus() {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()
	r.eng.metrics.RecordTopologyStatus(r.name, int(state))
}

func (r *run) status() RunStatus {
	r.mu.Lock()
	st := RunStatus{
		Name:     r.name,
		RunID:    r.runID,
		State:    r.state,
		Started:  r.started,
		Finished: r.finished,
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	r.mu.Unlock()

	c := &r.eng.counters
	st.FactsIngested = c.ingested.Load()
	st.DuplicateFacts = c.duplicates.Load()
	st.Tokens = c.tokens.Load()
	st.Derived = c.derived.Load()
	st.IllFormed = c.illFormed.Load()
	st.Dropped = c.dropped.Load()
	st.NodeFailures = c.failures.Load()
	st.OpenTrees = r.eng.trees.pending()
	st.KnownFacts = r.eng.facts.len()
	st.JoinMemory = r.eng.net.JoinMemory()
	st.Queued = r.box.len()

	if r.source != nil {
		h := r.source.Health()
		st.Source = &h
	}
	if r.sink != nil {
		h := r.sink.Health()
		st.Sink = &h
	}
	return st
}

// metricName turns a topology name into a Prometheus-safe token
func metricName(name string) string {
	var sb strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			sb.WriteRune(c)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
