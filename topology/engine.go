package topology

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/rete"
)

// factSet remembers every fact a run has ingested or derived. It grows with
// the run, like the join memories.
type factSet struct {
	mu    sync.Mutex
	facts map[message.Triple]struct{}
}

func newFactSet() *factSet {
	return &factSet{facts: make(map[message.Triple]struct{})}
}

// add reports whether t was not yet in the set
func (s *factSet) add(t message.Triple) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.facts[t]; ok {
		return false
	}
	s.facts[t] = struct{}{}
	return true
}

func (s *factSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.facts)
}

// runCounters are the per-run totals reported by Health
type runCounters struct {
	ingested   atomic.Int64
	duplicates atomic.Int64
	tokens     atomic.Int64
	derived    atomic.Int64
	illFormed  atomic.Int64
	dropped    atomic.Int64
	failures   atomic.Int64
}

// engine drives envelopes through a network and tracks their ack trees. The
// substrate decides where envelopes and reports travel by setting send and
// report. Only the owning process has a sink and ingests facts.
type engine struct {
	name    string
	cfg     Config
	net     *rete.Network
	sink    Sink
	trees   *treeTracker
	facts   *factSet
	logger  *slog.Logger
	metrics *metric.Metrics

	send   func(ctx context.Context, envs []envelope) error
	report func(ctx context.Context, r report) error

	counters runCounters

	failMu  sync.Mutex
	failErr error
	cancel  context.CancelFunc
}

func newEngine(name string, cfg Config, net *rete.Network, sink Sink, logger *slog.Logger, metrics *metric.Metrics) *engine {
	return &engine{
		name:    name,
		cfg:     cfg,
		net:     net,
		sink:    sink,
		trees:   newTreeTracker(cfg.MaxSpoutPending, logger),
		facts:   newFactSet(),
		logger:  logger,
		metrics: metrics,
	}
}

// ingest opens a tree for a new fact and sends it to the matching alpha
// nodes. A fact already seen by the run is counted and acknowledged at once.
func (e *engine) ingest(ctx context.Context, t message.Triple, onDone func()) error {
	e.counters.ingested.Add(1)
	e.metrics.RecordFactIngested(e.name)

	if !e.facts.add(t) {
		e.counters.duplicates.Add(1)
		if onDone != nil {
			onDone()
		}
		return nil
	}

	tree, err := e.trees.open(ctx, onDone)
	if err != nil {
		return err
	}
	envs, roots := wrap(tree, e.net.Inject(t))
	if err := e.send(ctx, envs); err != nil {
		return err
	}
	e.trees.seal(tree, roots)
	return nil
}

// process runs one envelope through its node, forwards the children and
// reports the ack and any consequents to the tree owner
func (e *engine) process(ctx context.Context, env envelope) error {
	node := e.net.Node(env.delivery.To)
	res, err := e.net.Process(env.delivery)
	if err != nil {
		e.counters.failures.Add(1)
		var incomplete *errors.IncompleteBindingError
		if stderrors.As(err, &incomplete) {
			e.logger.Error("Terminal node failed", "rule", incomplete.Rule, "node", incomplete.Node,
				"variable", incomplete.Variable)
			e.metrics.RecordNodeFailure(e.name, incomplete.Rule)
		} else {
			e.logger.Error("Delivery failed", "node", env.delivery.To, "error", err)
		}
		res = rete.Result{}
	}

	if node != nil {
		e.counters.tokens.Add(1)
		e.metrics.RecordToken(e.name, node.Kind.String())
		if res.IllFormed > 0 && node.Terminal != nil {
			e.counters.illFormed.Add(int64(res.IllFormed))
			e.metrics.RecordIllFormed(e.name, node.Terminal.Rule, int64(res.IllFormed))
			e.logger.Debug("Skipped ill-formed consequents", "rule", node.Terminal.Rule, "count", res.IllFormed)
		}
	}
	if res.Dropped {
		e.counters.dropped.Add(1)
		e.metrics.RecordDropped(e.name)
	}

	children, childXor := wrap(env.tree, res.Next)
	rep := report{Tree: env.tree, Ack: env.id ^ childXor}
	for _, d := range res.Derived {
		rep.Derived = append(rep.Derived, derivedFact{Rule: d.Rule, Node: int(d.Node), Triple: d.Triple})
	}

	if err := e.send(ctx, children); err != nil {
		return err
	}
	return e.report(ctx, rep)
}

// apply runs on the tree owner: consequents go to the sink and novel ones are
// fed back into the same tree before the ack is recorded
func (e *engine) apply(ctx context.Context, rep report) error {
	var refeed []envelope
	var refeedXor uint64

	for _, d := range rep.Derived {
		e.counters.derived.Add(1)
		e.metrics.RecordDerived(e.name, d.Rule)
		if e.cfg.Debug {
			e.logger.Debug("Derived", "rule", d.Rule, "triple", d.Triple.String())
		}

		if err := e.sink.Write(ctx, d.Triple); err != nil {
			if errors.IsFatal(err) {
				return e.fail(errors.Wrap(err, "Engine", "apply", "sink write"))
			}
			e.logger.Warn("Sink write failed", "rule", d.Rule, "error", err)
		}

		if e.cfg.Refeed && e.facts.add(d.Triple) {
			envs, x := wrap(rep.Tree, e.net.Inject(d.Triple))
			refeed = append(refeed, envs...)
			refeedXor ^= x
		}
	}

	if err := e.send(ctx, refeed); err != nil {
		return err
	}
	e.trees.ack(rep.Tree, rep.Ack^refeedXor)
	return nil
}

// fail records the first fatal error and cancels the run
func (e *engine) fail(err error) error {
	e.failMu.Lock()
	first := e.failErr == nil
	if first {
		e.failErr = err
	}
	cancel := e.cancel
	e.failMu.Unlock()

	if first {
		e.logger.Error("Run failed", "error", err)
		if cancel != nil {
			cancel()
		}
	}
	return err
}

func (e *engine) err() error {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	return e.failErr
}

// monitor publishes memory and tree gauges until ctx is done
func (e *engine) monitor(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.metrics.RecordJoinMemory(e.name, e.net.JoinMemory())
			e.metrics.RecordOpenTrees(e.name, int64(e.trees.pending()))
		}
	}
}
