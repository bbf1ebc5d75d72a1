package topology

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/pkg/retry"
)

// Transport is the NATS surface the cluster needs. *natsclient.Client
// satisfies it.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// StreamTransport adds the JetStream calls used for durable fact ingestion
type StreamTransport interface {
	Transport
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	DeleteStream(ctx context.Context, name string) error
	PublishToStream(ctx context.Context, subject string, data []byte) error
	ConsumeStream(ctx context.Context, stream string, cfg jetstream.ConsumerConfig, handler func(jetstream.Msg)) error
}

// NATSCluster distributes node work over NATS subjects. The submitting
// process owns the fact source, the sink, the fact set and the ack trees;
// every process, including the submitter, executes the nodes of the
// partitions it hosts. Processes serving the same run must host disjoint
// partitions and build the topology from the same rules and worker count.
type NATSCluster struct {
	transport Transport
	opts      clusterOptions
	runs      runSet
}

// NewNATSCluster creates a cluster on transport. The transport stays owned
// by the caller.
func NewNATSCluster(transport Transport, opts ...Option) *NATSCluster {
	o := buildOptions(opts)
	o.logger = o.logger.With("component", "nats-cluster")
	return &NATSCluster{
		transport: transport,
		opts:      o,
		runs:      newRunSet(),
	}
}

// Submit implements Cluster. The run ID is taken from the topology config or
// generated; remote workers joining the run must use the same ID.
func (c *NATSCluster) Submit(ctx context.Context, name string, topo *Topology) error {
	if topo == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NATSCluster", "Submit", "topology validation")
	}
	if err := c.runs.reserve(name); err != nil {
		return err
	}

	runID := topo.cfg.NATS.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := c.launch(ctx, name, runID, topo, true); err != nil {
		return err
	}
	c.opts.logger.Info("Topology submitted", "topology", name, "run", runID)
	return nil
}

// Serve hosts the configured partitions of a run owned by another process.
// It blocks until ctx is done, then stops processing.
func (c *NATSCluster) Serve(ctx context.Context, runID string, topo *Topology) error {
	if topo == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NATSCluster", "Serve", "topology validation")
	}
	if runID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NATSCluster", "Serve", "run id validation")
	}
	name := topo.cfg.Name
	if err := c.runs.reserve(name); err != nil {
		return err
	}

	if err := c.launch(ctx, name, runID, topo, false); err != nil {
		return err
	}
	c.opts.logger.Info("Serving partitions", "topology", name, "run", runID,
		"partitions", topo.cfg.NATS.Partitions)

	<-ctx.Done()
	return c.runs.kill(name)
}

func (c *NATSCluster) launch(ctx context.Context, name, runID string, topo *Topology, owner bool) error {
	r, err := newRun(name, topo, runOptions{
		runID:    runID,
		owner:    owner,
		logger:   c.opts.logger,
		registry: c.opts.registry,
	})
	if err != nil {
		return err
	}

	subj := subjects{prefix: r.cfg.NATS.SubjectPrefix, run: runID}
	r.eng.send = func(ctx context.Context, envs []envelope) error {
		return c.sendEnvelopes(ctx, subj, envs)
	}
	if owner {
		r.eng.report = func(ctx context.Context, rep report) error {
			return r.eng.apply(ctx, rep)
		}
	} else {
		r.eng.report = func(ctx context.Context, rep report) error {
			data, err := encodeReport(rep)
			if err != nil {
				return errors.WrapFatal(err, "NATSCluster", "report", "encode report")
			}
			return c.publishRetry(ctx, subj.derived(), data)
		}
	}

	if err := c.subscribe(r, subj); err != nil {
		r.discard()
		return err
	}
	if owner && r.cfg.NATS.JetStream {
		if err := c.streamIngest(ctx, r, subj); err != nil {
			r.discard()
			return err
		}
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

// subscribe routes hosted node subjects, and on the owner the derived
// subject, into the run's mailbox. Subscriptions end with the run.
func (c *NATSCluster) subscribe(r *run, subj subjects) error {
	onEnvelope := func(_ context.Context, data []byte) {
		env, err := decodeEnvelope(data)
		if err != nil {
			r.logger.Warn("Dropping undecodable envelope", "error", err)
			return
		}
		r.box.push(work{env: &env})
	}

	if len(r.cfg.NATS.Partitions) == 0 {
		if err := c.transport.Subscribe(r.ctx, subj.prefix+"."+subj.run+".node.>", onEnvelope); err != nil {
			return errors.Wrap(err, "NATSCluster", "subscribe", "subscribe to nodes")
		}
	} else {
		for _, n := range r.eng.net.Nodes() {
			if !r.cfg.hosts(n.Partition) {
				continue
			}
			if err := c.transport.Subscribe(r.ctx, subj.node(n.ID), onEnvelope); err != nil {
				return errors.Wrap(err, "NATSCluster", "subscribe", fmt.Sprintf("subscribe to node %d", n.ID))
			}
		}
	}

	if !r.owner {
		return nil
	}
	err := c.transport.Subscribe(r.ctx, subj.derived(), func(_ context.Context, data []byte) {
		rep, err := decodeReport(data)
		if err != nil {
			r.logger.Warn("Dropping undecodable report", "error", err)
			return
		}
		r.box.push(work{rep: &rep})
	})
	if err != nil {
		return errors.Wrap(err, "NATSCluster", "subscribe", "subscribe to derived")
	}
	return nil
}

// streamHolds tracks the facts this run instance published and the consumer
// has not delivered yet. Each one releases its tracker hold exactly once, on
// its first delivery.
type streamHolds struct {
	origin string

	mu      sync.Mutex
	next    uint64
	waiting map[uint64]struct{}
}

func newStreamHolds() *streamHolds {
	return &streamHolds{origin: uuid.NewString(), waiting: make(map[uint64]struct{})}
}

// add registers a fact about to be published and returns its sequence
func (h *streamHolds) add() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.waiting[h.next] = struct{}{}
	return h.next
}

// take reports whether the fact is one of ours still waiting, and marks it seen
func (h *streamHolds) take(origin string, seq uint64) bool {
	if origin != h.origin {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.waiting[seq]; !ok {
		return false
	}
	delete(h.waiting, seq)
	return true
}

// streamIngest routes source facts through a JetStream stream. A fact is
// acknowledged when its tree completes, so facts left unacked by a crash are
// redelivered to the next run with the same run ID. Such facts are processed
// but do not count toward the facts this run waits for before draining.
func (c *NATSCluster) streamIngest(ctx context.Context, r *run, subj subjects) error {
	st, ok := c.transport.(StreamTransport)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: transport has no JetStream support", errors.ErrInvalidConfig),
			"NATSCluster", "streamIngest", "check transport")
	}

	stream := r.cfg.NATS.Stream
	if stream == "" {
		stream = strings.ToUpper(metricName(subj.prefix + "_" + subj.run))
	}
	if _, err := st.CreateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{subj.facts()},
		Storage:  jetstream.FileStorage,
	}); err != nil {
		return errors.Wrap(err, "NATSCluster", "streamIngest", "create fact stream")
	}

	consumer := jetstream.ConsumerConfig{
		Durable:       "ingest-" + metricName(r.name),
		FilterSubject: subj.facts(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if r.cfg.MaxSpoutPending > 0 {
		consumer.MaxAckPending = r.cfg.MaxSpoutPending
	}

	holds := newStreamHolds()
	err := st.ConsumeStream(r.ctx, stream, consumer, func(msg jetstream.Msg) {
		f, err := decodeStreamFact(msg.Data())
		if err != nil {
			r.logger.Warn("Terminating undecodable stream fact", "error", err)
			_ = msg.Term()
			return
		}
		if holds.take(f.Origin, f.Seq) {
			defer r.eng.trees.release()
		} else {
			r.logger.Debug("Ingesting redelivered stream fact", "origin", f.Origin, "seq", f.Seq)
		}

		ack := func() {
			if err := msg.Ack(); err != nil {
				r.logger.Warn("Fact ack failed", "error", err)
			}
		}
		if err := r.eng.ingest(r.ctx, f.Triple, ack); err != nil && r.ctx.Err() == nil {
			r.eng.fail(err)
		}
	})
	if err != nil {
		return errors.Wrap(err, "NATSCluster", "streamIngest", "consume fact stream")
	}

	r.emit = func(ctx context.Context, t message.Triple) error {
		seq := holds.add()
		data, err := encodeStreamFact(streamFact{Origin: holds.origin, Seq: seq, Triple: t})
		if err != nil {
			holds.take(holds.origin, seq)
			return errors.WrapInvalid(err, "NATSCluster", "emit", "encode stream fact")
		}
		r.eng.trees.hold()
		if err := c.publishStream(ctx, st, subj.facts(), data); err != nil {
			if holds.take(holds.origin, seq) {
				r.eng.trees.release()
			}
			return err
		}
		return nil
	}
	return nil
}

func (c *NATSCluster) sendEnvelopes(ctx context.Context, subj subjects, envs []envelope) error {
	for _, env := range envs {
		data, err := encodeEnvelope(env)
		if err != nil {
			return errors.WrapFatal(err, "NATSCluster", "send", "encode envelope")
		}
		if err := c.publishRetry(ctx, subj.node(env.delivery.To), data); err != nil {
			return err
		}
	}
	return nil
}

func (c *NATSCluster) publishRetry(ctx context.Context, subject string, data []byte) error {
	err := retry.Do(ctx, c.opts.publish, func() error {
		return c.transport.Publish(ctx, subject, data)
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSCluster", "publish", fmt.Sprintf("publish to %s", subject))
	}
	return nil
}

func (c *NATSCluster) publishStream(ctx context.Context, st StreamTransport, subject string, data []byte) error {
	err := retry.Do(ctx, c.opts.publish, func() error {
		return st.PublishToStream(ctx, subject, data)
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSCluster", "publishStream", fmt.Sprintf("publish to %s", subject))
	}
	return nil
}

// Await implements Cluster
func (c *NATSCluster) Await(ctx context.Context, name string) error {
	r, err := c.runs.get(name, "Await")
	if err != nil {
		return err
	}
	return r.await(ctx)
}

// Kill implements Cluster
func (c *NATSCluster) Kill(name string) error {
	return c.runs.kill(name)
}

// Shutdown implements Cluster. The transport is left open.
func (c *NATSCluster) Shutdown(ctx context.Context) error {
	return c.runs.closeAll(ctx)
}

// Health implements Cluster
func (c *NATSCluster) Health(name string) (RunStatus, error) {
	r, err := c.runs.get(name, "Health")
	if err != nil {
		return RunStatus{}, err
	}
	return r.status(), nil
}
