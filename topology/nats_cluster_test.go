package topology

import (
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
	"github.com/c360/semrete/pkg/retry"
	fixtures "github.com/c360/semrete/testutil"
)

func fastPublish() Option {
	return WithPublishRetry(retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	})
}

func TestNATSCluster_SingleProcess(t *testing.T) {
	mock := fixtures.NewMockNATSClient()
	cfg := DefaultConfig()
	cfg.NATS.RunID = "r1"

	sink := fixtures.NewCollectorSink()
	topo := buildStatic(t, cfg, fixtures.HumanBeingRules,
		fixtures.NewSliceSource(parseFacts(t, fixtures.HumanBeingFacts)...), sink)

	c := NewNATSCluster(mock, fastPublish())
	defer c.Shutdown(context.Background())

	require.NoError(t, c.Submit(context.Background(), "human-beings", topo))
	require.NoError(t, awaitRun(t, c, "human-beings"))

	assert.Equal(t, lines(fixtures.HumanBeingExpected()), sink.Lines())

	subjects := mock.Subjects()
	require.NotEmpty(t, subjects)
	for _, s := range subjects {
		assert.True(t, strings.HasPrefix(s, "semrete.r1.node."), s)
	}

	st, err := c.Health("human-beings")
	require.NoError(t, err)
	assert.Equal(t, "r1", st.RunID)
	assert.Equal(t, component.StateStopped, st.State)
	assert.Eventually(t, func() bool { return mock.SubscriptionCount() == 0 },
		time.Second, 5*time.Millisecond, "subscriptions end with the run")
}

func TestNATSCluster_SplitPartitions(t *testing.T) {
	mock := fixtures.NewMockNATSClient()

	workerCfg := DefaultConfig()
	workerCfg.Name = "ancestors"
	workerCfg.Workers = 2
	workerCfg.NATS.Partitions = []int{1}
	workerTopo := buildStatic(t, workerCfg, fixtures.AncestorRules, nil, nil)

	hosted := 0
	for _, n := range workerTopo.Network().Nodes() {
		if n.Partition == 1 {
			hosted++
		}
	}
	require.Positive(t, hosted, "partition 1 must host nodes for this test to be meaningful")

	worker := NewNATSCluster(mock, fastPublish())
	serveCtx, stopServe := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- worker.Serve(serveCtx, "split", workerTopo)
	}()
	require.Eventually(t, func() bool { return mock.SubscriptionCount() == hosted },
		awaitTimeout, 5*time.Millisecond)

	ownerCfg := DefaultConfig()
	ownerCfg.Workers = 2
	ownerCfg.NATS.RunID = "split"
	ownerCfg.NATS.Partitions = []int{0}
	sink := fixtures.NewCollectorSink()
	ownerTopo := buildStatic(t, ownerCfg, fixtures.AncestorRules,
		fixtures.NewSliceSource(fixtures.ParentChain(5)...), sink)

	owner := NewNATSCluster(mock, fastPublish())
	defer owner.Shutdown(context.Background())
	require.NoError(t, owner.Submit(context.Background(), "ancestors", ownerTopo))
	require.NoError(t, awaitRun(t, owner, "ancestors"))

	assert.Equal(t, lines(fixtures.AncestorClosure(5)), sink.Lines())
	assert.Positive(t, mock.GetMessageCount("semrete.split.derived"), "worker reports travel over NATS")

	st, err := worker.Health("ancestors")
	require.NoError(t, err)
	assert.Positive(t, st.Tokens)
	assert.Nil(t, st.Sink, "only the owner writes consequents")

	stopServe()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(awaitTimeout):
		t.Fatal("Serve did not return")
	}
	_, err = worker.Health("ancestors")
	assert.ErrorIs(t, err, errors.ErrTopologyNotFound)
}

func TestNATSCluster_PublishFailureFailsRun(t *testing.T) {
	mock := fixtures.NewMockNATSClient()
	mock.FailPublish(stderrors.New("nats down"))

	sink := fixtures.NewCollectorSink()
	topo := buildStatic(t, DefaultConfig(), fixtures.AncestorRules,
		fixtures.NewSliceSource(fixtures.ParentChain(2)...), sink)

	c := NewNATSCluster(mock, fastPublish())
	defer c.Shutdown(context.Background())
	require.NoError(t, c.Submit(context.Background(), "down", topo))

	err := awaitRun(t, c, "down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats down")

	st, err := c.Health("down")
	require.NoError(t, err)
	assert.Equal(t, component.StateFailed, st.State)
	assert.True(t, sink.Closed())
}

func TestNATSCluster_JetStreamNeedsStreamTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NATS.JetStream = true

	sink := fixtures.NewCollectorSink()
	topo := buildStatic(t, cfg, fixtures.AncestorRules, fixtures.NewSliceSource(), sink)

	c := NewNATSCluster(fixtures.NewMockNATSClient())
	err := c.Submit(context.Background(), "js", topo)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.True(t, sink.Closed())

	_, err = c.Health("js")
	assert.ErrorIs(t, err, errors.ErrTopologyNotFound)
}

func TestNATSCluster_ServeValidation(t *testing.T) {
	c := NewNATSCluster(fixtures.NewMockNATSClient())
	assert.True(t, errors.IsInvalid(c.Serve(context.Background(), "run", nil)))

	topo := buildStatic(t, DefaultConfig(), fixtures.AncestorRules, nil, nil)
	assert.True(t, errors.IsInvalid(c.Serve(context.Background(), "", topo)))
}

// streamMsg is one delivered stream fact
type streamMsg struct {
	jetstream.Msg
	data  []byte
	acked *atomic.Int32
}

func (m streamMsg) Data() []byte { return m.data }
func (m streamMsg) Ack() error   { m.acked.Add(1); return nil }
func (m streamMsg) Term() error  { return nil }

// backlogStream is a StreamTransport whose consumer first delivers facts left
// unacked by an earlier run, then this run's facts in publish order with a delay
type backlogStream struct {
	*fixtures.MockNATSClient
	backlog [][]byte
	delay   time.Duration
	queue   chan []byte
	acked   atomic.Int32
}

func newBacklogStream(backlog ...[]byte) *backlogStream {
	return &backlogStream{
		MockNATSClient: fixtures.NewMockNATSClient(),
		backlog:        backlog,
		delay:          20 * time.Millisecond,
		queue:          make(chan []byte, 64),
	}
}

func (s *backlogStream) CreateStream(context.Context, jetstream.StreamConfig) (jetstream.Stream, error) {
	return nil, nil
}

func (s *backlogStream) DeleteStream(context.Context, string) error { return nil }

func (s *backlogStream) PublishToStream(_ context.Context, _ string, data []byte) error {
	s.queue <- data
	return nil
}

func (s *backlogStream) ConsumeStream(
	ctx context.Context, _ string, _ jetstream.ConsumerConfig, handler func(jetstream.Msg),
) error {
	go func() {
		backlog := s.backlog
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-s.queue:
				for _, b := range backlog {
					handler(streamMsg{data: b, acked: &s.acked})
				}
				backlog = nil

				select {
				case <-ctx.Done():
					return
				case <-time.After(s.delay):
				}
				handler(streamMsg{data: data, acked: &s.acked})
			}
		}
	}()
	return nil
}

func TestNATSCluster_JetStreamBacklogDoesNotEndDrainEarly(t *testing.T) {
	leftover, err := encodeStreamFact(streamFact{
		Origin: "earlier-instance",
		Seq:    1,
		Triple: message.NewTriple(message.IRI("http://example.com/old"),
			message.IRI("http://example.com/note"), message.Literal("left over")),
	})
	require.NoError(t, err)
	st := newBacklogStream(leftover)

	cfg := DefaultConfig()
	cfg.NATS.RunID = "js"
	cfg.NATS.JetStream = true

	sink := fixtures.NewCollectorSink()
	topo := buildStatic(t, cfg, fixtures.AncestorRules,
		fixtures.NewSliceSource(fixtures.ParentChain(5)...), sink)

	c := NewNATSCluster(st, fastPublish())
	defer c.Shutdown(context.Background())
	require.NoError(t, c.Submit(context.Background(), "backlog", topo))
	require.NoError(t, awaitRun(t, c, "backlog"))

	assert.Equal(t, lines(fixtures.AncestorClosure(5)), sink.Lines())
	assert.Eventually(t, func() bool { return st.acked.Load() == 6 },
		time.Second, 5*time.Millisecond, "every fact, leftover included, is acked")
}

func TestStreamHolds_ReleaseOncePerOwnFact(t *testing.T) {
	h := newStreamHolds()
	first, second := h.add(), h.add()

	assert.False(t, h.take("other-instance", first), "facts from another instance hold nothing")
	assert.True(t, h.take(h.origin, first))
	assert.False(t, h.take(h.origin, first), "redelivery releases nothing")
	assert.False(t, h.take(h.origin, 99))
	assert.True(t, h.take(h.origin, second))
}
