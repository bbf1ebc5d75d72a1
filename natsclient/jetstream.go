package natsclient

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semrete/errors"
)

// JetStream returns the JetStream context
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.js == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "JetStream", "get JetStream context")
	}
	return m.js, nil
}

func (m *Client) ready() (jetstream.JetStream, error) {
	if m.closed.Load() {
		return nil, ErrClientClosed
	}
	if m.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	if m.Status() != StatusConnected {
		return nil, ErrNotConnected
	}
	return m.JetStream()
}

// CreateStream creates a stream or updates an existing one with the same name
func (m *Client) CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	js, err := m.ready()
	if err != nil {
		return nil, err
	}

	stream, err := js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "CreateStream", fmt.Sprintf("create stream %s", cfg.Name))
	}
	m.resetCircuit()
	return stream, nil
}

// DeleteStream removes a stream and its messages
func (m *Client) DeleteStream(ctx context.Context, name string) error {
	js, err := m.ready()
	if err != nil {
		return err
	}
	if err := js.DeleteStream(ctx, name); err != nil {
		return errors.Wrap(err, "Client", "DeleteStream", fmt.Sprintf("delete stream %s", name))
	}
	return nil
}

// PublishToStream publishes to a JetStream subject and waits for the stream ack
func (m *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	js, err := m.ready()
	if err != nil {
		return err
	}

	if _, err := js.Publish(ctx, subject, data); err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "PublishToStream", fmt.Sprintf("publish to %s", subject))
	}
	m.resetCircuit()
	return nil
}

// ConsumeStream creates or updates a consumer on streamName and delivers its
// messages to handler. The handler owns acknowledgement. Consumption stops
// when ctx is cancelled or the client is closed.
func (m *Client) ConsumeStream(
	ctx context.Context, streamName string, cfg jetstream.ConsumerConfig, handler func(jetstream.Msg),
) error {
	js, err := m.ready()
	if err != nil {
		return err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, cfg)
	if err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "ConsumeStream", fmt.Sprintf("create consumer on %s", streamName))
	}

	cc, err := consumer.Consume(handler)
	if err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "ConsumeStream", "start consuming")
	}

	key := fmt.Sprintf("%s:%s:%s", streamName, cfg.Durable, cfg.FilterSubject)

	m.consumersMu.Lock()
	if m.closed.Load() {
		m.consumersMu.Unlock()
		cc.Stop()
		return ErrClientClosed
	}
	if existing, ok := m.consumers[key]; ok {
		existing.Stop()
		m.logger.Debug("Replaced existing consumer", "consumer", key)
	}
	m.consumers[key] = cc
	m.consumersMu.Unlock()

	context.AfterFunc(ctx, func() {
		m.consumersMu.Lock()
		if m.consumers[key] == cc {
			delete(m.consumers, key)
		}
		m.consumersMu.Unlock()
		cc.Stop()
	})

	m.resetCircuit()
	return nil
}
