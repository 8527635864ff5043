package bus

import (
	"fmt"
	"time"

	"github.com/kouweizhong/eventcore/pkg/serializer"
	"github.com/nats-io/nats.go"
)

// NATSBus publishes events (and, on the same stream family, outbound
// commands) to a durable NATS JetStream stream, for deployments that need
// the bus to survive process restarts (spec §4.5's in-memory bus is the
// single-process default; this is the vendor-backed alternative named in
// spec §6's outbound bus tables).
//
// Grounded on the teacher's pkg/nats/eventbus.go (JetStream stream setup,
// subject scheme, MsgId-based dedup), narrowed to publish-only since
// subscription delivery belongs to the dispatcher, not the bus, in this
// design. PublishWithTransaction/SendWithTransaction enroll nominally: the
// JetStream write happens outside the event store's SQL transaction, so a
// rollback after a successful NATS publish cannot be undone — the same
// at-least-once, no-true-2PC trade-off the teacher's own NATS bus makes.
type NATSBus struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	streamName string
	serializer serializer.Serializer
}

// NATSConfig configures a NATSBus.
type NATSConfig struct {
	URL        string
	StreamName string
	Subjects   []string
	MaxAge     time.Duration
}

// DefaultNATSConfig mirrors the teacher's DefaultConfig.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:        nats.DefaultURL,
		StreamName: "EVENTCORE",
		Subjects:   []string{"eventcore.>"},
		MaxAge:     7 * 24 * time.Hour,
	}
}

// NewNATSBus connects to NATS, ensures the JetStream stream exists, and
// returns a bus ready to publish. s is used to serialize envelope
// payloads onto the wire.
func NewNATSBus(cfg NATSConfig, s serializer.Serializer) (*NATSBus, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("eventcore: connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("eventcore: create JetStream context: %w", err)
	}

	bus := &NATSBus{nc: nc, js: js, streamName: cfg.StreamName, serializer: s}
	if err := bus.ensureStream(cfg); err != nil {
		nc.Close()
		return nil, err
	}
	return bus, nil
}

func (b *NATSBus) ensureStream(cfg NATSConfig) error {
	streamConfig := &nats.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  cfg.Subjects,
		Retention: nats.InterestPolicy,
		MaxAge:    cfg.MaxAge,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}
	if _, err := b.js.StreamInfo(cfg.StreamName); err != nil {
		if _, err := b.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("eventcore: create JetStream stream: %w", err)
		}
	}
	return nil
}

// Publish sends one event envelope, deduplicated on MessageID.
func (b *NATSBus) Publish(envelope EventEnvelope) error {
	data, err := serializer.Bytes(b.serializer, envelope.Event)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("eventcore.events.%s.%s", envelope.Event.SourceType(), envelope.Event.EventType())
	_, err = b.js.Publish(subject, data, nats.MsgId(envelope.MessageID))
	return err
}

// PublishWithTransaction ignores tx; see the type doc for the caveat.
func (b *NATSBus) PublishWithTransaction(_ Transaction, envelope EventEnvelope) error {
	return b.Publish(envelope)
}

// Send sends one command envelope, deduplicated on MessageID.
func (b *NATSBus) Send(envelope CommandEnvelope) error {
	data, err := serializer.Bytes(b.serializer, envelope.Command)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("eventcore.commands.%s", envelope.Command.CommandType())
	_, err = b.js.Publish(subject, data, nats.MsgId(envelope.MessageID))
	return err
}

// SendWithTransaction ignores tx; see the type doc for the caveat.
func (b *NATSBus) SendWithTransaction(_ Transaction, envelope CommandEnvelope) error {
	return b.Send(envelope)
}

// Close closes the underlying NATS connection. It does not drain it
// first.
func (b *NATSBus) Close() error {
	b.nc.Close()
	return nil
}
