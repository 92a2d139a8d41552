package eventbus

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"Distributed-Order-Saga/pkg/metrics"
)

// headerEventKey carries the partition key (orderId) on every message.
const headerEventKey = "Event-Key"

// JetStreamConfig tunes the durable consumers created by Subscribe.
type JetStreamConfig struct {
	AckWait    time.Duration // Max time a delivery may stay unacked before redelivery.
	MaxDeliver int           // Max delivery attempts per message.
	NakDelay   time.Duration // Delay before a nak'd message is redelivered.
}

// DefaultJetStreamConfig mirrors the worker defaults: 30s ack wait, 3
// deliveries, 5s nak backoff.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		AckWait:    30 * time.Second,
		MaxDeliver: 3,
		NakDelay:   5 * time.Second,
	}
}

// JetStreamBus implements Bus and Subscriber on NATS JetStream. Topics are
// JetStream subjects; the token before the first dot names the stream.
type JetStreamBus struct {
	js  nats.JetStreamContext
	log *logrus.Entry
	cfg JetStreamConfig
}

// NewJetStreamBus wraps an existing JetStream context. Zero config fields
// fall back to DefaultJetStreamConfig values.
func NewJetStreamBus(js nats.JetStreamContext, log *logrus.Entry, cfg JetStreamConfig) *JetStreamBus {
	def := DefaultJetStreamConfig()
	if cfg.AckWait == 0 {
		cfg.AckWait = def.AckWait
	}
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = def.MaxDeliver
	}
	if cfg.NakDelay == 0 {
		cfg.NakDelay = def.NakDelay
	}
	return &JetStreamBus{js: js, log: log, cfg: cfg}
}

// streamOf maps a topic like "ORDERS.created" to its stream name "ORDERS".
func streamOf(topic string) string {
	if i := strings.IndexByte(topic, '.'); i > 0 {
		return topic[:i]
	}
	return topic
}

// durableName builds a JetStream-legal durable consumer name (no dots) for a
// group's subscription to one topic.
func durableName(group, topic string) string {
	return group + "_" + strings.ReplaceAll(topic, ".", "_")
}

// EnsureStream creates the file-backed stream for the given name if it does
// not exist yet. Both binaries call this on startup for the streams they
// publish to or consume from.
func (b *JetStreamBus) EnsureStream(name string) error {
	_, err := b.js.StreamInfo(name)
	if err == nil {
		b.log.Infof("Stream %s already exists.", name)
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	b.log.Infof("Stream %s not found, creating...", name)
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{name + ".*"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return err
	}
	b.log.Infof("Stream %s created", name)
	return nil
}

// Publish sends one event to the topic's stream with the partition key in a
// header. The returned error is strictly observational for the caller: the
// triggering command has already committed, which is why publishing goes
// through the outbox relay.
func (b *JetStreamBus) Publish(ctx context.Context, topic, key string, data []byte) error {
	msg := &nats.Msg{
		Subject: topic,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(headerEventKey, key)

	if _, err := b.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return err
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Subscribe binds a durable queue-group consumer to the topic. Each message
// goes to exactly one group member; handler failure naks the delivery so
// JetStream redelivers it after NakDelay, up to MaxDeliver attempts.
func (b *JetStreamBus) Subscribe(topic, group string, h Handler) (Subscription, error) {
	stream := streamOf(topic)
	durable := durableName(group, topic)

	consumerConfig := &nats.ConsumerConfig{
		Durable:        durable,
		Name:           durable,
		Description:    "Durable consumer for group " + group,
		FilterSubject:  topic,
		DeliverSubject: durable + "_INBOX", // Important for queue groups with durable consumers
		DeliverGroup:   group,
		AckPolicy:      nats.AckExplicitPolicy,
		AckWait:        b.cfg.AckWait,
		MaxDeliver:     b.cfg.MaxDeliver,
		ReplayPolicy:   nats.ReplayInstantPolicy,
	}

	_, err := b.js.ConsumerInfo(stream, durable)
	if err != nil {
		if !errors.Is(err, nats.ErrConsumerNotFound) {
			return nil, err
		}
		b.log.Infof("Consumer %s not found, creating...", durable)
		if _, addErr := b.js.AddConsumer(stream, consumerConfig); addErr != nil {
			return nil, addErr
		}
		b.log.Infof("Durable consumer %s created", durable)
	} else {
		b.log.Infof("Durable consumer %s already exists.", durable)
	}

	sub, err := b.js.QueueSubscribe(topic, group, func(msg *nats.Msg) {
		b.dispatch(topic, h, msg)
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.BindStream(stream),
	)
	if err != nil {
		return nil, err
	}
	b.log.Infof("Subscribed to subject '%s' with queue group '%s', durable consumer '%s'", topic, group, durable)
	return &jetStreamSubscription{sub: sub, log: b.log}, nil
}

// dispatch runs the handler for one delivery and translates its result into
// the JetStream ack/nak/term protocol.
func (b *JetStreamBus) dispatch(topic string, h Handler, msg *nats.Msg) {
	numDelivered := 1
	if meta, err := msg.Metadata(); err == nil {
		numDelivered = int(meta.NumDelivered)
	}

	l := b.log.WithFields(logrus.Fields{
		"subject":       msg.Subject,
		"event_key":     msg.Header.Get(headerEventKey),
		"num_delivered": numDelivered,
	})
	l.Info("Received a message")

	err := h(context.Background(), Message{
		Topic:        topic,
		Key:          msg.Header.Get(headerEventKey),
		Data:         msg.Data,
		NumDelivered: numDelivered,
	})

	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			// If ACK fails, the message will be redelivered per AckWait/MaxDeliver.
			l.WithError(ackErr).Error("Error sending ACK")
		}
		metrics.EventsConsumed.WithLabelValues(topic, "ack").Inc()
	case errors.Is(err, ErrDrop):
		l.WithError(err).Error("Unprocessable message, terminating delivery")
		if termErr := msg.Term(); termErr != nil {
			l.WithError(termErr).Error("Error sending Term")
		}
		metrics.EventsConsumed.WithLabelValues(topic, "term").Inc()
	default:
		l.WithError(err).Warn("Handler failed, requesting redelivery")
		if nakErr := msg.NakWithDelay(b.cfg.NakDelay); nakErr != nil {
			l.WithError(nakErr).Error("Error sending NakWithDelay")
		}
		metrics.EventsConsumed.WithLabelValues(topic, "nak").Inc()
	}
}

type jetStreamSubscription struct {
	sub *nats.Subscription
	log *logrus.Entry
}

func (s *jetStreamSubscription) Unsubscribe() error {
	if s.sub == nil || !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}
