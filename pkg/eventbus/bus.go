// Package eventbus provides the topic-addressed, partition-keyed,
// at-least-once publish/subscribe primitive the process owners communicate
// through. The production implementation runs on NATS JetStream; an
// in-process implementation with the same delivery contract backs tests and
// single-process runs.
package eventbus

import (
	"context"
	"errors"
)

// ErrDrop tells the bus that a message is a poison pill (e.g. it cannot be
// unmarshalled) and must not be redelivered. Any other handler error results
// in redelivery.
var ErrDrop = errors.New("eventbus: drop message")

// Message is one delivery. NumDelivered starts at 1 and grows on redelivery;
// handlers must be idempotent because the same message can arrive more than
// once even without an error (at-least-once semantics).
type Message struct {
	Topic        string
	Key          string
	Data         []byte
	NumDelivered int
}

// Handler processes one delivery. Returning nil acknowledges the message.
// Returning ErrDrop (possibly wrapped) terminates it. Anything else asks the
// bus to redeliver.
type Handler func(ctx context.Context, msg Message) error

// Bus is the publish side of the abstraction.
//
// Publish is at-least-once: a returned error means the event may or may not
// have reached the bus, and the caller's aggregate write has already
// committed either way. That decoupling is why commands go through the
// outbox relay instead of publishing directly.
type Bus interface {
	Publish(ctx context.Context, topic, key string, data []byte) error
}

// Subscriber attaches a competing-consumers group to a topic: each message is
// delivered to exactly one member of the group, per-key order is preserved
// within the group, and failed deliveries are redelivered.
type Subscriber interface {
	Subscribe(topic, group string, h Handler) (Subscription, error)
}

// Subscription is a handle for detaching a consumer during shutdown.
type Subscription interface {
	Unsubscribe() error
}
