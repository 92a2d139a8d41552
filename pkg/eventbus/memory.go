package eventbus

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
)

// MemoryBus is an in-process Bus/Subscriber with the same delivery contract
// as the JetStream bus: competing consumers within a group, per-key ordering
// (a key is pinned to one group member), and redelivery of failed handler
// calls up to maxDeliver attempts. It backs tests and single-process runs;
// it does not survive restarts.
type MemoryBus struct {
	mu         sync.RWMutex
	topics     map[string]map[string]*memoryGroup
	maxDeliver int
	closed     bool

	inflight sync.WaitGroup // published deliveries not yet fully handled
	workers  sync.WaitGroup
}

type memoryGroup struct {
	members []*memoryMember
}

type memoryMember struct {
	ch chan Message
	h  Handler
}

// NewMemoryBus creates a bus that redelivers failed messages up to
// maxDeliver total attempts (minimum 1).
func NewMemoryBus(maxDeliver int) *MemoryBus {
	if maxDeliver < 1 {
		maxDeliver = 1
	}
	return &MemoryBus{
		topics:     make(map[string]map[string]*memoryGroup),
		maxDeliver: maxDeliver,
	}
}

// Publish fans the event out to every consumer group on the topic. Within a
// group the partition key selects a single member, which preserves per-key
// ordering. Events published to a topic with no subscribers are dropped.
func (b *MemoryBus) Publish(ctx context.Context, topic, key string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("memory bus is closed")
	}

	for _, group := range b.topics[topic] {
		if len(group.members) == 0 {
			continue
		}
		m := group.members[keyHash(key)%uint32(len(group.members))]
		b.inflight.Add(1)
		m.ch <- Message{Topic: topic, Key: key, Data: data, NumDelivered: 1}
	}
	return nil
}

// Subscribe adds one member to the named consumer group. Adding members
// re-spreads keys across the group, like a rebalance.
func (b *MemoryBus) Subscribe(topic, group string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("memory bus is closed")
	}

	groups, ok := b.topics[topic]
	if !ok {
		groups = make(map[string]*memoryGroup)
		b.topics[topic] = groups
	}
	g, ok := groups[group]
	if !ok {
		g = &memoryGroup{}
		groups[group] = g
	}

	m := &memoryMember{ch: make(chan Message, 1024), h: h}
	g.members = append(g.members, m)

	b.workers.Add(1)
	go b.runMember(m)

	return &memorySubscription{bus: b, topic: topic, group: group, member: m}, nil
}

// runMember processes one member's queue sequentially. Redelivery happens
// in place, which keeps per-key order intact even across retries.
func (b *MemoryBus) runMember(m *memoryMember) {
	defer b.workers.Done()
	for msg := range m.ch {
		for {
			err := m.h(context.Background(), msg)
			if err == nil || errors.Is(err, ErrDrop) {
				break
			}
			if msg.NumDelivered >= b.maxDeliver {
				break
			}
			msg.NumDelivered++
		}
		b.inflight.Done()
	}
}

// Drain blocks until every delivery published so far has been fully handled,
// including redeliveries. Intended for tests and shutdown.
func (b *MemoryBus) Drain() {
	b.inflight.Wait()
}

// Close stops accepting publishes, lets the workers drain their queues and
// waits for them to exit.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, groups := range b.topics {
		for _, g := range groups {
			for _, m := range g.members {
				close(m.ch)
			}
			g.members = nil
		}
	}
	b.mu.Unlock()
	b.workers.Wait()
}

type memorySubscription struct {
	bus    *MemoryBus
	topic  string
	group  string
	member *memoryMember
}

// Unsubscribe detaches the member from its group. Messages already queued on
// the member are still processed.
func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	g, ok := s.bus.topics[s.topic][s.group]
	if !ok {
		return nil
	}
	for i, m := range g.members {
		if m == s.member {
			g.members = append(g.members[:i], g.members[i+1:]...)
			if !s.bus.closed {
				close(m.ch)
			}
			break
		}
	}
	return nil
}

func keyHash(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
