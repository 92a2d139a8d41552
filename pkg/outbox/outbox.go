// Package outbox implements the transactional outbox: commands write the
// outbound event into the same database transaction as the aggregate change,
// and a relay publishes committed rows to the bus afterwards. The event is
// therefore never lost relative to the committed state, and a bus failure
// never rolls back a command that already succeeded.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status of an outbox row. A row stays PENDING until its publish succeeds,
// however many polls that takes; a bus outage delays events, it never loses
// them.
type Status string

const (
	StatusPending Status = "PENDING" // committed, not yet published
	StatusSent    Status = "SENT"    // published to the bus
)

// Record is one outbound event awaiting publication. Key is the partition
// key (orderId) the event will be published under.
type Record struct {
	ID        string
	Topic     string
	Key       string
	Payload   []byte
	Status    Status
	CreatedAt time.Time
	SentAt    *time.Time
}

// NewRecord builds a PENDING record for the given topic and key.
func NewRecord(topic, key string, payload []byte) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Topic:     topic,
		Key:       key,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Store is the persistence the relay drains. Implemented by store.OutboxStore.
type Store interface {
	// FetchPending returns up to limit PENDING records, oldest first.
	FetchPending(ctx context.Context, limit int) ([]*Record, error)
	// MarkSent flips a record to SENT.
	MarkSent(ctx context.Context, id string) error
}
