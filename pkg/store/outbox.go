package store

import (
	"context"
	"database/sql"
	"time"

	"Distributed-Order-Saga/pkg/outbox"
)

// OutboxStore reads and updates the outbox table for the relay. Inserts
// happen inside the aggregate stores' transactions via insertOutbox.
type OutboxStore struct {
	db *DB
}

// NewOutboxStore wraps the owner's database.
func NewOutboxStore(db *DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// insertOutbox writes a record within the caller's transaction. This is the
// transactional half of the outbox pattern: the event row commits or rolls
// back together with the aggregate change.
func insertOutbox(ctx context.Context, tx *sql.Tx, rec *outbox.Record) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (id, topic, event_key, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Topic, rec.Key, rec.Payload, string(rec.Status), rec.CreatedAt)
	return err
}

// FetchPending returns up to limit PENDING records, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]*outbox.Record, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, topic, event_key, payload, status, created_at
		FROM outbox
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT ?`,
		string(outbox.StatusPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*outbox.Record
	for rows.Next() {
		rec := &outbox.Record{}
		var status string
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.Key, &rec.Payload, &status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Status = outbox.Status(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkSent flips a record to SENT and stamps sent_at.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.sql.ExecContext(ctx,
		`UPDATE outbox SET status = ?, sent_at = ? WHERE id = ?`,
		string(outbox.StatusSent), time.Now().UTC(), id)
	return err
}
