// Package store persists the per-owner aggregates and the outbox in SQLite.
// Each process owner opens its own database file: cross-owner state never
// travels through shared storage, only through events.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Migration sets. An owner opens its database with its own aggregate
// migration plus MigrationOutbox.
const (
	MigrationOrders = `
CREATE TABLE IF NOT EXISTS orders (
	id           TEXT PRIMARY KEY,
	customer_id  TEXT NOT NULL,
	status       TEXT NOT NULL,
	total_amount TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);
CREATE TABLE IF NOT EXISTS order_items (
	order_id     TEXT NOT NULL REFERENCES orders(id),
	seq          INTEGER NOT NULL,
	product_id   TEXT NOT NULL,
	product_name TEXT NOT NULL,
	quantity     INTEGER NOT NULL,
	unit_price   TEXT NOT NULL,
	subtotal     TEXT NOT NULL,
	PRIMARY KEY (order_id, seq)
);`

	MigrationPayments = `
CREATE TABLE IF NOT EXISTS payments (
	id             TEXT PRIMARY KEY,
	order_id       TEXT NOT NULL UNIQUE,
	customer_id    TEXT NOT NULL,
	amount         TEXT NOT NULL,
	status         TEXT NOT NULL,
	payment_method TEXT NOT NULL,
	transaction_id TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL,
	processed_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_payments_customer ON payments(customer_id);`

	MigrationOutbox = `
CREATE TABLE IF NOT EXISTS outbox (
	id         TEXT PRIMARY KEY,
	topic      TEXT NOT NULL,
	event_key  TEXT NOT NULL,
	payload    BLOB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'PENDING',
	created_at TIMESTAMP NOT NULL,
	sent_at    TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, created_at);`
)

// DB wraps the sql handle so the typed stores can share one connection.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) a SQLite database and applies the given
// migrations. Use ":memory:" for tests.
func Open(path string, migrations ...string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer; SQLite performs best this way and it serializes the
	// conditional status updates.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(context.Background(), m); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply migration: %w", err)
		}
	}

	return &DB{sql: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// The sqlite driver does not expose a typed error for this, so the stores
// match on the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
