package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"Distributed-Order-Saga/pkg/outbox"
	"Distributed-Order-Saga/pkg/payment"
)

// PaymentStore persists Payment aggregates. The UNIQUE(order_id) constraint
// is the hard idempotency guard: even if two deliveries of the same
// OrderCreated event race past the exists check, only one insert commits.
type PaymentStore struct {
	db *DB
}

// NewPaymentStore wraps the payment owner's database.
func NewPaymentStore(db *DB) *PaymentStore {
	return &PaymentStore{db: db}
}

// Create inserts the payment and, when rec is non-nil, its outcome event in
// one transaction. Returns ErrConflict when a payment already exists for the
// order. Nothing commits on failure, so the caller can safely retry the
// whole settlement.
func (s *PaymentStore) Create(ctx context.Context, p *payment.Payment, rec *outbox.Record) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var processedAt any
	if p.ProcessedAt != nil {
		processedAt = *p.ProcessedAt
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, customer_id, amount, status, payment_method, transaction_id, failure_reason, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.CustomerID, p.Amount.String(), string(p.Status),
		p.PaymentMethod, p.TransactionID, p.FailureReason, p.CreatedAt, processedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return payment.ErrConflict
		}
		return err
	}

	if rec != nil {
		if err := insertOutbox(ctx, tx, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ExistsByOrderID reports whether a payment exists for the order. This is
// the cheap idempotency pre-check; the unique index is the backstop.
func (s *PaymentStore) ExistsByOrderID(ctx context.Context, orderID string) (bool, error) {
	var one int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT 1 FROM payments WHERE order_id = ?`, orderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindByID loads one payment. Returns ErrNotFound if absent.
func (s *PaymentStore) FindByID(ctx context.Context, id string) (*payment.Payment, error) {
	return s.findOne(ctx, `WHERE id = ?`, id)
}

// FindByOrderID loads the payment for an order. Returns ErrNotFound if absent.
func (s *PaymentStore) FindByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	return s.findOne(ctx, `WHERE order_id = ?`, orderID)
}

// FindByCustomer lists a customer's payments, oldest first.
func (s *PaymentStore) FindByCustomer(ctx context.Context, customerID string) ([]*payment.Payment, error) {
	return s.findMany(ctx, `WHERE customer_id = ? ORDER BY created_at, id`, customerID)
}

// FindAll lists every payment, oldest first.
func (s *PaymentStore) FindAll(ctx context.Context) ([]*payment.Payment, error) {
	return s.findMany(ctx, `ORDER BY created_at, id`)
}

const paymentColumns = `
	SELECT id, order_id, customer_id, amount, status, payment_method, transaction_id, failure_reason, created_at, processed_at
	FROM payments `

func (s *PaymentStore) findOne(ctx context.Context, clause string, args ...any) (*payment.Payment, error) {
	return scanPayment(s.db.sql.QueryRowContext(ctx, paymentColumns+clause, args...))
}

func (s *PaymentStore) findMany(ctx context.Context, clause string, args ...any) ([]*payment.Payment, error) {
	rows, err := s.db.sql.QueryContext(ctx, paymentColumns+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(row rowScanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var status, amount string
	var processedAt sql.NullTime
	err := row.Scan(&p.ID, &p.OrderID, &p.CustomerID, &amount, &status,
		&p.PaymentMethod, &p.TransactionID, &p.FailureReason, &p.CreatedAt, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = payment.Status(status)
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		t := processedAt.Time
		p.ProcessedAt = &t
	}
	return p, nil
}
