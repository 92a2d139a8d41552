package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"Distributed-Order-Saga/pkg/order"
	"Distributed-Order-Saga/pkg/outbox"
)

// OrderStore persists Order aggregates. Status changes go through
// UpdateStatus, which is a conditional update (compare-and-set): a
// transition applies only if the current status is one of the expected
// source states, so redelivered events cannot double-apply.
type OrderStore struct {
	db *DB
}

// NewOrderStore wraps the order owner's database.
func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

// Create inserts the order, its items and, when rec is non-nil, the outbound
// event row in one transaction.
func (s *OrderStore) Create(ctx context.Context, o *order.Order, rec *outbox.Record) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, status, total_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.CustomerID, string(o.Status), o.TotalAmount.String(), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrConflict
		}
		return err
	}

	for i, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, seq, product_id, product_name, quantity, unit_price, subtotal)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.ID, i, item.ProductID, item.ProductName, item.Quantity,
			item.UnitPrice.String(), item.Subtotal.String())
		if err != nil {
			return err
		}
	}

	if rec != nil {
		if err := insertOutbox(ctx, tx, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateStatus transitions the order to the given status only if its current
// status is one of from. Returns false when no row matched, i.e. the
// transition was already applied or the order moved elsewhere; the caller
// treats that as a no-op. The outbox record, when given, commits atomically
// with the transition.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, from []order.Status, to order.Status, rec *outbox.Record) (bool, error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	placeholders := make([]string, len(from))
	args := []any{string(to), time.Now().UTC(), id}
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if rec != nil {
		if err := insertOutbox(ctx, tx, rec); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// FindByID loads one order with its items. Returns ErrNotFound if absent.
func (s *OrderStore) FindByID(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id, customer_id, status, total_amount, created_at, updated_at
		FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// FindByCustomer lists a customer's orders, oldest first.
func (s *OrderStore) FindByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	return s.findMany(ctx, `
		SELECT id, customer_id, status, total_amount, created_at, updated_at
		FROM orders WHERE customer_id = ? ORDER BY created_at, id`, customerID)
}

// FindAll lists every order, oldest first.
func (s *OrderStore) FindAll(ctx context.Context) ([]*order.Order, error) {
	return s.findMany(ctx, `
		SELECT id, customer_id, status, total_amount, created_at, updated_at
		FROM orders ORDER BY created_at, id`)
}

func (s *OrderStore) findMany(ctx context.Context, query string, args ...any) ([]*order.Order, error) {
	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range orders {
		if err := s.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *OrderStore) loadItems(ctx context.Context, o *order.Order) error {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price, subtotal
		FROM order_items WHERE order_id = ? ORDER BY seq`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item order.Item
		var unitPrice, subtotal string
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &unitPrice, &subtotal); err != nil {
			return err
		}
		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return err
		}
		if item.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
			return err
		}
		o.Items = append(o.Items, item)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	o := &order.Order{}
	var status, total string
	err := row.Scan(&o.ID, &o.CustomerID, &status, &total, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	return o, nil
}
