package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"Distributed-Order-Saga/pkg/events"
	"Distributed-Order-Saga/pkg/outbox"
)

// Repository is the persistence contract the order owner depends on. It is
// implemented by store.OrderStore. UpdateStatus must be a conditional update
// on the current status; that guard is what makes redelivered outcome events
// no-ops instead of double transitions.
type Repository interface {
	Create(ctx context.Context, o *Order, rec *outbox.Record) error
	UpdateStatus(ctx context.Context, id string, from []Status, to Status, rec *outbox.Record) (bool, error)
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByCustomer(ctx context.Context, customerID string) ([]*Order, error)
	FindAll(ctx context.Context) ([]*Order, error)
}

// Service implements the order owner's commands, queries and event-driven
// transitions.
type Service struct {
	repo Repository
	log  *logrus.Entry
}

// NewService wires the service to its store.
func NewService(repo Repository, log *logrus.Entry) *Service {
	return &Service{repo: repo, log: log}
}

// Create validates the request, persists a PENDING order and queues the
// OrderCreated event in the same transaction.
func (s *Service) Create(ctx context.Context, customerID string, specs []ItemSpec) (*Order, error) {
	o, err := New(customerID, specs)
	if err != nil {
		return nil, err
	}

	evt := events.OrderCreatedEvent{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
	}
	for _, item := range o.Items {
		evt.Items = append(evt.Items, events.OrderItemEvent{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal OrderCreated event: %w", err)
	}

	if err := s.repo.Create(ctx, o, outbox.NewRecord(events.TopicOrderCreated, o.ID, payload)); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":     o.ID,
		"customer_id":  o.CustomerID,
		"total_amount": o.TotalAmount.String(),
	}).Info("Order created")
	return o, nil
}

// Cancel moves a non-terminal order to CANCELLED and queues the
// OrderCancelled event. Returns ErrNotFound for unknown orders and
// ErrConflict for orders that are COMPLETED or already CANCELLED.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Cancellable() {
		return nil, ErrConflict
	}

	payload, err := json.Marshal(events.OrderCancelledEvent{
		OrderID: id,
		Reason:  "Customer requested cancellation",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal OrderCancelled event: %w", err)
	}

	applied, err := s.repo.UpdateStatus(ctx, id,
		[]Status{StatusPending, StatusPaymentCompleted, StatusPaymentFailed, StatusInventoryFailed},
		StatusCancelled,
		outbox.NewRecord(events.TopicOrderCancelled, id, payload))
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent transition won the race; by now the order is in a
		// state the cancel check above would have rejected.
		return nil, ErrConflict
	}

	s.log.WithField("order_id", id).Info("Order cancelled")
	return s.repo.FindByID(ctx, id)
}

// Get returns one order or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.repo.FindByID(ctx, id)
}

// ListByCustomer returns a customer's orders.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*Order, error) {
	return s.repo.FindByCustomer(ctx, customerID)
}

// ListAll returns every order.
func (s *Service) ListAll(ctx context.Context) ([]*Order, error) {
	return s.repo.FindAll(ctx)
}

// ApplyPaymentOutcome applies a PaymentProcessed event: PENDING moves to
// PAYMENT_COMPLETED or PAYMENT_FAILED. Any delivery that finds the order
// past PENDING is a no-op, which is what makes redelivery safe. An unknown
// orderId is logged and dropped: the order may not be committed yet in a
// rare reordering, or may legitimately not exist.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, evt *events.PaymentProcessedEvent) error {
	to := StatusPaymentFailed
	if evt.Success {
		to = StatusPaymentCompleted
	}

	applied, err := s.repo.UpdateStatus(ctx, evt.OrderID, []Status{StatusPending}, to, nil)
	if err != nil {
		return err
	}
	s.logOutcome(ctx, "payment", evt.OrderID, string(to), evt.Message, applied)
	return nil
}

// ApplyInventoryOutcome applies an InventoryUpdated event: PAYMENT_COMPLETED
// moves to COMPLETED or INVENTORY_FAILED. Same no-op guard as
// ApplyPaymentOutcome; in particular an inventory event for an order whose
// payment failed never advances it.
func (s *Service) ApplyInventoryOutcome(ctx context.Context, evt *events.InventoryUpdatedEvent) error {
	to := StatusInventoryFailed
	if evt.Success {
		to = StatusCompleted
	}

	applied, err := s.repo.UpdateStatus(ctx, evt.OrderID, []Status{StatusPaymentCompleted}, to, nil)
	if err != nil {
		return err
	}
	s.logOutcome(ctx, "inventory", evt.OrderID, string(to), evt.Message, applied)
	return nil
}

func (s *Service) logOutcome(ctx context.Context, source, orderID, target, message string, applied bool) {
	l := s.log.WithFields(logrus.Fields{
		"source":   source,
		"order_id": orderID,
		"target":   target,
		"message":  message,
	})
	if applied {
		l.Info("Order transition applied")
		return
	}
	if _, err := s.repo.FindByID(ctx, orderID); errors.Is(err, ErrNotFound) {
		l.Warn("Outcome event for unknown order, dropping")
		return
	}
	l.Info("Order already past expected status, outcome ignored")
}
