package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"Distributed-Order-Saga/pkg/events"
	"Distributed-Order-Saga/pkg/metrics"
	"Distributed-Order-Saga/pkg/outbox"
)

// Decline reasons. The event-driven path mirrors the synchronous path but
// records a different reason, matching what each caller would see from a
// real gateway.
const (
	declineReasonAuto    = "Insufficient funds"
	declineReasonCommand = "Simulated gateway decline"
	successMessage       = "Payment processed successfully"
)

// Repository is the persistence contract the payment owner depends on,
// implemented by store.PaymentStore. Create commits the payment and its
// outbox record in one transaction and must fail with ErrConflict when a
// payment already exists for the order; together with ExistsByOrderID that
// makes duplicate OrderCreated deliveries no-ops.
type Repository interface {
	Create(ctx context.Context, p *Payment, rec *outbox.Record) error
	ExistsByOrderID(ctx context.Context, orderID string) (bool, error)
	FindByID(ctx context.Context, id string) (*Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)
	FindByCustomer(ctx context.Context, customerID string) ([]*Payment, error)
	FindAll(ctx context.Context) ([]*Payment, error)
}

// ProcessRequest is the synchronous payment command.
type ProcessRequest struct {
	OrderID       string          `json:"orderId"`
	CustomerID    string          `json:"customerId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
}

// Service implements the payment owner's settlement flow, commands and
// queries.
type Service struct {
	repo Repository
	log  *logrus.Entry
}

// NewService wires the service to its store.
func NewService(repo Repository, log *logrus.Entry) *Service {
	return &Service{repo: repo, log: log}
}

// HandleOrderCreated settles the order amount in response to an OrderCreated
// event. Payments only ever persist in a terminal state (settlement and the
// outcome event commit together), so a payment already existing for the
// order means this delivery is a duplicate: log and return without
// re-settling. A failed commit leaves no trace and the error naks the
// delivery, so the redelivery settles from scratch.
func (s *Service) HandleOrderCreated(ctx context.Context, evt *events.OrderCreatedEvent) error {
	l := s.log.WithFields(logrus.Fields{
		"order_id": evt.OrderID,
		"amount":   evt.TotalAmount.String(),
	})

	exists, err := s.repo.ExistsByOrderID(ctx, evt.OrderID)
	if err != nil {
		return err
	}
	if exists {
		l.Warn("Payment already exists for order, skipping")
		return nil
	}

	p := New(evt.OrderID, evt.CustomerID, evt.TotalAmount, "AUTO")
	if err := s.settle(ctx, p, declineReasonAuto, l); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost the race against another delivery of the same event.
			l.Warn("Payment already exists for order, skipping")
			return nil
		}
		return err
	}
	return nil
}

// Process is the synchronous settlement command. Unlike the event path, a
// pre-existing payment is surfaced to the caller as ErrConflict.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*Payment, error) {
	l := s.log.WithFields(logrus.Fields{
		"order_id": req.OrderID,
		"amount":   req.Amount.String(),
	})

	exists, err := s.repo.ExistsByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrConflict
	}

	p := New(req.OrderID, req.CustomerID, req.Amount, req.PaymentMethod)
	if err := s.settle(ctx, p, declineReasonCommand, l); err != nil {
		return nil, err
	}
	return p, nil
}

// settle runs the gateway check, then persists the terminal payment and
// queues the PaymentProcessed event in one transaction. The check is pure,
// so nothing is written before that commit: a failure here means the next
// attempt re-settles a clean slate instead of finding a half-written payment.
func (s *Service) settle(ctx context.Context, p *Payment, declineReason string, l *logrus.Entry) error {
	success := p.Settle(declineReason)

	message := successMessage
	outcome := "approved"
	if !success {
		message = p.FailureReason
		outcome = "declined"
	}

	evt := events.PaymentProcessedEvent{
		OrderID:     p.OrderID,
		PaymentID:   p.ID,
		Success:     success,
		Message:     message,
		ProcessedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal PaymentProcessed event: %w", err)
	}

	if err := s.repo.Create(ctx, p, outbox.NewRecord(events.TopicPaymentProcessed, p.OrderID, payload)); err != nil {
		return err
	}

	metrics.PaymentsSettled.WithLabelValues(outcome).Inc()
	if success {
		l.WithField("transaction_id", p.TransactionID).Info("Payment completed")
	} else {
		l.WithField("failure_reason", p.FailureReason).Warn("Payment failed")
	}
	return nil
}

// Get returns one payment or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByOrderID returns the payment for an order or ErrNotFound.
func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	return s.repo.FindByOrderID(ctx, orderID)
}

// ListByCustomer returns a customer's payments.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*Payment, error) {
	return s.repo.FindByCustomer(ctx, customerID)
}

// ListAll returns every payment.
func (s *Service) ListAll(ctx context.Context) ([]*Payment, error) {
	return s.repo.FindAll(ctx)
}
