// Package payment owns the Payment aggregate and the deterministic
// settlement check that stands in for a real gateway integration.
package payment

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the payment lifecycle state. A payment is created in PROCESSING
// and moves exactly once to COMPLETED or FAILED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var (
	// ErrNotFound is returned when a payment id or order id does not exist.
	ErrNotFound = errors.New("payment not found")
	// ErrConflict is returned when a payment already exists for the order.
	ErrConflict = errors.New("payment already exists for order")
)

// approvalLimit is the settlement threshold: amounts above it are declined.
var approvalLimit = decimal.RequireFromString("10000.00")

// Payment is the aggregate root. OrderID is unique: its existence is the
// idempotency guard against re-settling a redelivered order event.
type Payment struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId"`
	CustomerID    string          `json:"customerId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        Status          `json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
	TransactionID string          `json:"transactionId,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	ProcessedAt   *time.Time      `json:"processedAt,omitempty"`
}

// New builds a PROCESSING payment for one order.
func New(orderID, customerID string, amount decimal.Decimal, method string) *Payment {
	return &Payment{
		ID:            uuid.NewString(),
		OrderID:       orderID,
		CustomerID:    customerID,
		Amount:        amount,
		Status:        StatusProcessing,
		PaymentMethod: method,
		CreatedAt:     time.Now().UTC(),
	}
}

// Settle runs the gateway check and moves the payment to its terminal
// status. The check is a pure function of the amount: approve iff
// amount <= 10000.00, so the same amount always yields the same outcome.
// declineReason is recorded when the gateway declines.
func (p *Payment) Settle(declineReason string) bool {
	now := time.Now().UTC()
	p.ProcessedAt = &now
	if p.Amount.LessThanOrEqual(approvalLimit) {
		p.Status = StatusCompleted
		p.TransactionID = newTransactionID()
		return true
	}
	p.Status = StatusFailed
	p.FailureReason = declineReason
	return false
}

// newTransactionID generates ids like TXN-1A2B3C4D.
func newTransactionID() string {
	return "TXN-" + strings.ToUpper(uuid.NewString()[:8])
}
