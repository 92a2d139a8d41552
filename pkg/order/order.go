// Package order owns the Order aggregate and its lifecycle state machine.
// Cross-owner outcomes (payment, inventory) arrive as events and are applied
// as guarded status transitions; they are never errors.
package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state.
//
// PENDING -> {PAYMENT_COMPLETED, PAYMENT_FAILED}
// PAYMENT_COMPLETED -> {COMPLETED, INVENTORY_FAILED}
// any non-terminal -> CANCELLED (command-driven only)
//
// PAYMENT_FAILED and INVENTORY_FAILED are dead ends: there is no retry or
// compensation path out of them.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusPaymentCompleted Status = "PAYMENT_COMPLETED"
	StatusPaymentFailed    Status = "PAYMENT_FAILED"
	StatusCompleted        Status = "COMPLETED"
	StatusInventoryFailed  Status = "INVENTORY_FAILED"
	StatusCancelled        Status = "CANCELLED"
)

// Terminal reports whether no further transition can leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusPaymentFailed, StatusInventoryFailed:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when an order id does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when a synchronous command attempts an
	// invalid state transition.
	ErrConflict = errors.New("order state conflict")
)

// ValidationError rejects a malformed command before any state mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid order request: " + e.Reason
}

// Item is one immutable order line. Subtotal is fixed at creation as
// quantity * unit price.
type Item struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// ItemSpec is the caller-supplied description of one order line.
type ItemSpec struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Order is the aggregate root. Items never change after creation; only
// Status and UpdatedAt mutate, and only through guarded transitions.
type Order struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customerId"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Items       []Item          `json:"items"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// New validates the request and builds a PENDING order with computed
// subtotals. TotalAmount is the exact decimal sum of the subtotals.
func New(customerID string, specs []ItemSpec) (*Order, error) {
	if customerID == "" {
		return nil, &ValidationError{Reason: "customerId is required"}
	}
	if len(specs) == 0 {
		return nil, &ValidationError{Reason: "order must contain at least one item"}
	}

	items := make([]Item, 0, len(specs))
	total := decimal.Zero
	for i, spec := range specs {
		if spec.ProductID == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("item %d: productId is required", i)}
		}
		if spec.Quantity < 1 {
			return nil, &ValidationError{Reason: fmt.Sprintf("item %d: quantity must be at least 1", i)}
		}
		if !spec.UnitPrice.IsPositive() {
			return nil, &ValidationError{Reason: fmt.Sprintf("item %d: unitPrice must be positive", i)}
		}
		subtotal := spec.UnitPrice.Mul(decimal.NewFromInt(int64(spec.Quantity)))
		items = append(items, Item{
			ProductID:   spec.ProductID,
			ProductName: spec.ProductName,
			Quantity:    spec.Quantity,
			UnitPrice:   spec.UnitPrice,
			Subtotal:    subtotal,
		})
		total = total.Add(subtotal)
	}

	now := time.Now().UTC()
	return &Order{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		Status:      StatusPending,
		TotalAmount: total,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Cancellable reports whether a cancel command is allowed from the current
// status. Cancelled and completed orders cannot be cancelled (again).
func (o *Order) Cancellable() bool {
	return o.Status != StatusCompleted && o.Status != StatusCancelled
}
