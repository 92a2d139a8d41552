// Package events defines the choreography contract between the order and
// payment process owners: topic names and the JSON event schemas exchanged
// over the bus. Every event is keyed by orderId, so ordering is guaranteed
// only among events for the same order.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics double as JetStream subjects. The token before the first dot names
// the stream the subject belongs to (e.g. ORDERS.created lives in the ORDERS
// stream).
const (
	TopicOrderCreated     = "ORDERS.created"
	TopicOrderCancelled   = "ORDERS.cancelled"
	TopicPaymentProcessed = "PAYMENTS.processed"
	TopicInventoryUpdated = "INVENTORY.updated"
)

// OrderItemEvent carries one order line inside an OrderCreatedEvent.
// Ensure all fields are exported (start with uppercase) for JSON serialization.
type OrderItemEvent struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// OrderCreatedEvent is published by the order service after a new order has
// been committed in PENDING state. The payment service consumes it to settle
// the order amount.
type OrderCreatedEvent struct {
	OrderID     string           `json:"orderId"`
	CustomerID  string           `json:"customerId"`
	TotalAmount decimal.Decimal  `json:"totalAmount"`
	Items       []OrderItemEvent `json:"items"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// OrderCancelledEvent is published when a customer cancels a non-terminal order.
type OrderCancelledEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// PaymentProcessedEvent reports a settlement outcome back to the order service.
// Success false is a valid terminal outcome, not an error.
type PaymentProcessedEvent struct {
	OrderID     string    `json:"orderId"`
	PaymentID   string    `json:"paymentId"`
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	ProcessedAt time.Time `json:"processedAt"`
}

// InventoryUpdatedEvent reports an inventory reservation outcome. The producer
// is the external inventory service; this schema is consumed only.
type InventoryUpdatedEvent struct {
	OrderID   string    `json:"orderId"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updatedAt"`
}
