package order

import (
	"context"
	"encoding/json"
	"fmt"

	"Distributed-Order-Saga/pkg/eventbus"
	"Distributed-Order-Saga/pkg/events"
)

// PaymentProcessedHandler adapts ApplyPaymentOutcome to the bus. A payload
// that cannot be unmarshalled is a poison pill and is dropped instead of
// redelivered.
func (s *Service) PaymentProcessedHandler() eventbus.Handler {
	return func(ctx context.Context, msg eventbus.Message) error {
		var evt events.PaymentProcessedEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return fmt.Errorf("%w: unmarshal PaymentProcessed: %v", eventbus.ErrDrop, err)
		}
		return s.ApplyPaymentOutcome(ctx, &evt)
	}
}

// InventoryUpdatedHandler adapts ApplyInventoryOutcome to the bus.
func (s *Service) InventoryUpdatedHandler() eventbus.Handler {
	return func(ctx context.Context, msg eventbus.Message) error {
		var evt events.InventoryUpdatedEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return fmt.Errorf("%w: unmarshal InventoryUpdated: %v", eventbus.ErrDrop, err)
		}
		return s.ApplyInventoryOutcome(ctx, &evt)
	}
}
