package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"Distributed-Order-Saga/pkg/eventbus"
	"Distributed-Order-Saga/pkg/events"
)

// OrderCreatedHandler adapts HandleOrderCreated to the bus. Unmarshal
// failures are poison pills and are dropped; everything else naks the
// delivery so the bus redelivers it.
func (s *Service) OrderCreatedHandler() eventbus.Handler {
	return func(ctx context.Context, msg eventbus.Message) error {
		var evt events.OrderCreatedEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return fmt.Errorf("%w: unmarshal OrderCreated: %v", eventbus.ErrDrop, err)
		}
		return s.HandleOrderCreated(ctx, &evt)
	}
}
