package order_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Distributed-Order-Saga/pkg/events"
	"Distributed-Order-Saga/pkg/order"
	"Distributed-Order-Saga/pkg/store"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func setupOrderService(t *testing.T) (*order.Service, *store.OutboxStore) {
	t.Helper()
	db, err := store.Open(":memory:", store.MigrationOrders, store.MigrationOutbox)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return order.NewService(store.NewOrderStore(db), testLogger()), store.NewOutboxStore(db)
}

func widgetSpecs() []order.ItemSpec {
	return []order.ItemSpec{
		{ProductID: "p1", ProductName: "Widget", Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
	}
}

func TestService_Create(t *testing.T) {
	svc, ob := setupOrderService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, "c1", widgetSpecs())
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "19.98", o.TotalAmount.String())

	// The aggregate and the OrderCreated event committed together.
	loaded, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, loaded.Status)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, "Widget", loaded.Items[0].ProductName)

	pending, err := ob.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events.TopicOrderCreated, pending[0].Topic)
	assert.Equal(t, o.ID, pending[0].Key)

	var evt events.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(pending[0].Payload, &evt))
	assert.Equal(t, o.ID, evt.OrderID)
	assert.Equal(t, "c1", evt.CustomerID)
	assert.True(t, evt.TotalAmount.Equal(o.TotalAmount))
	require.Len(t, evt.Items, 1)
	assert.Equal(t, 2, evt.Items[0].Quantity)
}

func TestService_Create_InvalidItems(t *testing.T) {
	svc, ob := setupOrderService(t)

	_, err := svc.Create(context.Background(), "c1", nil)
	var ve *order.ValidationError
	require.ErrorAs(t, err, &ve)

	// Nothing was persisted, nothing queued.
	pending, err := ob.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestService_Get_NotFound(t *testing.T) {
	svc, _ := setupOrderService(t)
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestService_Cancel(t *testing.T) {
	svc, ob := setupOrderService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, "c1", widgetSpecs())
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	pending, err := ob.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, events.TopicOrderCancelled, pending[1].Topic)

	// Cancelling again conflicts.
	_, err = svc.Cancel(ctx, o.ID)
	assert.ErrorIs(t, err, order.ErrConflict)
}

func TestService_Cancel_NotFound(t *testing.T) {
	svc, _ := setupOrderService(t)
	_, err := svc.Cancel(context.Background(), "nope")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestService_Cancel_CompletedConflicts(t *testing.T) {
	svc, _ := setupOrderService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, "c1", widgetSpecs())
	require.NoError(t, err)

	require.NoError(t, svc.ApplyPaymentOutcome(ctx, &events.PaymentProcessedEvent{OrderID: o.ID, Success: true}))
	require.NoError(t, svc.ApplyInventoryOutcome(ctx, &events.InventoryUpdatedEvent{OrderID: o.ID, Success: true}))

	_, err = svc.Cancel(ctx, o.ID)
	assert.ErrorIs(t, err, order.ErrConflict)
}

func TestService_Cancel_AfterPaymentFailureStillAllowed(t *testing.T) {
	svc, _ := setupOrderService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, "c1", widgetSpecs())
	require.NoError(t, err)
	require.NoError(t, svc.ApplyPaymentOutcome(ctx, &events.PaymentProcessedEvent{OrderID: o.ID, Success: false}))

	cancelled, err := svc.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
}

func TestService_ApplyPaymentOutcome(t *testing.T) {
	svc, _ := setupOrderService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, "c1", widgetSpecs())
	require.NoError(t, err)

	evt := &events.PaymentProcessedEvent{OrderID: o.ID, Success: true, Message: "ok"}
	require.NoError(t, svc.ApplyPaymentOutcome(ctx, evt))

	loaded, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentCompleted, loaded.Status)

	// Redelivery of the same event is a no-op.
	require.NoError(t, svc.ApplyPaymentOutcome(ctx, evt))
	loaded, err = svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentCompleted, loaded.Status)

	// A contradictory late delivery cannot overwrite the applied outcome.
	require.NoError(t, svc.ApplyPaymentOutcome(ctx, &events.PaymentProcessedEvent{OrderID: o.ID, Success: false}))
	loaded, err = svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentCompleted, loaded.Status)
}

func TestService_ApplyPaymentOutcome_UnknownOrderDropped(t *testing.T) {
	svc, _ := setupOrderService(t)
	err := svc.ApplyPaymentOutcome(context.Background(), &events.PaymentProcessedEvent{OrderID: "ghost", Success: true})
	assert.NoError(t, err)
}

func TestService_ApplyInventoryOutcome_RequiresPaymentCompleted(t *testing.T) {
	svc, _ := setupOrderService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, "c1", widgetSpecs())
	require.NoError(t, err)

	// Inventory outcome before payment is ignored.
	require.NoError(t, svc.ApplyInventoryOutcome(ctx, &events.InventoryUpdatedEvent{OrderID: o.ID, Success: true}))
	loaded, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, loaded.Status)

	// The only path to COMPLETED: payment success then inventory success.
	require.NoError(t, svc.ApplyPaymentOutcome(ctx, &events.PaymentProcessedEvent{OrderID: o.ID, Success: true}))
	require.NoError(t, svc.ApplyInventoryOutcome(ctx, &events.InventoryUpdatedEvent{OrderID: o.ID, Success: true}))
	loaded, err = svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, loaded.Status)
}

func TestService_ApplyInventoryOutcome_AfterPaymentFailureIsNoop(t *testing.T) {
	svc, _ := setupOrderService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, "c1", widgetSpecs())
	require.NoError(t, err)
	require.NoError(t, svc.ApplyPaymentOutcome(ctx, &events.PaymentProcessedEvent{OrderID: o.ID, Success: false}))

	require.NoError(t, svc.ApplyInventoryOutcome(ctx, &events.InventoryUpdatedEvent{OrderID: o.ID, Success: true}))
	loaded, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentFailed, loaded.Status)
}

func TestService_ListQueries(t *testing.T) {
	svc, _ := setupOrderService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "c1", widgetSpecs())
	require.NoError(t, err)
	_, err = svc.Create(ctx, "c1", widgetSpecs())
	require.NoError(t, err)
	_, err = svc.Create(ctx, "c2", widgetSpecs())
	require.NoError(t, err)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	c1, err := svc.ListByCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, c1, 2)

	none, err := svc.ListByCustomer(ctx, "c3")
	require.NoError(t, err)
	assert.Empty(t, none)
}
