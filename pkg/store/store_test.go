package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Distributed-Order-Saga/pkg/events"
	"Distributed-Order-Saga/pkg/order"
	"Distributed-Order-Saga/pkg/outbox"
	"Distributed-Order-Saga/pkg/payment"
	"Distributed-Order-Saga/pkg/store"
)

func openTestDB(t *testing.T, migrations ...string) *store.DB {
	t.Helper()
	db, err := store.Open(":memory:", migrations...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newOrder(t *testing.T, customerID string) *order.Order {
	t.Helper()
	o, err := order.New(customerID, []order.ItemSpec{
		{ProductID: "p1", ProductName: "Widget", Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
		{ProductID: "p2", ProductName: "Gadget", Quantity: 1, UnitPrice: decimal.RequireFromString("4.50")},
	})
	require.NoError(t, err)
	return o
}

func TestOrderStore_CreateAndFind(t *testing.T) {
	db := openTestDB(t, store.MigrationOrders, store.MigrationOutbox)
	s := store.NewOrderStore(db)
	ctx := context.Background()

	o := newOrder(t, "c1")
	rec := outbox.NewRecord(events.TopicOrderCreated, o.ID, []byte(`{}`))
	require.NoError(t, s.Create(ctx, o, rec))

	loaded, err := s.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, loaded.ID)
	assert.Equal(t, order.StatusPending, loaded.Status)
	assert.True(t, loaded.TotalAmount.Equal(o.TotalAmount))
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, "Widget", loaded.Items[0].ProductName)
	assert.True(t, loaded.Items[0].Subtotal.Equal(decimal.RequireFromString("19.98")))

	_, err = s.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderStore_UpdateStatus_CompareAndSet(t *testing.T) {
	db := openTestDB(t, store.MigrationOrders, store.MigrationOutbox)
	s := store.NewOrderStore(db)
	ob := store.NewOutboxStore(db)
	ctx := context.Background()

	o := newOrder(t, "c1")
	require.NoError(t, s.Create(ctx, o, nil))

	rec := outbox.NewRecord(events.TopicOrderCancelled, o.ID, []byte(`{}`))
	applied, err := s.UpdateStatus(ctx, o.ID, []order.Status{order.StatusPending}, order.StatusPaymentCompleted, rec)
	require.NoError(t, err)
	assert.True(t, applied)

	// Same transition again: the source state no longer matches, so the
	// update does not apply and its outbox record is not written either.
	again := outbox.NewRecord(events.TopicOrderCancelled, o.ID, []byte(`{}`))
	applied, err = s.UpdateStatus(ctx, o.ID, []order.Status{order.StatusPending}, order.StatusPaymentCompleted, again)
	require.NoError(t, err)
	assert.False(t, applied)

	pending, err := ob.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)

	loaded, err := s.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentCompleted, loaded.Status)
}

func TestOrderStore_UpdateStatus_MultipleSourceStates(t *testing.T) {
	db := openTestDB(t, store.MigrationOrders, store.MigrationOutbox)
	s := store.NewOrderStore(db)
	ctx := context.Background()

	o := newOrder(t, "c1")
	require.NoError(t, s.Create(ctx, o, nil))

	from := []order.Status{order.StatusPending, order.StatusPaymentCompleted, order.StatusPaymentFailed}
	applied, err := s.UpdateStatus(ctx, o.ID, from, order.StatusCancelled, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	// CANCELLED is not a source state, so a repeat does not apply.
	applied, err = s.UpdateStatus(ctx, o.ID, from, order.StatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestPaymentStore_CreateDuplicateOrder(t *testing.T) {
	db := openTestDB(t, store.MigrationPayments, store.MigrationOutbox)
	s := store.NewPaymentStore(db)
	ctx := context.Background()

	p := payment.New("o1", "c1", decimal.RequireFromString("50.00"), "CARD")
	require.NoError(t, s.Create(ctx, p, nil))

	exists, err := s.ExistsByOrderID(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := payment.New("o1", "c1", decimal.RequireFromString("50.00"), "CARD")
	assert.ErrorIs(t, s.Create(ctx, dup, nil), payment.ErrConflict)
}

func TestPaymentStore_CreateSettledRoundTrip(t *testing.T) {
	db := openTestDB(t, store.MigrationPayments, store.MigrationOutbox)
	s := store.NewPaymentStore(db)
	ob := store.NewOutboxStore(db)
	ctx := context.Background()

	p := payment.New("o1", "c1", decimal.RequireFromString("50.00"), "CARD")
	p.Settle("declined")
	rec := outbox.NewRecord(events.TopicPaymentProcessed, p.OrderID, []byte(`{}`))
	require.NoError(t, s.Create(ctx, p, rec))

	loaded, err := s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, loaded.Status)
	assert.Equal(t, p.TransactionID, loaded.TransactionID)
	require.NotNil(t, loaded.ProcessedAt)

	// The payment and its event committed together.
	pending, err := ob.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)
}

func TestPaymentStore_UnsettledHasNoProcessedAt(t *testing.T) {
	db := openTestDB(t, store.MigrationPayments, store.MigrationOutbox)
	s := store.NewPaymentStore(db)
	ctx := context.Background()

	p := payment.New("o1", "c1", decimal.RequireFromString("50.00"), "CARD")
	require.NoError(t, s.Create(ctx, p, nil))

	loaded, err := s.FindByOrderID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, loaded.Status)
	assert.Nil(t, loaded.ProcessedAt)
}

func TestOutboxStore_Lifecycle(t *testing.T) {
	db := openTestDB(t, store.MigrationOrders, store.MigrationOutbox)
	orders := store.NewOrderStore(db)
	ob := store.NewOutboxStore(db)
	ctx := context.Background()

	// Three events in order, attached to three aggregates.
	var recs []*outbox.Record
	for i := 0; i < 3; i++ {
		o := newOrder(t, "c1")
		rec := outbox.NewRecord(events.TopicOrderCreated, o.ID, []byte(`{}`))
		rec.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, orders.Create(ctx, o, rec))
		recs = append(recs, rec)
	}

	pending, err := ob.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, rec := range recs {
		assert.Equal(t, rec.ID, pending[i].ID)
	}

	// Limit is respected.
	pending, err = ob.FetchPending(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, ob.MarkSent(ctx, recs[0].ID))

	pending, err = ob.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, recs[1].ID, pending[0].ID)
	assert.Equal(t, recs[2].ID, pending[1].ID)
}
