package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/trust-trace-api/internal/models"
)

func seedProduct(t *testing.T, s Store, id string, qty int) {
	t.Helper()
	require.NoError(t, s.Inventory().CreateProduct(context.Background(), &models.Good{
		ID:           id,
		Name:         "Tomatoes",
		Unit:         "kg",
		PricePerUnit: decimal.NewFromFloat(2.5),
		Quantity:     qty,
		SellerID:     "farmer-1",
		SellerName:   "Green Valley",
		Status:       "available",
	}))
}

func TestMemoryDecrementNeverGoesNegative(t *testing.T) {
	s := NewMemoryStore()
	seedProduct(t, s, "prd-1", 10)
	ctx := context.Background()

	require.NoError(t, s.Inventory().Decrement(ctx, models.SourceCatalog, "prd-1", 10))
	assert.ErrorIs(t, s.Inventory().Decrement(ctx, models.SourceCatalog, "prd-1", 1), ErrInsufficientStock)
	assert.ErrorIs(t, s.Inventory().Decrement(ctx, models.SourceLot, "prd-1", 1), ErrNotFound)

	good, err := s.Inventory().FindGood(ctx, "prd-1")
	require.NoError(t, err)
	assert.Equal(t, 0, good.Quantity)
	assert.Equal(t, models.SourceCatalog, good.Source)
}

func TestMemoryConcurrentDecrements(t *testing.T) {
	s := NewMemoryStore()
	seedProduct(t, s, "prd-1", 100)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Inventory().Decrement(context.Background(), models.SourceCatalog, "prd-1", 3); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	good, err := s.Inventory().FindGood(context.Background(), "prd-1")
	require.NoError(t, err)
	assert.Equal(t, 33, success)
	assert.Equal(t, 1, good.Quantity)
}

func TestMemoryWithinTxRollsBack(t *testing.T) {
	s := NewMemoryStore()
	seedProduct(t, s, "prd-1", 10)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx Store) error {
		require.NoError(t, tx.Inventory().Decrement(ctx, models.SourceCatalog, "prd-1", 4))
		require.NoError(t, tx.Outbox().Create(ctx, &models.OutboxMessage{Status: models.OutboxStatusPending}))
		require.NoError(t, tx.Ledger().Append(ctx, &models.TraceabilityRecord{ID: "trc-1", ProductID: "prd-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	good, err := s.Inventory().FindGood(ctx, "prd-1")
	require.NoError(t, err)
	assert.Equal(t, 10, good.Quantity)

	pending, err := s.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	records, err := s.Ledger().ListByProduct(ctx, "prd-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryUpdateStatusCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	order := &models.Order{ID: "ord-1", Status: models.OrderStatusPending, Version: 1}
	require.NoError(t, s.Orders().Create(ctx, order))

	next := *order
	next.Status = models.OrderStatusConfirmed
	next.Version = 2
	require.NoError(t, s.Orders().UpdateStatus(ctx, &next, models.OrderStatusPending, 1))

	stale := *order
	stale.Status = models.OrderStatusCancelled
	stale.Version = 2
	assert.ErrorIs(t, s.Orders().UpdateStatus(ctx, &stale, models.OrderStatusPending, 1), ErrConflict)

	got, err := s.Orders().GetByID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, got.Status)
	assert.Equal(t, 2, got.Version)
}

func TestMemoryListFiltersByParty(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := models.GetCurrentTime()

	orders := []*models.Order{
		{ID: "ord-1", BuyerID: "mfg-1", SellerID: "farmer-1", Status: models.OrderStatusPending, CreatedAt: base},
		{ID: "ord-2", BuyerID: "dist-1", SellerID: "mfg-1", Status: models.OrderStatusPending, CreatedAt: base.Add(time.Second)},
		{ID: "ord-3", BuyerID: "dist-1", SellerID: "farmer-2", Status: models.OrderStatusShipped, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, o := range orders {
		require.NoError(t, s.Orders().Create(ctx, o))
	}

	both, err := s.Orders().List(ctx, OrderFilter{BuyerID: "mfg-1", SellerID: "mfg-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, both, 2)
	assert.Equal(t, "ord-2", both[0].ID)

	bought, err := s.Orders().List(ctx, OrderFilter{BuyerID: "dist-1", Status: models.OrderStatusShipped, Limit: 10})
	require.NoError(t, err)
	require.Len(t, bought, 1)
	assert.Equal(t, "ord-3", bought[0].ID)

	page, err := s.Orders().List(ctx, OrderFilter{BuyerID: "dist-1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "ord-2", page[0].ID)
}

func TestMemoryCreateLotIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	owner := models.Actor{ID: "mfg-1", Name: "Sauce Co", Role: models.RoleManufacturer}
	d := models.LotDescriptor{ProductID: "prd-1", ProductName: "Tomatoes", SourceOrderID: "ord-1"}

	created, err := s.Inventory().CreateLot(ctx, models.NewInventoryLot(owner, d, 10))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Inventory().CreateLot(ctx, models.NewInventoryLot(owner, d, 10))
	require.NoError(t, err)
	assert.False(t, created)

	lot, err := s.Inventory().GetLotBySourceOrder(ctx, "ord-1")
	require.NoError(t, err)

	good, err := s.Inventory().FindGood(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceLot, good.Source)
	assert.Equal(t, "mfg-1", good.SellerID)
	assert.Equal(t, 10, good.Quantity)
}

func TestMemoryLedgerOrdersByTimestamp(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t0 := models.GetCurrentTime()

	require.NoError(t, s.Ledger().Append(ctx, &models.TraceabilityRecord{ID: "b", ProductID: "p", Timestamp: t0.Add(time.Minute)}))
	require.NoError(t, s.Ledger().Append(ctx, &models.TraceabilityRecord{ID: "a", ProductID: "p", Timestamp: t0}))
	require.NoError(t, s.Ledger().Append(ctx, &models.TraceabilityRecord{ID: "c", ProductID: "p", Timestamp: t0.Add(time.Minute)}))

	records, err := s.Ledger().ListByProduct(ctx, "p")
	require.NoError(t, err)
	ids := []string{records[0].ID, records[1].ID, records[2].ID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	latest, err := s.Ledger().Latest(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "c", latest.ID)

	_, err = s.Ledger().Latest(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOutboxLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	msg := &models.OutboxMessage{EventID: "evt-1", Status: models.OutboxStatusPending}
	require.NoError(t, s.Outbox().Create(ctx, msg))
	assert.Equal(t, int64(1), msg.ID)

	assert.ErrorIs(t, s.Outbox().Requeue(ctx, msg.ID), ErrConflict)

	require.NoError(t, s.Outbox().MarkAsProcessing(ctx, msg.ID))
	require.NoError(t, s.Outbox().MarkAsFailed(ctx, msg.ID, "broker down"))
	require.NoError(t, s.Outbox().Requeue(ctx, msg.ID))

	got, err := s.Outbox().GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusPending, got.Status)
	assert.Equal(t, 0, got.ProcessingAttempts)
	assert.Nil(t, got.LastError)

	assert.ErrorIs(t, s.Outbox().Requeue(ctx, 99), ErrNotFound)
}
