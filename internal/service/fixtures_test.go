package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/internal/repository"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

var (
	farmer       = models.Actor{ID: "farmer-1", Name: "Green Valley Farm", Role: models.RoleFarmer}
	manufacturer = models.Actor{ID: "mfg-1", Name: "Sauce Co", Role: models.RoleManufacturer}
	distributor  = models.Actor{ID: "dist-1", Name: "FastFreight", Role: models.RoleDistributor}
	shipTo       = models.Address{Street: "1 Mill Rd", City: "Fresno", State: "CA", ZipCode: "93650", Country: "USA"}
)

type fixture struct {
	store     *repository.MemoryStore
	inventory *InventoryService
	ledger    *TraceabilityService
	orders    *OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	log := logger.NewNop()
	inventory := NewInventoryService(store, log)
	ledger := NewTraceabilityService(store, NewJourneyCache(), log)

	return &fixture{
		store:     store,
		inventory: inventory,
		ledger:    ledger,
		orders:    NewOrderService(store, inventory, ledger, log),
	}
}

func (f *fixture) seedGood(t *testing.T, id string, qty int) {
	t.Helper()
	require.NoError(t, f.store.Inventory().CreateProduct(context.Background(), &models.Good{
		ID:           id,
		Name:         "Roma Tomatoes",
		Unit:         "kg",
		PricePerUnit: decimal.RequireFromString("2.50"),
		Quantity:     qty,
		SellerID:     farmer.ID,
		SellerName:   farmer.Name,
		Status:       "available",
	}))
}

func (f *fixture) onHand(t *testing.T, goodID string) int {
	t.Helper()
	good, err := f.inventory.OnHand(context.Background(), goodID)
	require.NoError(t, err)
	return good.Quantity
}

func (f *fixture) records(t *testing.T, productID string) []*models.TraceabilityRecord {
	t.Helper()
	records, err := f.store.Ledger().ListByProduct(context.Background(), productID)
	require.NoError(t, err)
	return records
}

func (f *fixture) place(t *testing.T, buyer models.Actor, goodID string, qty int) *models.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), buyer, CreateOrderInput{
		GoodID:          goodID,
		Quantity:        qty,
		ShippingAddress: shipTo,
	})
	require.NoError(t, err)
	return order
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code, appErr.Message)
}
