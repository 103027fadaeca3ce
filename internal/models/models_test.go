package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderSnapshotsPriceAndTotal(t *testing.T) {
	good := &Good{
		ID: "prd-1", Source: SourceCatalog, ProductID: "prd-1", Name: "Tomatoes", Unit: "kg",
		PricePerUnit: decimal.RequireFromString("2.35"), Quantity: 100,
		SellerID: "farmer-1", SellerName: "Green Valley", SellerRole: RoleFarmer,
	}
	buyer := Actor{ID: "mfg-1", Name: "Sauce Co", Role: RoleManufacturer}

	o := NewOrder(buyer, good, 30, Address{City: "Fresno"})

	assert.Equal(t, OrderStatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("70.5").Equal(o.TotalAmount))
	assert.Equal(t, RoleFarmer, o.SellerRole)
	assert.Equal(t, SourceCatalog, o.InventorySource)
	assert.Regexp(t, `^ORD-\d+-[0-9A-F]{7}$`, o.OrderNumber)

	good.PricePerUnit = decimal.NewFromInt(99)
	assert.True(t, decimal.RequireFromString("2.35").Equal(o.PricePerUnit))
}

func TestParseRoleAcceptsCustomerAlias(t *testing.T) {
	r, ok := ParseRole(" Customer ")
	assert.True(t, ok)
	assert.Equal(t, RoleConsumer, r)

	_, ok = ParseRole("carrier")
	assert.False(t, ok)
}

func TestRoleCapabilities(t *testing.T) {
	assert.False(t, RoleFarmer.CanBuy())
	assert.True(t, RoleFarmer.CanSell())
	assert.False(t, RoleConsumer.CanSell())
	assert.Equal(t, StageDistribution, RoleDistributor.HomeStage())
	assert.Equal(t, "Retailer", RoleRetailer.Title())
}

func TestComputeHashDependsOnPredecessor(t *testing.T) {
	orderID := "ord-1"
	r := &TraceabilityRecord{
		ProductID: "prd-1", OrderID: &orderID, Stage: StageProcessing, Action: "confirmed",
		ActorID: "farmer-1", Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
	}

	h1 := r.ComputeHash("")
	assert.Len(t, h1, 64)
	assert.Equal(t, h1, r.ComputeHash(""))
	assert.NotEqual(t, h1, r.ComputeHash("abc"))
}

func TestAddressScansFromJSONB(t *testing.T) {
	var a Address
	require.NoError(t, a.Scan([]byte(`{"street":"1 Main","city":"Fresno","zip_code":"93650"}`)))
	assert.Equal(t, "Fresno", a.City)
	assert.Equal(t, "93650", a.ZipCode)

	v, err := a.Value()
	require.NoError(t, err)
	assert.Contains(t, string(v.([]byte)), `"city":"Fresno"`)
}

func TestOutboxEnvelopeCarriesPayload(t *testing.T) {
	o := &Order{ID: "ord-1", ProductID: "prd-1", Status: OrderStatusShipped, Version: 3}
	msg, err := NewOrderStatusChangedEvent(o, OrderStatusConfirmed, Actor{ID: "farmer-1", Role: RoleFarmer})
	require.NoError(t, err)

	var env OutboxMessageEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &env))
	assert.Equal(t, EventOrderStatusChanged, env.EventType)
	assert.Equal(t, msg.EventID, env.EventID)

	var change OrderStatusChange
	require.NoError(t, json.Unmarshal(env.Data, &change))
	assert.Equal(t, OrderStatusConfirmed, change.OldStatus)
	assert.Equal(t, OrderStatusShipped, change.NewStatus)
}

func TestGenerateIDIsUniqueAndFitsColumns(t *testing.T) {
	seen := make(map[string]struct{}, 50000)
	for i := 0; i < 50000; i++ {
		id := GenerateID("evt")
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}

	id := GenerateID("ord")
	assert.True(t, strings.HasPrefix(id, "ord-"))
	assert.LessOrEqual(t, len(id), 50)
}
