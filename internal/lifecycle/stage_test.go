package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vaidashi/trust-trace-api/internal/models"
)

func TestInferStageTable(t *testing.T) {
	farm := &models.Order{SellerRole: models.RoleFarmer, BuyerRole: models.RoleManufacturer}
	mfg := &models.Order{SellerRole: models.RoleManufacturer, BuyerRole: models.RoleDistributor}
	dist := &models.Order{SellerRole: models.RoleDistributor, BuyerRole: models.RoleRetailer}

	cases := []struct {
		name  string
		order *models.Order
		from  models.OrderStatus
		to    models.OrderStatus
		stage models.Stage
		desc  string
	}{
		{"farm confirm", farm, models.OrderStatusPending, models.OrderStatusConfirmed, models.StageProcessing, "Manufacturer order confirmed by farmer"},
		{"farm ship", farm, models.OrderStatusConfirmed, models.OrderStatusShipped, models.StageDistribution, "Order shipped from farm"},
		{"farm deliver", farm, models.OrderStatusShipped, models.OrderStatusDelivered, models.StageRetail, "Order delivered to buyer"},
		{"farm cancel pending", farm, models.OrderStatusPending, models.OrderStatusCancelled, models.StageFarm, "Manufacturer order cancelled"},
		{"farm cancel confirmed", farm, models.OrderStatusConfirmed, models.OrderStatusCancelled, models.StageProcessing, "Manufacturer order cancelled"},
		{"mfg confirm", mfg, models.OrderStatusPending, models.OrderStatusConfirmed, models.StageProcessing, "Distributor order confirmed by manufacturer"},
		{"mfg ship", mfg, models.OrderStatusConfirmed, models.OrderStatusShipped, models.StageDistribution, "Shipped to distributor"},
		{"mfg deliver", mfg, models.OrderStatusShipped, models.OrderStatusDelivered, models.StageRetail, "Delivered to distributor"},
		{"mfg cancel pending", mfg, models.OrderStatusPending, models.OrderStatusCancelled, models.StageProcessing, "Distributor order cancelled"},
		{"dist ship", dist, models.OrderStatusConfirmed, models.OrderStatusShipped, models.StageDistribution, "Shipped to retailer"},
		{"dist cancel pending", dist, models.OrderStatusPending, models.OrderStatusCancelled, models.StageDistribution, "Retailer order cancelled"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			stage, desc := InferStage(c.order, c.from, c.to)
			assert.Equal(t, c.stage, stage)
			assert.Equal(t, c.desc, desc)
		})
	}
}
