package lifecycle

import (
	"fmt"

	"github.com/vaidashi/trust-trace-api/internal/models"
)

// StageOf is the stage a product sits in while its order has the given status
func StageOf(o *models.Order, status models.OrderStatus) models.Stage {
	switch status {
	case models.OrderStatusConfirmed:
		return models.StageProcessing
	case models.OrderStatusShipped:
		return models.StageDistribution
	case models.OrderStatusDelivered:
		return models.StageRetail
	default:
		return o.SellerRole.HomeStage()
	}
}

// InferStage derives the custody stage and description for the transition from→to
func InferStage(o *models.Order, from, to models.OrderStatus) (models.Stage, string) {
	buyer := o.BuyerRole.Title()
	farmSeller := o.SellerRole == models.RoleFarmer

	switch to {
	case models.OrderStatusConfirmed:
		return models.StageProcessing, fmt.Sprintf("%s order confirmed by %s", buyer, o.SellerRole)
	case models.OrderStatusShipped:
		if farmSeller {
			return models.StageDistribution, "Order shipped from farm"
		}
		return models.StageDistribution, fmt.Sprintf("Shipped to %s", o.BuyerRole)
	case models.OrderStatusDelivered:
		if farmSeller {
			return models.StageRetail, "Order delivered to buyer"
		}
		return models.StageRetail, fmt.Sprintf("Delivered to %s", o.BuyerRole)
	case models.OrderStatusCancelled:
		return StageOf(o, from), fmt.Sprintf("%s order cancelled", buyer)
	}

	return StageOf(o, from), fmt.Sprintf("Order %s", to)
}
