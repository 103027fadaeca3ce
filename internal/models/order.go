package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents an agreement between a buyer and a seller for a quantity of one good
type Order struct {
	ID                   string          `db:"id" json:"id"`
	OrderNumber          string          `db:"order_number" json:"order_number"`
	BuyerID              string          `db:"buyer_id" json:"buyer_id"`
	BuyerName            string          `db:"buyer_name" json:"buyer_name"`
	BuyerRole            Role            `db:"buyer_role" json:"buyer_role"`
	SellerID             string          `db:"seller_id" json:"seller_id"`
	SellerName           string          `db:"seller_name" json:"seller_name"`
	SellerRole           Role            `db:"seller_role" json:"seller_role"`
	GoodID               string          `db:"good_id" json:"good_id"`
	InventorySource      InventorySource `db:"inventory_source" json:"inventory_source"`
	ProductID            string          `db:"product_id" json:"product_id"`
	ProductName          string          `db:"product_name" json:"product_name"`
	Unit                 string          `db:"unit" json:"unit"`
	PricePerUnit         decimal.Decimal `db:"price_per_unit" json:"price_per_unit"`
	Quantity             int             `db:"quantity" json:"quantity"`
	TotalAmount          decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status               OrderStatus     `db:"status" json:"status"`
	OrderDate            time.Time       `db:"order_date" json:"order_date"`
	ExpectedDeliveryDate *time.Time      `db:"expected_delivery_date" json:"expected_delivery_date,omitempty"`
	ActualDeliveryDate   *time.Time      `db:"actual_delivery_date" json:"actual_delivery_date,omitempty"`
	ShippingAddress      Address         `db:"shipping_address" json:"shipping_address"`
	Version              int             `db:"version" json:"version"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// NewOrder creates a pending order for quantity units of good, snapshotting its price
func NewOrder(buyer Actor, good *Good, quantity int, shipTo Address) *Order {
	now := GetCurrentTime()

	return &Order{
		ID:              GenerateID("ord"),
		OrderNumber:     GenerateOrderNumber(now),
		BuyerID:         buyer.ID,
		BuyerName:       buyer.Name,
		BuyerRole:       buyer.Role,
		SellerID:        good.SellerID,
		SellerName:      good.SellerName,
		SellerRole:      good.SellerRole,
		GoodID:          good.ID,
		InventorySource: good.Source,
		ProductID:       good.ProductID,
		ProductName:     good.Name,
		Unit:            good.Unit,
		PricePerUnit:    good.PricePerUnit,
		Quantity:        quantity,
		TotalAmount:     good.PricePerUnit.Mul(decimal.NewFromInt(int64(quantity))),
		Status:          OrderStatusPending,
		OrderDate:       now,
		ShippingAddress: shipTo,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Reservation returns the stock reservation this order holds
func (o *Order) Reservation() Reservation {
	return Reservation{
		GoodID:   o.GoodID,
		Source:   o.InventorySource,
		Quantity: o.Quantity,
		OrderID:  o.ID,
	}
}

// ShipmentLocation describes the order destination for custody records
func (o *Order) ShipmentLocation() Location {
	a := o.ShippingAddress

	return Location{
		Name:    a.City,
		Address: a.Street + ", " + a.State + ", " + a.Country,
	}
}
