package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus is the availability of an inventory lot
type LotStatus string

const (
	LotStatusAvailable LotStatus = "available"
	LotStatusReserved  LotStatus = "reserved"
	LotStatusSold      LotStatus = "sold"
	LotStatusExpired   LotStatus = "expired"
)

// Good is the orderable view of either a catalog product or an inventory lot
type Good struct {
	ID           string          `db:"id" json:"id"`
	Source       InventorySource `db:"source" json:"source"`
	ProductID    string          `db:"product_id" json:"product_id"`
	Name         string          `db:"name" json:"name"`
	Unit         string          `db:"unit" json:"unit"`
	PricePerUnit decimal.Decimal `db:"price_per_unit" json:"price_per_unit"`
	Quantity     int             `db:"quantity" json:"quantity"`
	SellerID     string          `db:"seller_id" json:"seller_id"`
	SellerName   string          `db:"seller_name" json:"seller_name"`
	SellerRole   Role            `db:"seller_role" json:"seller_role"`
	Status       string          `db:"status" json:"status"`
}

// Available reports whether the good can be ordered
func (g *Good) Available() bool {
	return g.Status == string(LotStatusAvailable)
}

// InventoryLot is a batch of goods held by one owner
type InventoryLot struct {
	ID            string          `db:"id" json:"id"`
	ProductID     string          `db:"product_id" json:"product_id"`
	ProductName   string          `db:"product_name" json:"product_name"`
	OwnerID       string          `db:"owner_id" json:"owner_id"`
	OwnerName     string          `db:"owner_name" json:"owner_name"`
	OwnerRole     Role            `db:"owner_role" json:"owner_role"`
	SupplierID    string          `db:"supplier_id" json:"supplier_id"`
	SupplierName  string          `db:"supplier_name" json:"supplier_name"`
	SourceOrderID string          `db:"source_order_id" json:"source_order_id"`
	BatchNumber   string          `db:"batch_number" json:"batch_number"`
	Quantity      int             `db:"quantity" json:"quantity"`
	Unit          string          `db:"unit" json:"unit"`
	PricePerUnit  decimal.Decimal `db:"price_per_unit" json:"price_per_unit"`
	Location      string          `db:"location" json:"location"`
	Status        LotStatus       `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// AsGood returns the orderable view of the lot
func (l *InventoryLot) AsGood() *Good {
	return &Good{
		ID:           l.ID,
		Source:       SourceLot,
		ProductID:    l.ProductID,
		Name:         l.ProductName,
		Unit:         l.Unit,
		PricePerUnit: l.PricePerUnit,
		Quantity:     l.Quantity,
		SellerID:     l.OwnerID,
		SellerName:   l.OwnerName,
		SellerRole:   l.OwnerRole,
		Status:       string(l.Status),
	}
}

// Reservation is stock taken from a good on behalf of an order
type Reservation struct {
	GoodID   string          `json:"good_id"`
	Source   InventorySource `json:"source"`
	Quantity int             `json:"quantity"`
	OrderID  string          `json:"order_id,omitempty"`
}

// LotDescriptor describes a lot to be materialized from a shipped order
type LotDescriptor struct {
	ProductID     string
	ProductName   string
	SupplierID    string
	SupplierName  string
	SourceOrderID string
	BatchNumber   string
	Unit          string
	PricePerUnit  decimal.Decimal
	Location      string
}

// NewInventoryLot builds an available lot for owner
func NewInventoryLot(owner Actor, d LotDescriptor, quantity int) *InventoryLot {
	now := GetCurrentTime()

	return &InventoryLot{
		ID:            GenerateID("lot"),
		ProductID:     d.ProductID,
		ProductName:   d.ProductName,
		OwnerID:       owner.ID,
		OwnerName:     owner.Name,
		OwnerRole:     owner.Role,
		SupplierID:    d.SupplierID,
		SupplierName:  d.SupplierName,
		SourceOrderID: d.SourceOrderID,
		BatchNumber:   d.BatchNumber,
		Quantity:      quantity,
		Unit:          d.Unit,
		PricePerUnit:  d.PricePerUnit,
		Location:      d.Location,
		Status:        LotStatusAvailable,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
