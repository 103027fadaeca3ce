package models

import "strings"

// Role is the supply-chain role of an actor
type Role string

const (
	RoleFarmer       Role = "farmer"
	RoleManufacturer Role = "manufacturer"
	RoleDistributor  Role = "distributor"
	RoleRetailer     Role = "retailer"
	RoleConsumer     Role = "consumer"
)

// ParseRole normalises a role string. "customer" is accepted as an alias of consumer.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r == "customer" {
		r = RoleConsumer
	}
	return r, r.Valid()
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleFarmer, RoleManufacturer, RoleDistributor, RoleRetailer, RoleConsumer:
		return true
	}
	return false
}

// CanSell reports whether r may appear as the seller of an order
func (r Role) CanSell() bool {
	switch r {
	case RoleFarmer, RoleManufacturer, RoleDistributor, RoleRetailer:
		return true
	}
	return false
}

// CanBuy reports whether r may appear as the buyer of an order
func (r Role) CanBuy() bool {
	switch r {
	case RoleManufacturer, RoleDistributor, RoleRetailer, RoleConsumer:
		return true
	}
	return false
}

// HomeStage is the stage goods sit in while held by r
func (r Role) HomeStage() Stage {
	switch r {
	case RoleFarmer:
		return StageFarm
	case RoleManufacturer:
		return StageProcessing
	case RoleDistributor:
		return StageDistribution
	case RoleRetailer:
		return StageRetail
	case RoleConsumer:
		return StageConsumer
	}
	return StageFarm
}

// Title returns the capitalised role name used in descriptions
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Stage is the coarse supply-chain phase recorded on a traceability entry
type Stage string

const (
	StageFarm         Stage = "farm"
	StageProcessing   Stage = "processing"
	StageDistribution Stage = "distribution"
	StageRetail       Stage = "retail"
	StageConsumer     Stage = "consumer"
)

// AllStages lists every stage in supply-chain order
var AllStages = []Stage{StageFarm, StageProcessing, StageDistribution, StageRetail, StageConsumer}

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	switch s {
	case StageFarm, StageProcessing, StageDistribution, StageRetail, StageConsumer:
		return true
	}
	return false
}

// VerificationStatus of a traceability record or a whole journey
type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified"
	VerificationPending  VerificationStatus = "pending"
	VerificationFailed   VerificationStatus = "failed"
)

// Valid reports whether v is a known verification status
func (v VerificationStatus) Valid() bool {
	switch v {
	case VerificationVerified, VerificationPending, VerificationFailed:
		return true
	}
	return false
}

// InventorySource identifies which store holds a good
type InventorySource string

const (
	// SourceCatalog is the primary product catalog listed by farmers
	SourceCatalog InventorySource = "catalog"
	// SourceLot is a per-seller inventory lot created by a shipment
	SourceLot InventorySource = "lot"
)

// Valid reports whether s is a known inventory source
func (s InventorySource) Valid() bool {
	return s == SourceCatalog || s == SourceLot
}
