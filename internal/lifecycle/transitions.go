// Package lifecycle holds the order transition graph, who may traverse each edge,
// and which side effects each accepted edge triggers.
package lifecycle

import (
	"fmt"

	"github.com/vaidashi/trust-trace-api/internal/models"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
)

// Relationship of a caller to an order
type Relationship int

const (
	RelationshipNeither Relationship = iota
	RelationshipBuyer
	RelationshipSeller
)

func (r Relationship) String() string {
	switch r {
	case RelationshipBuyer:
		return "buyer"
	case RelationshipSeller:
		return "seller"
	default:
		return "neither"
	}
}

// Effect is a side effect executed together with an accepted transition
type Effect int

const (
	// EffectRestoreStock returns the order's reservation to its inventory source
	EffectRestoreStock Effect = iota + 1
	// EffectMaterializeLot creates a downstream lot in the buyer's inventory
	EffectMaterializeLot
	// EffectStampDelivery sets the actual delivery timestamp
	EffectStampDelivery
	// EffectAppendCustody appends one traceability record
	EffectAppendCustody
)

func (e Effect) String() string {
	switch e {
	case EffectRestoreStock:
		return "restore_stock"
	case EffectMaterializeLot:
		return "materialize_lot"
	case EffectStampDelivery:
		return "stamp_delivery"
	case EffectAppendCustody:
		return "append_custody"
	}
	return fmt.Sprintf("effect(%d)", int(e))
}

// Edge is a directed status change
type Edge struct {
	From models.OrderStatus
	To   models.OrderStatus
}

type rule struct {
	actors  []Relationship
	effects []Effect
}

func (r rule) permits(rel Relationship) bool {
	for _, a := range r.actors {
		if a == rel {
			return true
		}
	}
	return false
}

var seller = []Relationship{RelationshipSeller}

// graph is the only definition of legal order transitions.
var graph = map[Edge]rule{
	{models.OrderStatusPending, models.OrderStatusConfirmed}: {
		actors:  seller,
		effects: []Effect{EffectAppendCustody},
	},
	{models.OrderStatusPending, models.OrderStatusCancelled}: {
		actors:  []Relationship{RelationshipSeller, RelationshipBuyer},
		effects: []Effect{EffectRestoreStock, EffectAppendCustody},
	},
	{models.OrderStatusConfirmed, models.OrderStatusShipped}: {
		actors:  seller,
		effects: []Effect{EffectMaterializeLot, EffectAppendCustody},
	},
	{models.OrderStatusConfirmed, models.OrderStatusCancelled}: {
		actors:  seller,
		effects: []Effect{EffectAppendCustody},
	},
	{models.OrderStatusShipped, models.OrderStatusDelivered}: {
		actors:  seller,
		effects: []Effect{EffectStampDelivery, EffectAppendCustody},
	},
}

// IsEdge reports whether from→to is on the transition graph
func IsEdge(from, to models.OrderStatus) bool {
	_, ok := graph[Edge{from, to}]
	return ok
}

// NextStatuses lists the statuses rel may move an order to from the given status
func NextStatuses(from models.OrderStatus, rel Relationship) []models.OrderStatus {
	var out []models.OrderStatus

	for _, to := range []models.OrderStatus{
		models.OrderStatusConfirmed,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
		models.OrderStatusCancelled,
	} {
		if r, ok := graph[Edge{from, to}]; ok && r.permits(rel) {
			out = append(out, to)
		}
	}

	return out
}

// mayEverRequest reports whether rel is allowed to request `to` from any state
func mayEverRequest(rel Relationship, to models.OrderStatus) bool {
	for e, r := range graph {
		if e.To == to && r.permits(rel) {
			return true
		}
	}
	return false
}

// ResolveRelationship decides once whether actor is the order's buyer, seller, or neither.
// Both the identity and the role recorded on that side of the order must match.
func ResolveRelationship(o *models.Order, actor models.Actor) Relationship {
	switch {
	case actor.ID == "":
		return RelationshipNeither
	case actor.ID == o.SellerID && actor.Role == o.SellerRole:
		return RelationshipSeller
	case actor.ID == o.BuyerID && actor.Role == o.BuyerRole:
		return RelationshipBuyer
	}
	return RelationshipNeither
}

// Plan is an authorised transition and everything it must do
type Plan struct {
	Edge         Edge
	Relationship Relationship
	Effects      []Effect
	Stage        models.Stage
	Description  string
}

// Has reports whether the plan includes effect e
func (p *Plan) Has(e Effect) bool {
	for _, x := range p.Effects {
		if x == e {
			return true
		}
	}
	return false
}

// Decide authorises actor moving order o to requested and returns the resulting plan.
func Decide(o *models.Order, actor models.Actor, requested models.OrderStatus) (*Plan, error) {
	rel := ResolveRelationship(o, actor)

	if rel == RelationshipNeither {
		return nil, apperrors.NewUnauthorizedError("Not authorized to update this order").
			WithContext("orderID", o.ID)
	}

	if !requested.Valid() {
		return nil, apperrors.NewInvalidTransitionError(fmt.Sprintf("Invalid status %q", requested))
	}

	if requested == o.Status {
		return nil, apperrors.NewInvalidTransitionError(fmt.Sprintf("Order is already %s", o.Status))
	}

	edge := Edge{From: o.Status, To: requested}
	r, ok := graph[edge]

	if !ok {
		// a buyer's only move is an early cancel, so later states fail the precondition
		if rel == RelationshipBuyer && mayEverRequest(rel, requested) {
			return nil, apperrors.NewPreconditionFailedError(
				fmt.Sprintf("A buyer cannot set %s on an order that is %s", requested, o.Status))
		}
		return nil, apperrors.NewInvalidTransitionError(
			fmt.Sprintf("Cannot move order from %s to %s", o.Status, requested))
	}

	if !r.permits(rel) {
		if mayEverRequest(rel, requested) {
			return nil, apperrors.NewPreconditionFailedError(
				fmt.Sprintf("A %s cannot set %s on an order that is %s", rel, requested, o.Status))
		}
		return nil, apperrors.NewInvalidTransitionError(
			fmt.Sprintf("A %s cannot set an order to %s", rel, requested))
	}

	effects := make([]Effect, 0, len(r.effects))
	for _, e := range r.effects {
		if e == EffectMaterializeLot && !materializesLot(o) {
			continue
		}
		effects = append(effects, e)
	}

	stage, description := InferStage(o, o.Status, requested)

	return &Plan{
		Edge:         edge,
		Relationship: rel,
		Effects:      effects,
		Stage:        stage,
		Description:  description,
	}, nil
}

// materializesLot holds for the farm-to-factory hop, the one shipment that creates inventory
func materializesLot(o *models.Order) bool {
	return o.SellerRole == models.RoleFarmer && o.BuyerRole == models.RoleManufacturer
}
