package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaidashi/trust-trace-api/internal/lifecycle"
	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/internal/repository"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
	"github.com/vaidashi/trust-trace-api/pkg/retry"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	// transitionAttempts bounds how often a transition is re-read and re-validated after losing a race
	transitionAttempts = 3
)

// CreateOrderInput is what a buyer supplies to place an order
type CreateOrderInput struct {
	GoodID               string
	Quantity             int
	ShippingAddress      models.Address
	ExpectedDeliveryDate *time.Time
}

// OrderService handles order-related operations
type OrderService struct {
	store     repository.Store
	inventory *InventoryService
	ledger    *TraceabilityService
	logger    logger.Logger
	tracer    trace.Tracer
	retryCfg  *retry.RetryConfig
}

// NewOrderService creates a new OrderService
func NewOrderService(
	store repository.Store,
	inventory *InventoryService,
	ledger *TraceabilityService,
	logger logger.Logger,
) *OrderService {
	return &OrderService{
		store:     store,
		inventory: inventory,
		ledger:    ledger,
		logger:    logger,
		tracer:    defaultTracer(),
		retryCfg: &retry.RetryConfig{
			MaxAttempts:     transitionAttempts,
			BackoffStrategy: retry.NewConflictBackoff(),
			Logger:          logger,
			RetryableErrors: []error{apperrors.ErrConcurrencyConflict},
		},
	}
}

// CreateOrder reserves stock and records a pending order in one transaction
func (s *OrderService) CreateOrder(ctx context.Context, buyer models.Actor, in CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(buyer, in); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, s.tracer, "order.create",
		attribute.String("good.id", in.GoodID),
		attribute.Int("order.quantity", in.Quantity),
		attribute.String("buyer.id", buyer.ID))

	var order *models.Order

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		good, err := s.inventory.LookupTx(ctx, tx, in.GoodID)
		if err != nil {
			return err
		}

		if good.SellerID == buyer.ID {
			return apperrors.NewInvalidInputError("Cannot order your own goods")
		}

		if !good.SellerRole.CanSell() {
			return apperrors.NewInvalidInputError("Good is not for sale")
		}

		if !good.Available() {
			return apperrors.NewPreconditionFailedError(fmt.Sprintf("Good %s is %s", good.ID, good.Status))
		}

		res, err := s.inventory.ReserveTx(ctx, tx, good.ID, in.Quantity)
		if err != nil {
			return err
		}

		order = models.NewOrder(buyer, good, res.Quantity, in.ShippingAddress)
		order.ExpectedDeliveryDate = in.ExpectedDeliveryDate

		if err := tx.Orders().Create(ctx, order); err != nil {
			return translate(err, "")
		}

		msg, err := models.NewOrderCreatedEvent(order)
		if err != nil {
			s.logger.Error("Failed to create outbox message", "error", err)
			return apperrors.NewInternalError("Failed to create outbox message")
		}

		return translate(tx.Outbox().Create(ctx, msg), "")
	})
	endSpan(span, err)

	if err != nil {
		s.logger.Warn("Order creation failed", "buyerID", buyer.ID, "goodID", in.GoodID, "error", err)
		return nil, err
	}

	s.logger.Info("Order created",
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"buyerID", order.BuyerID,
		"sellerID", order.SellerID,
		"goodID", order.GoodID,
		"quantity", order.Quantity,
		"total", order.TotalAmount.String())

	return order, nil
}

func validateCreate(buyer models.Actor, in CreateOrderInput) error {
	if buyer.ID == "" || !buyer.Role.CanBuy() {
		return apperrors.NewUnauthorizedError(fmt.Sprintf("Role %q cannot place orders", buyer.Role))
	}
	if in.GoodID == "" {
		return apperrors.NewInvalidInputError("good_id is required")
	}
	if in.Quantity <= 0 {
		return apperrors.NewInvalidInputError("Quantity must be positive")
	}
	if in.ShippingAddress.City == "" || in.ShippingAddress.Country == "" {
		return apperrors.NewInvalidInputError("Shipping address needs at least a city and a country")
	}
	return nil
}

// Transition moves an order to requested on behalf of actor. The status change, its
// inventory effect, the custody record, and the outbox event commit together. A lost
// race is retried from a fresh read.
func (s *OrderService) Transition(ctx context.Context, orderID string, actor models.Actor, requested models.OrderStatus) (*models.Order, error) {
	ctx, span := startSpan(ctx, s.tracer, "order.transition",
		attribute.String("order.id", orderID),
		attribute.String("order.requested_status", string(requested)),
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)))

	var (
		updated *models.Order
		plan    *lifecycle.Plan
	)

	err := retry.Retry(ctx, func(ctx context.Context) error {
		var err error
		updated, plan, err = s.transitionOnce(ctx, orderID, actor, requested)
		return err
	}, s.retryCfg)
	endSpan(span, err)

	if err != nil {
		s.logger.Warn("Order transition rejected",
			"orderID", orderID,
			"actorID", actor.ID,
			"requested", requested,
			"error", err)
		return nil, err
	}

	if plan.Has(lifecycle.EffectAppendCustody) {
		s.ledger.Cache().Invalidate(updated.ProductID)
	}

	s.logger.Info("Order transitioned",
		"orderID", updated.ID,
		"from", plan.Edge.From,
		"to", plan.Edge.To,
		"by", plan.Relationship.String(),
		"version", updated.Version)

	return updated, nil
}

func (s *OrderService) transitionOnce(ctx context.Context, orderID string, actor models.Actor, requested models.OrderStatus) (*models.Order, *lifecycle.Plan, error) {
	current, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, translate(err, "Order not found")
	}

	plan, err := lifecycle.Decide(current, actor, requested)
	if err != nil {
		return nil, nil, err
	}

	now := models.GetCurrentTime()
	next := *current
	next.Status = requested
	next.Version = current.Version + 1
	next.UpdatedAt = now

	if plan.Has(lifecycle.EffectStampDelivery) {
		next.ActualDeliveryDate = &now
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Orders().UpdateStatus(ctx, &next, current.Status, current.Version); err != nil {
			return translate(err, "Order not found")
		}

		for _, effect := range plan.Effects {
			if err := s.apply(ctx, tx, effect, current, &next, actor, plan); err != nil {
				return err
			}
		}

		msg, err := models.NewOrderStatusChangedEvent(&next, current.Status, actor)
		if err != nil {
			s.logger.Error("Failed to create outbox message", "error", err)
			return apperrors.NewInternalError("Failed to create outbox message")
		}

		return translate(tx.Outbox().Create(ctx, msg), "")
	})

	if err != nil {
		return nil, nil, err
	}

	return &next, plan, nil
}

func (s *OrderService) apply(ctx context.Context, tx repository.Store, effect lifecycle.Effect, before, after *models.Order, actor models.Actor, plan *lifecycle.Plan) error {
	switch effect {
	case lifecycle.EffectRestoreStock:
		return s.inventory.RestoreTx(ctx, tx, before.Reservation())

	case lifecycle.EffectMaterializeLot:
		_, _, err := s.inventory.MaterializeTx(ctx, tx, buyerOf(after), lotFrom(after), after.Quantity)
		return err

	case lifecycle.EffectStampDelivery:
		// already on the row written by the status update
		return nil

	case lifecycle.EffectAppendCustody:
		return s.ledger.AppendTx(ctx, tx, custodyRecord(after, before.Status, actor, plan))
	}

	return apperrors.NewInternalError(fmt.Sprintf("Unknown transition effect %s", effect))
}

func buyerOf(o *models.Order) models.Actor {
	return models.Actor{ID: o.BuyerID, Name: o.BuyerName, Role: o.BuyerRole}
}

func lotFrom(o *models.Order) models.LotDescriptor {
	return models.LotDescriptor{
		ProductID:     o.ProductID,
		ProductName:   o.ProductName,
		SupplierID:    o.SellerID,
		SupplierName:  o.SellerName,
		SourceOrderID: o.ID,
		BatchNumber:   "BATCH-" + o.OrderNumber,
		Unit:          o.Unit,
		PricePerUnit:  o.PricePerUnit,
		Location:      o.ShippingAddress.City,
	}
}

func custodyRecord(o *models.Order, from models.OrderStatus, actor models.Actor, plan *lifecycle.Plan) *models.TraceabilityRecord {
	orderID := o.ID

	return &models.TraceabilityRecord{
		ProductID:          o.ProductID,
		OrderID:            &orderID,
		Stage:              plan.Stage,
		ActorID:            actor.ID,
		ActorName:          actor.Name,
		ActorRole:          actor.Role,
		Location:           o.ShipmentLocation(),
		Timestamp:          o.UpdatedAt,
		Action:             string(o.Status),
		Description:        plan.Description,
		VerificationStatus: models.VerificationPending,
		Metadata: models.Metadata{
			"order_number": o.OrderNumber,
			"from_status":  string(from),
			"quantity":     o.Quantity,
			"unit":         o.Unit,
			"version":      o.Version,
		},
	}
}

// GetOrder returns an order to its buyer or seller
func (s *OrderService) GetOrder(ctx context.Context, actor models.Actor, id string) (*models.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "Order not found")
	}

	if lifecycle.ResolveRelationship(order, actor) == lifecycle.RelationshipNeither {
		return nil, apperrors.NewUnauthorizedError("Not authorized to view this order")
	}

	return order, nil
}

// ListOrders lists the orders actor takes part in. Farmers only sell and consumers only
// buy; every other role sees both sides.
func (s *OrderService) ListOrders(ctx context.Context, actor models.Actor, status models.OrderStatus, limit, offset int) ([]*models.Order, error) {
	if actor.ID == "" || !actor.Role.Valid() {
		return nil, apperrors.NewUnauthorizedError("Unknown caller")
	}
	if status != "" && !status.Valid() {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("Invalid status %q", status))
	}

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	filter := repository.OrderFilter{Status: status, Limit: limit, Offset: offset}

	if actor.Role.CanBuy() {
		filter.BuyerID = actor.ID
	}
	if actor.Role.CanSell() {
		filter.SellerID = actor.ID
	}

	orders, err := s.store.Orders().List(ctx, filter)
	if err != nil {
		return nil, translate(err, "")
	}

	if orders == nil {
		orders = []*models.Order{}
	}

	return orders, nil
}
