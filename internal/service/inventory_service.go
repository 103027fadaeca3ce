package service

import (
	"context"
	"fmt"

	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/internal/repository"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

// InventoryService is the only component that changes on-hand quantities.
// Every method has a Tx variant that runs against a caller-supplied transactional store.
type InventoryService struct {
	store  repository.Store
	logger logger.Logger
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(store repository.Store, logger logger.Logger) *InventoryService {
	return &InventoryService{
		store:  store,
		logger: logger,
	}
}

// Lookup returns the orderable view of goodID
func (s *InventoryService) Lookup(ctx context.Context, goodID string) (*models.Good, error) {
	return s.LookupTx(ctx, s.store, goodID)
}

// LookupTx is Lookup inside tx
func (s *InventoryService) LookupTx(ctx context.Context, tx repository.Store, goodID string) (*models.Good, error) {
	good, err := tx.Inventory().FindGood(ctx, goodID)

	if err != nil {
		return nil, translate(err, fmt.Sprintf("Good %s not found", goodID))
	}

	return good, nil
}

// Reserve takes qty units of goodID from whichever source holds it
func (s *InventoryService) Reserve(ctx context.Context, goodID string, qty int) (*models.Reservation, error) {
	var res *models.Reservation

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		res, err = s.ReserveTx(ctx, tx, goodID, qty)
		return err
	})

	return res, err
}

// ReserveTx is Reserve inside tx
func (s *InventoryService) ReserveTx(ctx context.Context, tx repository.Store, goodID string, qty int) (*models.Reservation, error) {
	if qty <= 0 {
		return nil, apperrors.NewInvalidInputError("Quantity must be positive")
	}

	good, err := s.LookupTx(ctx, tx, goodID)

	if err != nil {
		return nil, err
	}

	if err := tx.Inventory().Decrement(ctx, good.Source, good.ID, qty); err != nil {
		s.logger.Warn("Reservation rejected", "goodID", goodID, "requested", qty, "error", err)
		return nil, translate(err, fmt.Sprintf("Good %s not found", goodID))
	}

	s.logger.Debug("Stock reserved", "goodID", goodID, "source", good.Source, "quantity", qty)

	return &models.Reservation{
		GoodID:   good.ID,
		Source:   good.Source,
		Quantity: qty,
	}, nil
}

// Restore returns a reservation to the source it was taken from
func (s *InventoryService) Restore(ctx context.Context, r models.Reservation) error {
	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		return s.RestoreTx(ctx, tx, r)
	})
}

// RestoreTx is Restore inside tx
func (s *InventoryService) RestoreTx(ctx context.Context, tx repository.Store, r models.Reservation) error {
	if r.Quantity <= 0 || !r.Source.Valid() {
		return apperrors.NewInvalidInputError("Invalid reservation")
	}

	if err := tx.Inventory().Increment(ctx, r.Source, r.GoodID, r.Quantity); err != nil {
		s.logger.Error("Failed to restore stock", "goodID", r.GoodID, "source", r.Source, "error", err)
		return translate(err, fmt.Sprintf("Good %s not found", r.GoodID))
	}

	s.logger.Info("Stock restored", "goodID", r.GoodID, "source", r.Source, "quantity", r.Quantity, "orderID", r.OrderID)
	return nil
}

// Materialize creates a lot owned by owner. Repeating it for the same source order
// returns the existing lot and created=false.
func (s *InventoryService) Materialize(ctx context.Context, owner models.Actor, d models.LotDescriptor, qty int) (*models.InventoryLot, bool, error) {
	var (
		lot     *models.InventoryLot
		created bool
	)

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		lot, created, err = s.MaterializeTx(ctx, tx, owner, d, qty)
		return err
	})

	return lot, created, err
}

// MaterializeTx is Materialize inside tx
func (s *InventoryService) MaterializeTx(ctx context.Context, tx repository.Store, owner models.Actor, d models.LotDescriptor, qty int) (*models.InventoryLot, bool, error) {
	if qty <= 0 || d.SourceOrderID == "" {
		return nil, false, apperrors.NewInvalidInputError("A lot needs a positive quantity and a source order")
	}

	lot := models.NewInventoryLot(owner, d, qty)
	created, err := tx.Inventory().CreateLot(ctx, lot)

	if err != nil {
		return nil, false, translate(err, "")
	}

	if !created {
		existing, err := tx.Inventory().GetLotBySourceOrder(ctx, d.SourceOrderID)
		if err != nil {
			return nil, false, translate(err, "Lot not found")
		}
		s.logger.Info("Lot already materialized", "lotID", existing.ID, "sourceOrderID", d.SourceOrderID)
		return existing, false, nil
	}

	s.logger.Info("Lot materialized",
		"lotID", lot.ID,
		"ownerID", owner.ID,
		"productID", d.ProductID,
		"quantity", qty,
		"batch", d.BatchNumber)

	return lot, true, nil
}

// OnHand returns the good with its current on-hand quantity
func (s *InventoryService) OnHand(ctx context.Context, goodID string) (*models.Good, error) {
	return s.Lookup(ctx, goodID)
}
