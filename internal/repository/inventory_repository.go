package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

const catalogGoodQuery = `
	SELECT id, 'catalog' AS source, id AS product_id, name, unit, price_per_unit, quantity,
		farmer_id AS seller_id, farmer_name AS seller_name, 'farmer' AS seller_role, status
	FROM products
	WHERE id = $1
`

const lotGoodQuery = `
	SELECT id, 'lot' AS source, product_id, product_name AS name, unit, price_per_unit, quantity,
		owner_id AS seller_id, owner_name AS seller_name, owner_role AS seller_role, status
	FROM inventory_lots
	WHERE id = $1
`

const lotColumns = `id, product_id, product_name, owner_id, owner_name, owner_role, supplier_id,
	supplier_name, source_order_id, batch_number, quantity, unit, price_per_unit, location, status,
	created_at, updated_at`

// InventoryRepo handles database operations for catalog products and inventory lots
type InventoryRepo struct {
	q      sqlx.ExtContext
	logger logger.Logger
}

func tableFor(source models.InventorySource) (string, error) {
	switch source {
	case models.SourceCatalog:
		return "products", nil
	case models.SourceLot:
		return "inventory_lots", nil
	}
	return "", fmt.Errorf("unknown inventory source %q", source)
}

// CreateProduct inserts a catalog product. Catalog goods are always listed by farmers.
func (r *InventoryRepo) CreateProduct(ctx context.Context, good *models.Good) error {
	query := `
		INSERT INTO products (id, name, unit, price_per_unit, quantity, farmer_id, farmer_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	status := good.Status
	if status == "" {
		status = string(models.LotStatusAvailable)
	}

	_, err := r.q.ExecContext(ctx, query,
		good.ID, good.Name, good.Unit, good.PricePerUnit, good.Quantity,
		good.SellerID, good.SellerName, status)

	if err != nil {
		r.logger.Error("Failed to create product", "error", err, "productID", good.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// FindGood resolves goodID against the catalog, then against inventory lots
func (r *InventoryRepo) FindGood(ctx context.Context, goodID string) (*models.Good, error) {
	for _, query := range []string{catalogGoodQuery, lotGoodQuery} {
		var good models.Good
		err := sqlx.GetContext(ctx, r.q, &good, query, goodID)

		if err == nil {
			return &good, nil
		}

		if !errors.Is(err, sql.ErrNoRows) {
			r.logger.Error("Failed to look up good", "error", err, "goodID", goodID)
			return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
	}

	return nil, ErrNotFound
}

// Decrement atomically takes qty from the good when enough is on hand
func (r *InventoryRepo) Decrement(ctx context.Context, source models.InventorySource, goodID string, qty int) error {
	table, err := tableFor(source)
	if err != nil {
		return err
	}

	query := `UPDATE ` + table + ` SET quantity = quantity - $1, updated_at = NOW() WHERE id = $2 AND quantity >= $1`

	result, err := r.q.ExecContext(ctx, query, qty, goodID)

	if err != nil {
		r.logger.Error("Failed to decrement stock", "error", err, "goodID", goodID, "source", source)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	n, err := rowsAffected(result)

	if err != nil {
		return err
	}

	if n == 0 {
		return ErrInsufficientStock
	}

	return nil
}

// Increment returns qty to the good
func (r *InventoryRepo) Increment(ctx context.Context, source models.InventorySource, goodID string, qty int) error {
	table, err := tableFor(source)
	if err != nil {
		return err
	}

	query := `UPDATE ` + table + ` SET quantity = quantity + $1, updated_at = NOW() WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, qty, goodID)

	if err != nil {
		r.logger.Error("Failed to increment stock", "error", err, "goodID", goodID, "source", source)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	n, err := rowsAffected(result)

	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// CreateLot inserts lot. It reports false when a lot for the same source order already exists.
func (r *InventoryRepo) CreateLot(ctx context.Context, lot *models.InventoryLot) (bool, error) {
	query := `
		INSERT INTO inventory_lots (` + lotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (source_order_id) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query,
		lot.ID, lot.ProductID, lot.ProductName, lot.OwnerID, lot.OwnerName, lot.OwnerRole,
		lot.SupplierID, lot.SupplierName, lot.SourceOrderID, lot.BatchNumber, lot.Quantity,
		lot.Unit, lot.PricePerUnit, lot.Location, lot.Status, lot.CreatedAt, lot.UpdatedAt)

	if err != nil {
		r.logger.Error("Failed to create inventory lot", "error", err, "sourceOrderID", lot.SourceOrderID)
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	n, err := rowsAffected(result)

	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// GetLotBySourceOrder retrieves the lot materialised from orderID
func (r *InventoryRepo) GetLotBySourceOrder(ctx context.Context, orderID string) (*models.InventoryLot, error) {
	query := `SELECT ` + lotColumns + ` FROM inventory_lots WHERE source_order_id = $1`

	var lot models.InventoryLot
	err := sqlx.GetContext(ctx, r.q, &lot, query, orderID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get lot by source order", "error", err, "orderID", orderID)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &lot, nil
}
