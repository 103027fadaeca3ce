package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

const orderColumns = `id, order_number, buyer_id, buyer_name, buyer_role, seller_id, seller_name, seller_role,
	good_id, inventory_source, product_id, product_name, unit, price_per_unit, quantity, total_amount,
	status, order_date, expected_delivery_date, actual_delivery_date, shipping_address, version,
	created_at, updated_at`

// OrderRepo handles database operations for orders
type OrderRepo struct {
	q      sqlx.ExtContext
	logger logger.Logger
}

// Create inserts a new order into the database
func (r *OrderRepo) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err := r.q.ExecContext(
		ctx,
		query,
		order.ID,
		order.OrderNumber,
		order.BuyerID,
		order.BuyerName,
		order.BuyerRole,
		order.SellerID,
		order.SellerName,
		order.SellerRole,
		order.GoodID,
		order.InventorySource,
		order.ProductID,
		order.ProductName,
		order.Unit,
		order.PricePerUnit,
		order.Quantity,
		order.TotalAmount,
		order.Status,
		order.OrderDate,
		order.ExpectedDeliveryDate,
		order.ActualDeliveryDate,
		order.ShippingAddress,
		order.Version,
		order.CreatedAt,
		order.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves an order by its ID
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order models.Order
	err := sqlx.GetContext(ctx, r.q, &order, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &order, nil
}

// List retrieves orders for a party, newest first
func (r *OrderRepo) List(ctx context.Context, filter OrderFilter) ([]*models.Order, error) {
	var (
		where []string
		args  []interface{}
	)

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch {
	case filter.BuyerID != "" && filter.SellerID != "":
		where = append(where, fmt.Sprintf("(buyer_id = %s OR seller_id = %s)", arg(filter.BuyerID), arg(filter.SellerID)))
	case filter.BuyerID != "":
		where = append(where, "buyer_id = "+arg(filter.BuyerID))
	case filter.SellerID != "":
		where = append(where, "seller_id = "+arg(filter.SellerID))
	}

	if filter.Status != "" {
		where = append(where, "status = "+arg(filter.Status))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %s OFFSET %s`, arg(filter.Limit), arg(filter.Offset))

	var orders []*models.Order
	err := sqlx.SelectContext(ctx, r.q, &orders, query, args...)

	if err != nil {
		r.logger.Error("Failed to list orders", "error", err, "buyerID", filter.BuyerID, "sellerID", filter.SellerID)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return orders, nil
}

// UpdateStatus compare-and-swaps the order status
func (r *OrderRepo) UpdateStatus(ctx context.Context, order *models.Order, expectedStatus models.OrderStatus, expectedVersion int) error {
	query := `
		UPDATE orders
		SET status = $1, version = $2, actual_delivery_date = $3, updated_at = $4
		WHERE id = $5 AND status = $6 AND version = $7
	`

	result, err := r.q.ExecContext(
		ctx,
		query,
		order.Status,
		order.Version,
		order.ActualDeliveryDate,
		order.UpdatedAt,
		order.ID,
		expectedStatus,
		expectedVersion,
	)

	if err != nil {
		r.logger.Error("Failed to update order status", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	n, err := rowsAffected(result)

	if err != nil {
		return err
	}

	if n == 0 {
		return ErrConflict
	}

	return nil
}
