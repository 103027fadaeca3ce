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

const recordColumns = `id, product_id, order_id, stage, actor_id, actor_name, actor_role, location,
	timestamp, action, description, temperature, humidity, quality_score, certifications,
	verification_status, previous_record_id, hash, metadata, created_at`

// LedgerRepo handles database operations for traceability records
type LedgerRepo struct {
	q      sqlx.ExtContext
	logger logger.Logger
}

// LockChain takes a transaction-scoped advisory lock keyed by the product id
func (r *LedgerRepo) LockChain(ctx context.Context, productID string) error {
	_, err := r.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, productID)

	if err != nil {
		r.logger.Error("Failed to lock product chain", "error", err, "productID", productID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// Append inserts a record. Records are never updated or deleted.
func (r *LedgerRepo) Append(ctx context.Context, rec *models.TraceabilityRecord) error {
	query := `
		INSERT INTO traceability_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := r.q.ExecContext(ctx, query,
		rec.ID, rec.ProductID, rec.OrderID, rec.Stage, rec.ActorID, rec.ActorName, rec.ActorRole,
		rec.Location, rec.Timestamp, rec.Action, rec.Description, rec.Temperature, rec.Humidity,
		rec.QualityScore, rec.Certifications, rec.VerificationStatus, rec.PreviousRecordID,
		rec.Hash, rec.Metadata, rec.CreatedAt)

	if err != nil {
		r.logger.Error("Failed to append traceability record", "error", err, "productID", rec.ProductID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// Latest returns the newest record of the product's chain
func (r *LedgerRepo) Latest(ctx context.Context, productID string) (*models.TraceabilityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM traceability_records
		WHERE product_id = $1
		ORDER BY timestamp DESC, seq DESC
		LIMIT 1`

	var rec models.TraceabilityRecord
	err := sqlx.GetContext(ctx, r.q, &rec, query, productID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get latest record", "error", err, "productID", productID)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &rec, nil
}

// ListByProduct returns the product's chain, oldest first
func (r *LedgerRepo) ListByProduct(ctx context.Context, productID string) ([]*models.TraceabilityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM traceability_records
		WHERE product_id = $1
		ORDER BY timestamp ASC, seq ASC`

	var records []*models.TraceabilityRecord
	err := sqlx.SelectContext(ctx, r.q, &records, query, productID)

	if err != nil {
		r.logger.Error("Failed to list records", "error", err, "productID", productID)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return records, nil
}
