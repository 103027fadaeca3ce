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

const outboxColumns = `id, event_id, aggregate_type, aggregate_id, event_type, payload,
	created_at, processed_at, processing_attempts, last_error, status`

// OutboxRepo handles database operations for outbox messages
type OutboxRepo struct {
	q      sqlx.ExtContext
	logger logger.Logger
}

// Create inserts a new outbox message into the database
func (r *OutboxRepo) Create(ctx context.Context, message *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (
			event_id, aggregate_type, aggregate_id, event_type, payload,
			created_at, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		) RETURNING id
	`

	var id int64

	err := r.q.QueryRowxContext(
		ctx,
		query,
		message.EventID,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.CreatedAt,
		message.Status,
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to create outbox message", "error", err, "eventType", message.EventType)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// GetPendingMessages retrieves pending outbox messages, oldest first
func (r *OutboxRepo) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	var messages []*models.OutboxMessage

	err := sqlx.SelectContext(ctx, r.q, &messages, query, models.OutboxStatusPending, limit)

	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// GetMessage retrieves an outbox message by ID
func (r *OutboxRepo) GetMessage(ctx context.Context, id int64) (*models.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE id = $1`

	var message models.OutboxMessage

	err := sqlx.GetContext(ctx, r.q, &message, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get outbox message", "error", err, "messageID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &message, nil
}

func (r *OutboxRepo) exec(ctx context.Context, op string, id int64, query string, args ...interface{}) (int64, error) {
	result, err := r.q.ExecContext(ctx, query, args...)

	if err != nil {
		r.logger.Error("Failed to "+op, "error", err, "messageID", id)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return rowsAffected(result)
}

// MarkAsProcessing updates the status of an outbox message to processing
func (r *OutboxRepo) MarkAsProcessing(ctx context.Context, id int64) error {
	_, err := r.exec(ctx, "mark outbox message as processing", id, `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = processing_attempts + 1
		WHERE id = $2
	`, models.OutboxStatusProcessing, id)

	return err
}

// MarkAsCompleted updates the status of an outbox message to completed
func (r *OutboxRepo) MarkAsCompleted(ctx context.Context, id int64) error {
	_, err := r.exec(ctx, "mark outbox message as completed", id, `
		UPDATE outbox_messages
		SET status = $1, processed_at = $2, last_error = NULL
		WHERE id = $3
	`, models.OutboxStatusCompleted, models.GetCurrentTime(), id)

	return err
}

// MarkAsFailed parks an outbox message until it is requeued
func (r *OutboxRepo) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	_, err := r.exec(ctx, "mark outbox message as failed", id, `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3
	`, models.OutboxStatusFailed, errorMessage, id)

	return err
}

// MarkAsPending returns a message to the queue after a failed attempt
func (r *OutboxRepo) MarkAsPending(ctx context.Context, id int64, errorMessage string) error {
	_, err := r.exec(ctx, "mark outbox message as pending", id, `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3
	`, models.OutboxStatusPending, errorMessage, id)

	return err
}

// Requeue resets a failed message so the processor picks it up again
func (r *OutboxRepo) Requeue(ctx context.Context, id int64) error {
	n, err := r.exec(ctx, "requeue outbox message", id, `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = 0, last_error = NULL
		WHERE id = $2 AND status = $3
	`, models.OutboxStatusPending, id, models.OutboxStatusFailed)

	if err != nil {
		return err
	}

	if n == 1 {
		return nil
	}

	if _, err := r.GetMessage(ctx, id); err != nil {
		return err
	}

	return ErrConflict
}
