package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/trust-trace-api/internal/database"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

// PostgresStore is the sqlx-backed Store
type PostgresStore struct {
	db     *database.Database
	q      sqlx.ExtContext
	tx     *sqlx.Tx
	logger logger.Logger
}

// NewPostgresStore creates a Store on top of db
func NewPostgresStore(db *database.Database, logger logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		q:      db.DB,
		logger: logger,
	}
}

// Orders returns the order repository
func (s *PostgresStore) Orders() OrderRepository {
	return &OrderRepo{q: s.q, logger: s.logger}
}

// Inventory returns the inventory repository
func (s *PostgresStore) Inventory() InventoryRepository {
	return &InventoryRepo{q: s.q, logger: s.logger}
}

// Ledger returns the traceability ledger repository
func (s *PostgresStore) Ledger() LedgerRepository {
	return &LedgerRepo{q: s.q, logger: s.logger}
}

// Outbox returns the outbox repository
func (s *PostgresStore) Outbox() OutboxRepository {
	return &OutboxRepo{q: s.q, logger: s.logger}
}

// WithinTx runs fn in a database transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.DB.BeginTxx(ctx, nil)

	if err != nil {
		s.logger.Error("Failed to begin transaction", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	txStore := &PostgresStore{db: s.db, q: tx, tx: tx, logger: s.logger}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

func rowsAffected(res interface{ RowsAffected() (int64, error) }) (int64, error) {
	n, err := res.RowsAffected()

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return n, nil
}
