package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/vaidashi/trust-trace-api/internal/config"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New creates a new database connection
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect("postgres", cfg.GetDBConnString())

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", "host", cfg.DB.Host, "database", cfg.DB.Name)

	return Wrap(db, logger), nil
}

// Wrap adopts an existing connection, e.g. one backed by sqlmock in tests
func Wrap(db *sqlx.DB, logger logger.Logger) *Database {
	return &Database{
		DB:     db,
		logger: logger,
	}
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

// RunMigrations creates the schema if it does not exist yet
func (d *Database) RunMigrations(ctx context.Context) error {
	_, err := d.DB.ExecContext(ctx, Schema)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}

// Schema is the full DDL of the service
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id VARCHAR(50) PRIMARY KEY,
	name VARCHAR(200) NOT NULL,
	unit VARCHAR(20) NOT NULL,
	price_per_unit NUMERIC(14, 4) NOT NULL,
	quantity INT NOT NULL CHECK (quantity >= 0),
	farmer_id VARCHAR(50) NOT NULL,
	farmer_name VARCHAR(200) NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'available',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_products_farmer_id ON products(farmer_id);

CREATE TABLE IF NOT EXISTS inventory_lots (
	id VARCHAR(50) PRIMARY KEY,
	product_id VARCHAR(50) NOT NULL,
	product_name VARCHAR(200) NOT NULL,
	owner_id VARCHAR(50) NOT NULL,
	owner_name VARCHAR(200) NOT NULL,
	owner_role VARCHAR(20) NOT NULL,
	supplier_id VARCHAR(50) NOT NULL,
	supplier_name VARCHAR(200) NOT NULL,
	source_order_id VARCHAR(50) NOT NULL,
	batch_number VARCHAR(80) NOT NULL,
	quantity INT NOT NULL CHECK (quantity >= 0),
	unit VARCHAR(20) NOT NULL,
	price_per_unit NUMERIC(14, 4) NOT NULL,
	location VARCHAR(200) NOT NULL DEFAULT '',
	status VARCHAR(20) NOT NULL DEFAULT 'available',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_lots_source_order ON inventory_lots(source_order_id);
CREATE INDEX IF NOT EXISTS idx_lots_owner_id ON inventory_lots(owner_id);

CREATE TABLE IF NOT EXISTS orders (
	id VARCHAR(50) PRIMARY KEY,
	order_number VARCHAR(50) NOT NULL UNIQUE,
	buyer_id VARCHAR(50) NOT NULL,
	buyer_name VARCHAR(200) NOT NULL,
	buyer_role VARCHAR(20) NOT NULL,
	seller_id VARCHAR(50) NOT NULL,
	seller_name VARCHAR(200) NOT NULL,
	seller_role VARCHAR(20) NOT NULL,
	good_id VARCHAR(50) NOT NULL,
	inventory_source VARCHAR(20) NOT NULL,
	product_id VARCHAR(50) NOT NULL,
	product_name VARCHAR(200) NOT NULL,
	unit VARCHAR(20) NOT NULL,
	price_per_unit NUMERIC(14, 4) NOT NULL,
	quantity INT NOT NULL CHECK (quantity > 0),
	total_amount NUMERIC(16, 4) NOT NULL,
	status VARCHAR(20) NOT NULL,
	order_date TIMESTAMPTZ NOT NULL,
	expected_delivery_date TIMESTAMPTZ,
	actual_delivery_date TIMESTAMPTZ,
	shipping_address JSONB NOT NULL,
	version INT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (buyer_id <> seller_id)
);

CREATE INDEX IF NOT EXISTS idx_orders_buyer_status ON orders(buyer_id, status);
CREATE INDEX IF NOT EXISTS idx_orders_seller_status ON orders(seller_id, status);

CREATE TABLE IF NOT EXISTS traceability_records (
	seq BIGSERIAL UNIQUE,
	id VARCHAR(50) PRIMARY KEY,
	product_id VARCHAR(50) NOT NULL,
	order_id VARCHAR(50),
	stage VARCHAR(20) NOT NULL,
	actor_id VARCHAR(50) NOT NULL,
	actor_name VARCHAR(200) NOT NULL,
	actor_role VARCHAR(20) NOT NULL,
	location JSONB NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	action VARCHAR(50) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	temperature DOUBLE PRECISION,
	humidity DOUBLE PRECISION,
	quality_score DOUBLE PRECISION,
	certifications TEXT[],
	verification_status VARCHAR(20) NOT NULL DEFAULT 'pending',
	previous_record_id VARCHAR(50),
	hash VARCHAR(64) NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_trace_product_time ON traceability_records(product_id, timestamp, seq);

CREATE TABLE IF NOT EXISTS outbox_messages (
	id BIGSERIAL PRIMARY KEY,
	event_id VARCHAR(50) NOT NULL UNIQUE,
	aggregate_type VARCHAR(50) NOT NULL,
	aggregate_id VARCHAR(50) NOT NULL,
	event_type VARCHAR(50) NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at TIMESTAMPTZ,
	processing_attempts INT NOT NULL DEFAULT 0,
	last_error TEXT,
	status VARCHAR(20) NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status);
CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id);
`
