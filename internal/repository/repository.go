package repository

import (
	"context"
	"errors"

	"github.com/vaidashi/trust-trace-api/internal/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDatabase          = errors.New("database error")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("concurrent modification")
)

// OrderFilter selects orders for a listing. When both BuyerID and SellerID are
// set, orders on either side match.
type OrderFilter struct {
	BuyerID  string
	SellerID string
	Status   models.OrderStatus
	Limit    int
	Offset   int
}

// OrderRepository persists orders
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*models.Order, error)
	// UpdateStatus writes order's status, version, and delivery stamp only if the stored
	// row still has expectedStatus and expectedVersion. A lost race returns ErrConflict.
	UpdateStatus(ctx context.Context, order *models.Order, expectedStatus models.OrderStatus, expectedVersion int) error
}

// InventoryRepository reads and mutates on-hand quantities of catalog products and lots
type InventoryRepository interface {
	CreateProduct(ctx context.Context, good *models.Good) error
	// FindGood looks in the catalog first, then in inventory lots
	FindGood(ctx context.Context, goodID string) (*models.Good, error)
	// Decrement removes qty only when at least qty is on hand, else ErrInsufficientStock
	Decrement(ctx context.Context, source models.InventorySource, goodID string, qty int) error
	Increment(ctx context.Context, source models.InventorySource, goodID string, qty int) error
	// CreateLot inserts lot unless one already exists for its source order
	CreateLot(ctx context.Context, lot *models.InventoryLot) (bool, error)
	GetLotBySourceOrder(ctx context.Context, orderID string) (*models.InventoryLot, error)
}

// LedgerRepository is the append-only store of traceability records
type LedgerRepository interface {
	// LockChain serialises appends to one product's chain until the surrounding transaction ends
	LockChain(ctx context.Context, productID string) error
	Append(ctx context.Context, record *models.TraceabilityRecord) error
	Latest(ctx context.Context, productID string) (*models.TraceabilityRecord, error)
	// ListByProduct returns records ordered by timestamp, then insertion order
	ListByProduct(ctx context.Context, productID string) ([]*models.TraceabilityRecord, error)
}

// OutboxRepository handles outbox messages
type OutboxRepository interface {
	Create(ctx context.Context, message *models.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	GetMessage(ctx context.Context, id int64) (*models.OutboxMessage, error)
	MarkAsProcessing(ctx context.Context, id int64) error
	MarkAsCompleted(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64, errorMessage string) error
	MarkAsPending(ctx context.Context, id int64, errorMessage string) error
	// Requeue moves a failed message back to pending. Messages in any other state yield ErrConflict.
	Requeue(ctx context.Context, id int64) error
}

// Store groups the repositories that must change together
type Store interface {
	Orders() OrderRepository
	Inventory() InventoryRepository
	Ledger() LedgerRepository
	Outbox() OutboxRepository
	// WithinTx runs fn against a transactional view of the store. Any error rolls back
	// every write fn made. Nested calls join the outer transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
