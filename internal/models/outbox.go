package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Event types written to the outbox
const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventCustodyRecorded    = "custody_recorded"
)

// Aggregate types written to the outbox
const (
	AggregateOrder   = "order"
	AggregateProduct = "product"
)

// OutboxMessage represents a message to be published from the outbox table
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	EventID            string       `db:"event_id" json:"event_id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OutboxMessageEvent is the envelope published to the broker
type OutboxMessageEvent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// OrderStatusChange is the payload of an order_status_changed event
type OrderStatusChange struct {
	OrderID   string      `json:"order_id"`
	ProductID string      `json:"product_id"`
	OldStatus OrderStatus `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
	ActorID   string      `json:"actor_id"`
	ActorRole Role        `json:"actor_role"`
	Version   int         `json:"version"`
}

func newOutboxMessage(eventType, aggregateType, aggregateID string, data interface{}) (*OutboxMessage, error) {
	raw, err := json.Marshal(data)

	if err != nil {
		return nil, err
	}

	now := GetCurrentTime()
	event := OutboxMessageEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: aggregateID,
		OccurredAt:  now,
		Data:        raw,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		EventID:       event.EventID,
		EventType:     eventType,
		Payload:       payload,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		CreatedAt:     now,
		Status:        OutboxStatusPending,
	}, nil
}

// NewOrderCreatedEvent creates a new order created event
func NewOrderCreatedEvent(order *Order) (*OutboxMessage, error) {
	return newOutboxMessage(EventOrderCreated, AggregateOrder, order.ID, order)
}

// NewOrderStatusChangedEvent creates a new event for order status change
func NewOrderStatusChangedEvent(order *Order, oldStatus OrderStatus, actor Actor) (*OutboxMessage, error) {
	return newOutboxMessage(EventOrderStatusChanged, AggregateOrder, order.ID, OrderStatusChange{
		OrderID:   order.ID,
		ProductID: order.ProductID,
		OldStatus: oldStatus,
		NewStatus: order.Status,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Version:   order.Version,
	})
}

// NewCustodyRecordedEvent creates an event announcing a new traceability record.
// The product id is the aggregate so consumers partition by chain.
func NewCustodyRecordedEvent(record *TraceabilityRecord) (*OutboxMessage, error) {
	return newOutboxMessage(EventCustodyRecorded, AggregateProduct, record.ProductID, record)
}
