package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

// JourneyInvalidator drops cached journeys of a product
type JourneyInvalidator interface {
	Invalidate(productID string)
}

// SupplyChainEventsHandler consumes order and custody events. Every instance keeps its own
// journey cache, so events written by any instance evict the affected product here too.
type SupplyChainEventsHandler struct {
	journeys JourneyInvalidator
	logger   logger.Logger
}

// NewSupplyChainEventsHandler creates a new SupplyChainEventsHandler
func NewSupplyChainEventsHandler(journeys JourneyInvalidator, logger logger.Logger) *SupplyChainEventsHandler {
	return &SupplyChainEventsHandler{journeys: journeys, logger: logger}
}

// HandleMessage handles one event from Kafka
func (h *SupplyChainEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
	return h.Handle(ctx, msg.Value)
}

// Handle decodes an event envelope and applies it
func (h *SupplyChainEventsHandler) Handle(_ context.Context, body []byte) error {
	var event models.OutboxMessageEvent

	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("Failed to unmarshal event", "error", err)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	h.logger.Debug("Handling supply chain event",
		"eventType", event.EventType,
		"eventID", event.EventID,
		"aggregateID", event.AggregateID,
		"occurredAt", event.OccurredAt)

	switch event.EventType {
	case models.EventCustodyRecorded:
		h.journeys.Invalidate(event.AggregateID)
		return nil
	case models.EventOrderStatusChanged:
		return h.handleOrderStatusChanged(event)
	case models.EventOrderCreated:
		h.logger.Info("Order placed", "orderID", event.AggregateID, "eventID", event.EventID)
		return nil
	default:
		h.logger.Warn("Unknown event type", "eventType", event.EventType)
		return nil
	}
}

func (h *SupplyChainEventsHandler) handleOrderStatusChanged(event models.OutboxMessageEvent) error {
	var change models.OrderStatusChange

	if err := json.Unmarshal(event.Data, &change); err != nil {
		h.logger.Error("Invalid event data format", "eventID", event.EventID, "error", err)
		return fmt.Errorf("invalid order_status_changed data: %w", err)
	}

	if change.ProductID != "" {
		h.journeys.Invalidate(change.ProductID)
	}

	h.logger.Info("Order status changed",
		"orderID", change.OrderID,
		"oldStatus", change.OldStatus,
		"newStatus", change.NewStatus,
		"version", change.Version)

	return nil
}

type headerCarrier []*sarama.RecordHeader

var _ propagation.TextMapCarrier = headerCarrier(nil)

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set is a no-op; consumed headers are read only
func (c headerCarrier) Set(string, string) {}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, h := range c {
		keys = append(keys, string(h.Key))
	}
	return keys
}
