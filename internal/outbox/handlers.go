package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

// Publisher sends an encoded event to a broker destination
type Publisher interface {
	Publish(ctx context.Context, topic, key string, body []byte, headers map[string]string) error
}

// LoggingHandler is a message handler that logs the outbox message
type LoggingHandler struct {
	logger logger.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// HandleMessage handles the outbox message by logging it
func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var event models.OutboxMessageEvent

	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	h.logger.Info("Domain event",
		"messageID", message.ID,
		"eventType", message.EventType,
		"aggregateID", message.AggregateID,
		"eventID", event.EventID,
		"occurredAt", event.OccurredAt)

	return nil
}

// PublishHandler forwards outbox messages to a broker topic keyed by aggregate id
type PublishHandler struct {
	publisher Publisher
	topic     string
	logger    logger.Logger
}

// NewPublishHandler creates a handler publishing to topic
func NewPublishHandler(publisher Publisher, topic string, logger logger.Logger) *PublishHandler {
	return &PublishHandler{publisher: publisher, topic: topic, logger: logger}
}

// HandleMessage publishes the stored payload unchanged
func (h *PublishHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	headers := map[string]string{
		"event_type":     message.EventType,
		"event_id":       message.EventID,
		"aggregate_type": message.AggregateType,
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))

	if err := h.publisher.Publish(ctx, h.topic, message.AggregateID, message.Payload, headers); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", message.EventType, h.topic, err)
	}

	h.logger.Debug("Published outbox message",
		"topic", h.topic,
		"messageID", message.ID,
		"aggregateID", message.AggregateID,
		"eventType", message.EventType)

	return nil
}

// RegisterPublishers routes order events to ordersTopic and custody events to custodyTopic
func RegisterPublishers(p *Processor, publisher Publisher, ordersTopic, custodyTopic string, logger logger.Logger) {
	orders := NewPublishHandler(publisher, ordersTopic, logger)
	p.RegisterHandler(models.EventOrderCreated, orders)
	p.RegisterHandler(models.EventOrderStatusChanged, orders)
	p.RegisterHandler(models.EventCustodyRecorded, NewPublishHandler(publisher, custodyTopic, logger))
}

// RegisterLogging logs every known event type instead of publishing it
func RegisterLogging(p *Processor, logger logger.Logger) {
	h := NewLoggingHandler(logger)
	for _, eventType := range []string{models.EventOrderCreated, models.EventOrderStatusChanged, models.EventCustodyRecorded} {
		p.RegisterHandler(eventType, h)
	}
}
