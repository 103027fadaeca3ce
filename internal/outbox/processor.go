package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/internal/repository"
	"github.com/vaidashi/trust-trace-api/pkg/circuitbreaker"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

// MessageHandler defines the interface for handling outbox messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// Processor relays pending outbox messages to their handlers
type Processor struct {
	outbox          repository.OutboxRepository
	handlers        map[string]MessageHandler
	breaker         *circuitbreaker.CircuitBreaker
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	logger          logger.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	running         bool
	mu              sync.Mutex
}

// ProcessorConfig holds the configuration for the Processor
type ProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int
}

// NewProcessor creates a new Processor. A nil breaker never trips.
func NewProcessor(
	outbox repository.OutboxRepository,
	breaker *circuitbreaker.CircuitBreaker,
	config ProcessorConfig,
	logger logger.Logger,
) *Processor {
	if config.PollingInterval <= 0 {
		config.PollingInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		outbox:          outbox,
		handlers:        make(map[string]MessageHandler),
		breaker:         breaker,
		pollingInterval: config.PollingInterval,
		batchSize:       config.BatchSize,
		maxRetries:      config.MaxRetries,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// RegisterHandler registers a message handler for a specific event type
func (p *Processor) RegisterHandler(eventType string, handler MessageHandler) {
	p.handlers[eventType] = handler
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.processOutbox()
	}()

	p.logger.Info("Outbox processor started",
		"pollingInterval", p.pollingInterval,
		"batchSize", p.batchSize)
}

// Stop stops the outbox processor and waits for the current batch
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	p.logger.Info("Outbox processor stopped")
}

func (p *Processor) processOutbox() {
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(p.ctx, p.pollingInterval)
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error("Failed to process outbox batch", "error", err)
			}
			cancel()
		}
	}
}

// ProcessBatch relays up to one batch of pending messages and returns how many were
// delivered. The batch stops early while the breaker is open.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	messages, err := p.outbox.GetPendingMessages(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(messages) == 0 {
		return 0, nil
	}

	p.logger.Debug("Processing batch of outbox messages", "count", len(messages))

	delivered := 0
	for _, msg := range messages {
		err := p.processMessage(ctx, msg)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			p.logger.Warn("Event broker circuit open, deferring batch", "remaining", len(messages)-delivered)
			break
		}
		if err != nil {
			p.logger.Error("Failed to process message",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType)
			continue
		}
		delivered++
	}

	return delivered, nil
}

func (p *Processor) processMessage(ctx context.Context, msg *models.OutboxMessage) error {
	handler, exists := p.handlers[msg.EventType]
	if !exists {
		errorMsg := fmt.Sprintf("no handler registered for event type: %s", msg.EventType)
		if err := p.outbox.MarkAsFailed(ctx, msg.ID, errorMsg); err != nil {
			p.logger.Error("Failed to mark message as failed", "error", err, "messageID", msg.ID)
		}
		return errors.New(errorMsg)
	}

	if p.breaker != nil && !p.breaker.Allow() {
		return circuitbreaker.ErrOpen
	}

	if err := p.outbox.MarkAsProcessing(ctx, msg.ID); err != nil {
		p.releaseBreaker()
		return fmt.Errorf("failed to mark message as processing: %w", err)
	}
	attempt := msg.ProcessingAttempts + 1

	if err := handler.HandleMessage(ctx, msg); err != nil {
		p.recordFailure()

		if attempt >= p.maxRetries {
			errorMsg := fmt.Sprintf("max retries reached: %s", err.Error())
			if markErr := p.outbox.MarkAsFailed(ctx, msg.ID, errorMsg); markErr != nil {
				p.logger.Error("Failed to mark message as failed", "error", markErr, "messageID", msg.ID)
			}
			return fmt.Errorf("message failed after %d attempts: %w", attempt, err)
		}

		if markErr := p.outbox.MarkAsPending(ctx, msg.ID, err.Error()); markErr != nil {
			p.logger.Error("Failed to return message to pending", "error", markErr, "messageID", msg.ID)
		}
		p.logger.Warn("Message processing failed, will retry",
			"error", err,
			"messageID", msg.ID,
			"attempt", attempt)
		return err
	}

	p.recordSuccess()

	if err := p.outbox.MarkAsCompleted(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as completed: %w", err)
	}

	p.logger.Info("Outbox message delivered",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return nil
}

func (p *Processor) recordFailure() {
	if p.breaker != nil {
		p.breaker.Failure()
	}
}

func (p *Processor) releaseBreaker() {
	if p.breaker != nil {
		p.breaker.Release()
	}
}

func (p *Processor) recordSuccess() {
	if p.breaker != nil {
		p.breaker.Success()
	}
}

// Requeue moves a failed message back to pending with a fresh retry budget
func (p *Processor) Requeue(ctx context.Context, id int64) error {
	err := p.outbox.Requeue(ctx, id)

	switch {
	case err == nil:
		p.logger.Info("Outbox message requeued", "messageID", id)
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFoundError("Outbox message not found").WithContext("messageID", id)
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewPreconditionFailedError("Only failed messages can be requeued").WithContext("messageID", id)
	default:
		return apperrors.NewInternalError("Failed to requeue outbox message").WithContext("cause", err.Error())
	}
}

// BreakerState reports the broker circuit for health checks
func (p *Processor) BreakerState() map[string]interface{} {
	if p.breaker == nil {
		return map[string]interface{}{"state": circuitbreaker.StateClosed.String()}
	}
	return p.breaker.GetMetrics()
}
