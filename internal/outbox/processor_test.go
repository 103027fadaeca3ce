package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/internal/repository"
	"github.com/vaidashi/trust-trace-api/pkg/circuitbreaker"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

type sent struct {
	topic, key string
	headers    map[string]string
}

type fakePublisher struct {
	mu    sync.Mutex
	sent  []sent
	fails int
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, _ []byte, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fails > 0 {
		f.fails--
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, sent{topic, key, headers})
	return nil
}

func newOrder(t *testing.T, store repository.Store) *models.OutboxMessage {
	t.Helper()

	msg, err := models.NewOrderStatusChangedEvent(&models.Order{ID: "ord-1", ProductID: "prd-1", Status: models.OrderStatusShipped, Version: 3},
		models.OrderStatusConfirmed, models.Actor{ID: "farmer-1", Role: models.RoleFarmer})
	require.NoError(t, err)
	require.NoError(t, store.Outbox().Create(context.Background(), msg))
	return msg
}

func newProcessor(store repository.Store, breaker *circuitbreaker.CircuitBreaker, pub Publisher) *Processor {
	p := NewProcessor(store.Outbox(), breaker, ProcessorConfig{PollingInterval: time.Second, BatchSize: 10, MaxRetries: 2}, logger.NewNop())
	RegisterPublishers(p, pub, "orders", "custody", logger.NewNop())
	return p
}

func TestDeliversToTopicByEventType(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	pub := &fakePublisher{}
	p := newProcessor(store, nil, pub)

	order := newOrder(t, store)
	custody, err := models.NewCustodyRecordedEvent(&models.TraceabilityRecord{ID: "trc-1", ProductID: "prd-1"})
	require.NoError(t, err)
	require.NoError(t, store.Outbox().Create(ctx, custody))

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "orders", pub.sent[0].topic)
	assert.Equal(t, "ord-1", pub.sent[0].key)
	assert.Equal(t, models.EventOrderStatusChanged, pub.sent[0].headers["event_type"])
	assert.Equal(t, order.EventID, pub.sent[0].headers["event_id"])
	assert.Equal(t, "custody", pub.sent[1].topic)
	assert.Equal(t, "prd-1", pub.sent[1].key)

	stored, err := store.Outbox().GetMessage(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusCompleted, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)

	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailureReturnsToPendingThenFails(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	p := newProcessor(store, nil, &fakePublisher{fails: 10})
	msg := newOrder(t, store)

	_, err := p.ProcessBatch(ctx)
	require.NoError(t, err)

	stored, err := store.Outbox().GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusPending, stored.Status)
	assert.Equal(t, 1, stored.ProcessingAttempts)
	require.NotNil(t, stored.LastError)

	_, err = p.ProcessBatch(ctx)
	require.NoError(t, err)

	stored, err = store.Outbox().GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusFailed, stored.Status)
	assert.Contains(t, *stored.LastError, "max retries reached")
}

func TestRequeue(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	pub := &fakePublisher{fails: 2}
	p := newProcessor(store, nil, pub)
	msg := newOrder(t, store)

	err := p.Requeue(ctx, msg.ID)
	assert.Equal(t, apperrors.CodePreconditionFailed, apperrors.FromError(err).Code)

	err = p.Requeue(ctx, 999)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.FromError(err).Code)

	for i := 0; i < 2; i++ {
		_, err = p.ProcessBatch(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, p.Requeue(ctx, msg.ID))

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, pub.sent, 1)
}

func TestOpenBreakerDefersBatch(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "broker", FailureThreshold: 1, ResetTimeout: time.Hour})
	p := newProcessor(store, breaker, &fakePublisher{fails: 1})

	first := newOrder(t, store)
	second := newOrder(t, store)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.GetState())
	assert.Equal(t, "open", p.BreakerState()["state"])

	stored, err := store.Outbox().GetMessage(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ProcessingAttempts)

	untouched, err := store.Outbox().GetMessage(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusPending, untouched.Status)
	assert.Zero(t, untouched.ProcessingAttempts)
}

type flakyOutbox struct {
	repository.OutboxRepository
	failProcessing int
}

func (f *flakyOutbox) MarkAsProcessing(ctx context.Context, id int64) error {
	if f.failProcessing > 0 {
		f.failProcessing--
		return errors.New("connection reset")
	}
	return f.OutboxRepository.MarkAsProcessing(ctx, id)
}

func TestStoreErrorDoesNotStrandHalfOpenBreaker(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "broker", FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	repo := &flakyOutbox{OutboxRepository: store.Outbox()}
	pub := &fakePublisher{fails: 1}

	p := NewProcessor(repo, breaker, ProcessorConfig{BatchSize: 10, MaxRetries: 3}, logger.NewNop())
	RegisterPublishers(p, pub, "orders", "custody", logger.NewNop())

	msg := newOrder(t, store)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Equal(t, circuitbreaker.StateOpen, breaker.GetState())

	time.Sleep(20 * time.Millisecond)
	repo.failProcessing = 1

	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, circuitbreaker.StateHalfOpen, breaker.GetState())

	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, circuitbreaker.StateClosed, breaker.GetState())

	stored, err := store.Outbox().GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusCompleted, stored.Status)
	assert.Len(t, pub.sent, 1)
}

func TestUnknownEventTypeFailsImmediately(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	p := NewProcessor(store.Outbox(), nil, ProcessorConfig{}, logger.NewNop())

	msg := &models.OutboxMessage{EventID: "evt-1", EventType: "mystery", AggregateID: "x", Payload: []byte(`{}`), Status: models.OutboxStatusPending}
	require.NoError(t, store.Outbox().Create(ctx, msg))

	_, err := p.ProcessBatch(ctx)
	require.NoError(t, err)

	stored, err := store.Outbox().GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusFailed, stored.Status)
}

func TestLoggingHandlerRejectsGarbage(t *testing.T) {
	h := NewLoggingHandler(logger.NewNop())

	assert.Error(t, h.HandleMessage(context.Background(), &models.OutboxMessage{Payload: []byte("not json")}))

	payload, err := json.Marshal(models.OutboxMessageEvent{EventID: "evt-1", EventType: models.EventOrderCreated})
	require.NoError(t, err)
	assert.NoError(t, h.HandleMessage(context.Background(), &models.OutboxMessage{Payload: payload}))
}

func TestStartStop(t *testing.T) {
	store := repository.NewMemoryStore()
	p := NewProcessor(store.Outbox(), nil, ProcessorConfig{PollingInterval: 10 * time.Millisecond}, logger.NewNop())
	RegisterLogging(p, logger.NewNop())
	msg := newOrder(t, store)

	p.Start()
	p.Start()
	require.Eventually(t, func() bool {
		stored, err := store.Outbox().GetMessage(context.Background(), msg.ID)
		return err == nil && stored.Status == models.OutboxStatusCompleted
	}, time.Second, 10*time.Millisecond)
	p.Stop()
	p.Stop()
}
