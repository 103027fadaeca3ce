package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/trust-trace-api/internal/config"
	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/internal/outbox"
	"github.com/vaidashi/trust-trace-api/internal/repository"
	"github.com/vaidashi/trust-trace-api/internal/service"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

var (
	farmer       = models.Actor{ID: "farmer-1", Name: "Green Valley Farm", Role: models.RoleFarmer}
	manufacturer = models.Actor{ID: "mfg-1", Name: "Sauce Co", Role: models.RoleManufacturer}
	consumer     = models.Actor{ID: "c-1", Name: "Alex", Role: models.RoleConsumer}
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

type testServer struct {
	t      *testing.T
	store  *repository.MemoryStore
	server *Server
	ping   error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logger.NewNop()
	store := repository.NewMemoryStore()
	inventory := service.NewInventoryService(store, log)
	ledger := service.NewTraceabilityService(store, service.NewJourneyCache(), log)
	processor := outbox.NewProcessor(store.Outbox(), nil, outbox.ProcessorConfig{}, log)
	outbox.RegisterLogging(processor, log)

	cfg := config.Default()
	cfg.RateLimit.Tokens = 1000

	ts := &testServer{t: t, store: store}
	ts.server = NewServer(cfg, Dependencies{
		Orders:    service.NewOrderService(store, inventory, ledger, log),
		Ledger:    ledger,
		Inventory: inventory,
		Outbox:    processor,
		Ping:      func(context.Context) error { return ts.ping },
	}, nil, log)
	t.Cleanup(func() { ts.server.rateLimiter.Stop() })

	require.NoError(t, store.Inventory().CreateProduct(context.Background(), &models.Good{
		ID:           "prd-g",
		Name:         "Roma Tomatoes",
		Unit:         "kg",
		PricePerUnit: decimal.RequireFromString("2.50"),
		Quantity:     100,
		SellerID:     farmer.ID,
		SellerName:   farmer.Name,
		Status:       "available",
	}))

	return ts
}

func (ts *testServer) do(actor *models.Actor, method, path string, body interface{}) (int, envelope) {
	ts.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if actor != nil {
		req.Header.Set(HeaderActorID, actor.ID)
		req.Header.Set(HeaderActorName, actor.Name)
		req.Header.Set(HeaderActorRole, string(actor.Role))
	}

	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

var address = map[string]string{"street": "1 Mill Rd", "city": "Fresno", "state": "CA", "zip_code": "93650", "country": "USA"}

func TestOrderFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(&manufacturer, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"good_id": "prd-g", "quantity": 30, "shipping_address": address,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	var order models.Order
	decodeData(t, env, &order)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(75)))

	for _, status := range []string{"confirmed", "shipped", "delivered"} {
		code, env = ts.do(&farmer, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", map[string]string{"status": status})
		require.Equal(t, http.StatusOK, code, env.Error)
	}

	code, env = ts.do(&manufacturer, http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &order)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.Equal(t, 4, order.Version)

	code, env = ts.do(&farmer, http.MethodGet, "/api/v1/traceability/prd-g", nil)
	require.Equal(t, http.StatusOK, code)
	var journey models.ProductJourney
	decodeData(t, env, &journey)
	assert.Len(t, journey.Records, 3)
	assert.True(t, journey.Authentic)

	code, env = ts.do(&consumer, http.MethodGet, "/api/v1/traceability/prd-g/verify", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"product_id":"prd-g","authentic":true}`, string(env.Data))

	code, env = ts.do(&farmer, http.MethodGet, "/api/v1/inventory/prd-g", nil)
	require.Equal(t, http.StatusOK, code)
	var stock map[string]interface{}
	decodeData(t, env, &stock)
	assert.EqualValues(t, 70, stock["on_hand"])
	assert.Equal(t, "catalog", stock["source"])
}

func TestErrorsCarryStableCodes(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(nil, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, apperrors.CodeUnauthorized, env.Code)
	assert.False(t, env.Success)

	code, env = ts.do(&manufacturer, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"good_id": "prd-g", "quantity": 101, "shipping_address": address,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, apperrors.CodeInsufficientStock, env.Code)

	code, env = ts.do(&manufacturer, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"good_id": "prd-g", "quantity": "lots",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperrors.CodeInvalidInput, env.Code)

	code, env = ts.do(&manufacturer, http.MethodGet, "/api/v1/orders/ord-missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, apperrors.CodeNotFound, env.Code)

	code, env = ts.do(&manufacturer, http.MethodGet, "/api/v1/orders?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	_, env = ts.do(&manufacturer, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"good_id": "prd-g", "quantity": 5, "shipping_address": address,
	})
	var order models.Order
	decodeData(t, env, &order)

	code, env = ts.do(&manufacturer, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, apperrors.CodeInvalidTransition, env.Code)

	code, env = ts.do(&consumer, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, apperrors.CodeUnauthorized, env.Code)

	code, env = ts.do(&consumer, http.MethodGet, "/api/v1/traceability/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, apperrors.CodeNotFound, env.Code)
}

func TestListOrdersIsScopedToCaller(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		code, env := ts.do(&manufacturer, http.MethodPost, "/api/v1/orders", map[string]interface{}{
			"good_id": "prd-g", "quantity": 1, "shipping_address": address,
		})
		require.Equal(t, http.StatusCreated, code, env.Error)
	}

	var orders []models.Order

	_, env := ts.do(&farmer, http.MethodGet, "/api/v1/orders?limit=2", nil)
	decodeData(t, env, &orders)
	assert.Len(t, orders, 2)

	_, env = ts.do(&consumer, http.MethodGet, "/api/v1/orders", nil)
	decodeData(t, env, &orders)
	assert.Empty(t, orders)

	code, env := ts.do(&farmer, http.MethodGet, "/api/v1/orders?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperrors.CodeInvalidInput, env.Code)
}

func TestManualAppendUsesCallerIdentity(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(&farmer, http.MethodPost, "/api/v1/traceability", map[string]interface{}{
		"product_id":     "prd-g",
		"stage":          "farm",
		"action":         "harvested",
		"location":       map[string]string{"name": "Fresno"},
		"temperature":    18.5,
		"certifications": []string{"organic"},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	var rec models.TraceabilityRecord
	decodeData(t, env, &rec)
	assert.Equal(t, farmer.ID, rec.ActorID)
	assert.Equal(t, models.RoleFarmer, rec.ActorRole)
	assert.NotEmpty(t, rec.Hash)
	assert.Equal(t, []string{"organic"}, []string(rec.Certifications))

	code, env = ts.do(&farmer, http.MethodPost, "/api/v1/traceability", map[string]interface{}{
		"product_id": "prd-g",
		"stage":      "orbit",
		"action":     "launched",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperrors.CodeInvalidInput, env.Code)
}

func TestManualAppendCannotSelfVerify(t *testing.T) {
	ts := newTestServer(t)

	for _, status := range []string{"verified", "failed"} {
		code, env := ts.do(&farmer, http.MethodPost, "/api/v1/traceability", map[string]interface{}{
			"product_id":          "prd-g",
			"stage":               "farm",
			"action":              "harvested",
			"verification_status": status,
		})
		require.Equal(t, http.StatusCreated, code, env.Error)

		var rec models.TraceabilityRecord
		decodeData(t, env, &rec)
		assert.Equal(t, models.VerificationPending, rec.VerificationStatus)
	}

	code, env := ts.do(&consumer, http.MethodGet, "/api/v1/traceability/prd-g", nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	var j models.ProductJourney
	decodeData(t, env, &j)
	require.Len(t, j.Records, 2)
	assert.Equal(t, models.VerificationPending, j.VerificationStatus)
	assert.Equal(t, 16, j.TrustScore)
}

func TestRequeueOutboxMessage(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	msg := &models.OutboxMessage{EventID: "evt-1", EventType: "mystery", AggregateID: "x", Payload: []byte(`{}`), Status: models.OutboxStatusPending}
	require.NoError(t, ts.store.Outbox().Create(ctx, msg))

	path := fmt.Sprintf("/api/v1/admin/outbox/%d/requeue", msg.ID)

	code, env := ts.do(&farmer, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusPreconditionFailed, code)
	assert.Equal(t, apperrors.CodePreconditionFailed, env.Code)

	_, err := ts.server.deps.Outbox.ProcessBatch(ctx)
	require.NoError(t, err)

	code, _ = ts.do(&farmer, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusOK, code)

	stored, err := ts.store.Outbox().GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusPending, stored.Status)

	code, _ = ts.do(&farmer, http.MethodPost, "/api/v1/admin/outbox/abc/requeue", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(nil, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, code)
	var h Health
	decodeData(t, env, &h)
	assert.Equal(t, "ok", h.Status)
	assert.Contains(t, h.Breakers, "broker")

	ts.ping = errors.New("connection refused")
	code, env = ts.do(nil, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	decodeData(t, env, &h)
	assert.Equal(t, "degraded", h.Status)
}

func TestRateLimitOnMutations(t *testing.T) {
	ts := newTestServer(t)

	cfg := config.Default()
	cfg.RateLimit.Tokens = 1
	cfg.RateLimit.Refill = 0.001
	limited := NewServer(cfg, ts.server.deps, nil, logger.NewNop())
	defer limited.rateLimiter.Stop()
	ts.server = limited

	body := map[string]interface{}{"good_id": "prd-g", "quantity": 1, "shipping_address": address}

	code, _ := ts.do(&manufacturer, http.MethodPost, "/api/v1/orders", body)
	assert.Equal(t, http.StatusCreated, code)

	code, env := ts.do(&manufacturer, http.MethodPost, "/api/v1/orders", body)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE_LIMITED", env.Code)

	code, _ = ts.do(&manufacturer, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHeaderDirectory(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "mfg-1")
	req.Header.Set(HeaderActorRole, "Manufacturer")

	actor, err := HeaderDirectory{}.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, models.RoleManufacturer, actor.Role)
	assert.Equal(t, "mfg-1", actor.Name)

	req.Header.Set(HeaderActorRole, "wizard")
	_, err = HeaderDirectory{}.Resolve(req)
	assert.Equal(t, http.StatusUnauthorized, apperrors.FromError(err).StatusCode)
}
