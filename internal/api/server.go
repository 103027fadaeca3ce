package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaidashi/trust-trace-api/internal/config"
	"github.com/vaidashi/trust-trace-api/internal/outbox"
	"github.com/vaidashi/trust-trace-api/internal/service"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
	"github.com/vaidashi/trust-trace-api/pkg/middleware"
)

// Dependencies are the services the HTTP layer exposes
type Dependencies struct {
	Orders    *service.OrderService
	Ledger    *service.TraceabilityService
	Inventory *service.InventoryService
	Outbox    *outbox.Processor
	// Ping reports store health; nil means always healthy
	Ping func(ctx context.Context) error
}

// Server is the HTTP front of the service
type Server struct {
	config      *config.Config
	logger      logger.Logger
	router      *mux.Router
	httpServer  *http.Server
	deps        Dependencies
	actors      ActorDirectory
	tracer      trace.Tracer
	rateLimiter *middleware.RateLimiterMiddleware
	degradation *middleware.GracefulDegradation
}

// NewServer creates a new API server with the given configuration and logger
func NewServer(cfg *config.Config, deps Dependencies, actors ActorDirectory, logger logger.Logger) *Server {
	r := mux.NewRouter()

	if actors == nil {
		actors = HeaderDirectory{}
	}

	s := &Server{
		config: cfg,
		logger: logger,
		router: r,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		actors: actors,
		tracer: otel.Tracer("github.com/vaidashi/trust-trace-api/internal/api"),
		rateLimiter: middleware.NewRateLimiterMiddleware(middleware.RateLimiterConfig{
			MaxTokens:  float64(cfg.RateLimit.Tokens),
			RefillRate: cfg.RateLimit.Refill,
		}, func(r *http.Request) string {
			return r.Header.Get(HeaderActorID)
		}, logger),
		degradation: middleware.NewGracefulDegradation(logger, "/api/v1/health", "/api/v1/admin"),
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware, s.tracingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.degradation.Middleware, s.authenticate, s.rateLimiter.Middleware)

	authed.HandleFunc("/orders", s.getOrdersHandler).Methods(http.MethodGet)
	authed.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	authed.HandleFunc("/orders/{id}", s.getOrderByIDHandler).Methods(http.MethodGet)
	authed.HandleFunc("/orders/{id}/status", s.updateOrderStatusHandler).Methods(http.MethodPatch)

	authed.HandleFunc("/traceability", s.appendRecordHandler).Methods(http.MethodPost)
	authed.HandleFunc("/traceability/{productId}", s.getJourneyHandler).Methods(http.MethodGet)
	authed.HandleFunc("/traceability/{productId}/verify", s.verifyJourneyHandler).Methods(http.MethodGet)

	authed.HandleFunc("/inventory/{goodId}", s.getInventoryHandler).Methods(http.MethodGet)

	authed.HandleFunc("/admin/outbox/{id}/requeue", s.requeueOutboxHandler).Methods(http.MethodPost)
}

// loggingMiddleware logs every request with its status and duration
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := middleware.NewStatusWriter(w)

		next.ServeHTTP(sw, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.Status(),
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}

// tracingMiddleware continues the caller's trace and opens a server span per request
func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := s.tracer.Start(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRoute(route),
			))
		defer span.End()

		sw := middleware.NewStatusWriter(w)
		next.ServeHTTP(sw, r.WithContext(ctx))

		span.SetAttributes(semconv.HTTPResponseStatusCode(sw.Status()))
		if sw.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(sw.Status()))
		}
	})
}
