package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaidashi/trust-trace-api/internal/config"
	"github.com/vaidashi/trust-trace-api/internal/observability"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, otelErr := observability.Setup(ctx, cfg)

	var l logger.Logger
	if telemetry.LogCore != nil {
		l = logger.NewLogger(cfg.LogLevel, telemetry.LogCore)
	} else {
		l = logger.NewLogger(cfg.LogLevel)
	}
	defer logger.Sync(l)

	if otelErr != nil {
		l.Warn("OpenTelemetry setup incomplete", "error", otelErr)
	}

	l.Info("Starting API server",
		"service", config.ServiceName,
		"version", config.ServiceVersion,
		"store", cfg.StoreDriver,
		"broker", cfg.Events.Broker)

	a, err := newApp(ctx, cfg, l)
	if err != nil {
		l.Error("Failed to initialise application", "error", err)
		os.Exit(1)
	}

	a.start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		l.Info("Shutting down server...")
	case err := <-errCh:
		l.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.shutdown(shutdownCtx); err != nil {
		l.Error("Unclean shutdown", "error", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		l.Error("Failed to flush telemetry", "error", err)
	}

	l.Info("Server exiting")
}
