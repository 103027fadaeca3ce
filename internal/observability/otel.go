package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap/zapcore"

	"github.com/vaidashi/trust-trace-api/internal/config"
)

const instrumentationScope = "github.com/vaidashi/trust-trace-api"

// Telemetry holds what the OTLP setup produced
type Telemetry struct {
	// LogCore forwards zap entries to the OTLP log pipeline; nil when export is off
	LogCore  zapcore.Core
	shutdown []func(context.Context) error
}

// Shutdown flushes and stops every provider in reverse setup order
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		errs = errors.Join(errs, t.shutdown[i](ctx))
	}
	t.shutdown = nil
	return errs
}

// Setup installs the W3C propagator and, when an endpoint is configured, OTLP/HTTP
// trace and log exporters. Partial failures are joined into the returned error;
// whatever was set up is still usable and must be shut down.
func Setup(ctx context.Context, cfg *config.Config) (*Telemetry, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Telemetry{}
	if !cfg.OtelEnabled() {
		return t, nil
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Env),
		),
	)
	if err != nil {
		return t, fmt.Errorf("failed to create resource: %w", err)
	}

	var setupErr error

	if err := t.setupTracing(ctx, cfg, res); err != nil {
		setupErr = errors.Join(setupErr, fmt.Errorf("failed to setup tracing: %w", err))
	}
	if err := t.setupLogging(ctx, cfg, res); err != nil {
		setupErr = errors.Join(setupErr, fmt.Errorf("failed to setup logging: %w", err))
	}

	return t, setupErr
}

func headers(cfg *config.Config) map[string]string {
	if cfg.Otel.AuthHeader == "" {
		return nil
	}
	return map[string]string{"Authorization": cfg.Otel.AuthHeader}
}

func (t *Telemetry) setupTracing(ctx context.Context, cfg *config.Config, res *resource.Resource) error {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Otel.Endpoint),
		otlptracehttp.WithURLPath(cfg.Otel.TracesPath),
		otlptracehttp.WithHeaders(headers(cfg)),
	)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxQueueSize(cfg.Otel.MaxQueueSize),
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithExportTimeout(cfg.Otel.ExportTimeout),
		),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	t.shutdown = append(t.shutdown, tp.Shutdown)
	return nil
}

func (t *Telemetry) setupLogging(ctx context.Context, cfg *config.Config, res *resource.Resource) error {
	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(cfg.Otel.Endpoint),
		otlploghttp.WithURLPath(cfg.Otel.LogsPath),
		otlploghttp.WithHeaders(headers(cfg)),
	)
	if err != nil {
		return err
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter,
			sdklog.WithExportTimeout(cfg.Otel.ExportTimeout),
			sdklog.WithMaxQueueSize(cfg.Otel.MaxQueueSize),
		)),
	)

	global.SetLoggerProvider(lp)
	t.LogCore = otelzap.NewCore(instrumentationScope, otelzap.WithLoggerProvider(lp))
	t.shutdown = append(t.shutdown, lp.Shutdown)
	return nil
}
