package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaidashi/trust-trace-api/internal/repository"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
)

const tracerName = "github.com/vaidashi/trust-trace-api/internal/service"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// translate maps repository sentinels onto application errors. AppErrors pass through.
func translate(err error, notFound string) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFoundError(notFound)
	case errors.Is(err, repository.ErrInsufficientStock):
		return apperrors.NewInsufficientStockError("Insufficient stock")
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConcurrencyConflictError("Order was modified concurrently")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	return apperrors.NewInternalError("Internal error").WithContext("cause", err.Error())
}

func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
