package tracing

import (
	"context"
	"errors"

	"github.com/klokku/treasury/internal/apperr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/klokku/treasury"

// Start opens a span for a service operation. Without a configured provider the global
// tracer is a no-op.
func Start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, operation, trace.WithAttributes(attrs...))
}

// End records err on span and ends it. Precondition failures are tagged with their kind and
// are not marked as span errors.
func End(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		span.SetAttributes(attribute.String("treasury.failure_kind", string(appErr.Kind)))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
