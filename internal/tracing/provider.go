package tracing

import (
	"context"

	"github.com/klokku/treasury/internal/config"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Setup installs a tracer provider that logs finished spans when tracing is enabled.
// The returned function flushes and stops it.
func Setup(cfg config.Tracing) func(context.Context) error {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(logSpanProcessor{}))
	otel.SetTracerProvider(tp)
	log.Info("Tracing enabled")
	return tp.Shutdown
}

// logSpanProcessor writes every ended span as a debug log entry.
type logSpanProcessor struct{}

func (logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (logSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := log.Fields{
		"trace_id":    s.SpanContext().TraceID().String(),
		"duration_ms": s.EndTime().Sub(s.StartTime()).Milliseconds(),
		"status":      s.Status().Code.String(),
	}
	for _, attr := range s.Attributes() {
		fields[string(attr.Key)] = attr.Value.Emit()
	}
	log.WithFields(fields).Debug(s.Name())
}

func (logSpanProcessor) Shutdown(context.Context) error { return nil }

func (logSpanProcessor) ForceFlush(context.Context) error { return nil }
