package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "catalog-backend/storage"

// StartFileSpan starts a span for an entity file operation. Without an
// installed tracer provider the global no-op tracer is used.
func StartFileSpan(ctx context.Context, operation, file string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("file.name", file),
		attribute.String("file.operation", operation),
	)
	return otel.Tracer(tracerName).Start(ctx, "jsonfile."+operation, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
