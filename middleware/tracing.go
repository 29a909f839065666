package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tempohq/tempo/job"
)

// tracerName is the instrumentation scope name for tempo tracing.
const tracerName = "github.com/tempohq/tempo"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through.
//
// Span attributes include: tempo.job.id, tempo.job.type, tempo.job.retries,
// tempo.job.max_retries, tempo.job.priority.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "tempo.job.execute",
			trace.WithAttributes(
				attribute.String("tempo.job.id", j.ID.String()),
				attribute.String("tempo.job.type", j.Type),
				attribute.Int("tempo.job.retries", j.Retries),
				attribute.Int("tempo.job.max_retries", j.MaxRetries),
				attribute.Int("tempo.job.priority", j.Priority),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
