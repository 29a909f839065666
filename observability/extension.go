package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tempohq/tempo/ext"
	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*MetricsExtension)(nil)
	_ ext.JobCreated    = (*MetricsExtension)(nil)
	_ ext.JobStarted    = (*MetricsExtension)(nil)
	_ ext.JobCompleted  = (*MetricsExtension)(nil)
	_ ext.JobFailed     = (*MetricsExtension)(nil)
	_ ext.JobRetrying   = (*MetricsExtension)(nil)
	_ ext.JobCancelled  = (*MetricsExtension)(nil)
	_ ext.IndexRepaired = (*MetricsExtension)(nil)
)

const meterName = "github.com/tempohq/tempo/observability"

// MetricsExtension records system-wide lifecycle counters with OpenTelemetry.
// Register it as a tempo extension to track creation, start, completion,
// failure, retry, and cancellation counts, plus scheduling index repairs.
type MetricsExtension struct {
	JobCreated    metric.Int64Counter
	JobStarted    metric.Int64Counter
	JobCompleted  metric.Int64Counter
	JobFailed     metric.Int64Counter
	JobRetried    metric.Int64Counter
	JobCancelled  metric.Int64Counter
	IndexRepaired metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to noop instruments.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{job}"))
		return c
	}
	return &MetricsExtension{
		JobCreated:    counter("tempo.job.created", "Jobs accepted and scheduled"),
		JobStarted:    counter("tempo.job.started", "Jobs claimed by a worker"),
		JobCompleted:  counter("tempo.job.completed", "Jobs that finished successfully"),
		JobFailed:     counter("tempo.job.failed", "Jobs that exhausted their retries"),
		JobRetried:    counter("tempo.job.retried", "Failed attempts rescheduled for retry"),
		JobCancelled:  counter("tempo.job.cancelled", "Pending jobs cancelled"),
		IndexRepaired: counter("tempo.index.repaired", "Scheduling index repairs"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func typeAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", j.Type))
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (m *MetricsExtension) OnJobCreated(ctx context.Context, j *job.Job) error {
	m.JobCreated.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, j *job.Job) error {
	m.JobStarted.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ string) error {
	m.JobFailed.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	m.JobCancelled.Add(ctx, 1, typeAttr(j))
	return nil
}

// ── Index hooks ─────────────────────────────────────

// OnIndexRepaired implements ext.IndexRepaired.
func (m *MetricsExtension) OnIndexRepaired(ctx context.Context, _ id.JobID, action string) error {
	m.IndexRepaired.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
	return nil
}
