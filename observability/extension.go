// Package observability records job lifecycle metrics through OpenTelemetry.
// Register the MetricsExtension on the hook registry to track submission
// rates, dispatches, progress reports, recoveries, and terminal outcomes.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mailscout/bulkq/hook"
	"github.com/mailscout/bulkq/job"
)

// meterName is the instrumentation scope name for bulkq metrics.
const meterName = "github.com/mailscout/bulkq"

// Compile-time interface checks.
var (
	_ hook.Extension     = (*MetricsExtension)(nil)
	_ hook.JobSubmitted  = (*MetricsExtension)(nil)
	_ hook.JobDispatched = (*MetricsExtension)(nil)
	_ hook.JobProgress   = (*MetricsExtension)(nil)
	_ hook.JobStopped    = (*MetricsExtension)(nil)
	_ hook.JobRecovered  = (*MetricsExtension)(nil)
	_ hook.JobTerminal   = (*MetricsExtension)(nil)
)

// MetricsExtension counts job lifecycle events.
//
// Instruments:
//   - bulkq.job.submitted {job}: submissions, by kind
//   - bulkq.job.dispatched {job}: dispatches, by kind
//   - bulkq.job.progress {report}: merged progress reports
//   - bulkq.job.stopped {job}: user stops
//   - bulkq.job.recovered {job}: recovery re-signals
//   - bulkq.job.terminal {job}: terminal outcomes, by status
//   - bulkq.job.records.processed {record}: record totals at terminal time
type MetricsExtension struct {
	submitted  metric.Int64Counter
	dispatched metric.Int64Counter
	progress   metric.Int64Counter
	stopped    metric.Int64Counter
	recovered  metric.Int64Counter
	terminal   metric.Int64Counter
	processed  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider. Without one configured, the instruments are noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter, allowing a specific MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// On error the OTel API returns noop instruments, so errors are
	// safe to discard.
	submitted, _ := meter.Int64Counter("bulkq.job.submitted", //nolint:errcheck
		metric.WithDescription("Total jobs submitted"),
		metric.WithUnit("{job}"))
	dispatched, _ := meter.Int64Counter("bulkq.job.dispatched", //nolint:errcheck
		metric.WithDescription("Total jobs dispatched to the worker"),
		metric.WithUnit("{job}"))
	progress, _ := meter.Int64Counter("bulkq.job.progress", //nolint:errcheck
		metric.WithDescription("Total progress reports merged"),
		metric.WithUnit("{report}"))
	stopped, _ := meter.Int64Counter("bulkq.job.stopped", //nolint:errcheck
		metric.WithDescription("Total jobs stopped by users"),
		metric.WithUnit("{job}"))
	recovered, _ := meter.Int64Counter("bulkq.job.recovered", //nolint:errcheck
		metric.WithDescription("Total recovery re-signals"),
		metric.WithUnit("{job}"))
	terminal, _ := meter.Int64Counter("bulkq.job.terminal", //nolint:errcheck
		metric.WithDescription("Total jobs reaching a terminal status"),
		metric.WithUnit("{job}"))
	processed, _ := meter.Int64Counter("bulkq.job.records.processed", //nolint:errcheck
		metric.WithDescription("Records processed by terminal jobs"),
		metric.WithUnit("{record}"))

	return &MetricsExtension{
		submitted:  submitted,
		dispatched: dispatched,
		progress:   progress,
		stopped:    stopped,
		recovered:  recovered,
		terminal:   terminal,
		processed:  processed,
	}
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func kindAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", string(j.Kind)))
}

// OnJobSubmitted implements hook.JobSubmitted.
func (m *MetricsExtension) OnJobSubmitted(ctx context.Context, j *job.Job) error {
	m.submitted.Add(ctx, 1, kindAttr(j))
	return nil
}

// OnJobDispatched implements hook.JobDispatched.
func (m *MetricsExtension) OnJobDispatched(ctx context.Context, j *job.Job) error {
	m.dispatched.Add(ctx, 1, kindAttr(j))
	return nil
}

// OnJobProgress implements hook.JobProgress.
func (m *MetricsExtension) OnJobProgress(ctx context.Context, j *job.Job) error {
	m.progress.Add(ctx, 1, kindAttr(j))
	return nil
}

// OnJobStopped implements hook.JobStopped.
func (m *MetricsExtension) OnJobStopped(ctx context.Context, j *job.Job) error {
	m.stopped.Add(ctx, 1, kindAttr(j))
	return nil
}

// OnJobRecovered implements hook.JobRecovered.
func (m *MetricsExtension) OnJobRecovered(ctx context.Context, j *job.Job, _ int) error {
	m.recovered.Add(ctx, 1, kindAttr(j))
	return nil
}

// OnJobTerminal implements hook.JobTerminal.
func (m *MetricsExtension) OnJobTerminal(ctx context.Context, j *job.Job) error {
	attrs := metric.WithAttributes(
		attribute.String("kind", string(j.Kind)),
		attribute.String("status", string(j.Status)),
	)
	m.terminal.Add(ctx, 1, attrs)
	m.processed.Add(ctx, int64(j.ProcessedRequests), attrs)
	return nil
}
