// Package observability exposes upload supervision metrics through an
// OpenTelemetry meter exported in the Prometheus format.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const attrStatus = "status"

// Metrics covers traffic (jobs started, output lines), errors (failed jobs),
// latency (job duration) and saturation (running jobs).
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	JobsTotal   metric.Int64Counter
	JobFailures metric.Int64Counter
	JobsActive  metric.Int64UpDownCounter
	JobDuration metric.Float64Histogram
	OutputLines metric.Int64Counter
	provider    *sdkmetric.MeterProvider
}

// NewMetrics creates all instruments on a private Prometheus registry and
// returns the handler serving it.
func NewMetrics(_ context.Context) (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("folder-uploader")
	m := &Metrics{provider: provider}

	m.JobsTotal, err = meter.Int64Counter(
		"uploader_jobs_total",
		metric.WithDescription("Total number of upload jobs started"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobFailures, err = meter.Int64Counter(
		"uploader_job_failures_total",
		metric.WithDescription("Total number of upload jobs which did not succeed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"uploader_jobs_active",
		metric.WithDescription("Number of currently running upload jobs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobDuration, err = meter.Float64Histogram(
		"uploader_job_duration_seconds",
		metric.WithDescription("Upload job duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.OutputLines, err = meter.Int64Counter(
		"uploader_output_lines_total",
		metric.WithDescription("Total number of output lines read from upload jobs"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// RecordJobStarted records a new running job.
func (m *Metrics) RecordJobStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.JobsTotal.Add(ctx, 1)
	m.JobsActive.Add(ctx, 1)
}

// RecordJobFinished records a job reaching the terminal state.
func (m *Metrics) RecordJobFinished(ctx context.Context, state string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrStatus, state))
	m.JobsActive.Add(ctx, -1)
	m.JobDuration.Record(ctx, duration.Seconds(), attrs)
	if !success {
		m.JobFailures.Add(ctx, 1, attrs)
	}
}

// RecordOutputLines records n lines consumed from job output.
func (m *Metrics) RecordOutputLines(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.OutputLines.Add(ctx, int64(n))
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
