package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("cad-copilot")

// PipelineMetrics provides metrics collection for generation and execution requests
type PipelineMetrics struct {
	generationsCounter     metric.Int64Counter
	generationDurationHist metric.Float64Histogram
	executionsCounter      metric.Int64Counter
	attemptsCounter        metric.Int64Counter
	executionDurationHist  metric.Float64Histogram
	busyRejectionsCounter  metric.Int64Counter
	requestsActiveGauge    metric.Int64UpDownCounter
}

// NewPipelineMetrics creates a collector on the global meter provider
func NewPipelineMetrics() (*PipelineMetrics, error) {
	return NewPipelineMetricsFrom(meter)
}

// NewPipelineMetricsFrom creates a collector on the given meter
func NewPipelineMetricsFrom(m metric.Meter) (*PipelineMetrics, error) {
	generationsCounter, err := m.Int64Counter(
		"cad_copilot.generations",
		metric.WithDescription("Total number of generation requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	generationDurationHist, err := m.Float64Histogram(
		"cad_copilot.generation.duration",
		metric.WithDescription("Duration of generation requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	executionsCounter, err := m.Int64Counter(
		"cad_copilot.executions",
		metric.WithDescription("Total number of execute requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	attemptsCounter, err := m.Int64Counter(
		"cad_copilot.execution.attempts",
		metric.WithDescription("Total number of code runs, including retries"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	executionDurationHist, err := m.Float64Histogram(
		"cad_copilot.execution.duration",
		metric.WithDescription("Duration of a single code run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	busyRejectionsCounter, err := m.Int64Counter(
		"cad_copilot.busy_rejections",
		metric.WithDescription("Requests rejected because another request held the document"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestsActiveGauge, err := m.Int64UpDownCounter(
		"cad_copilot.requests.active",
		metric.WithDescription("Number of requests currently holding the document"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		generationsCounter:     generationsCounter,
		generationDurationHist: generationDurationHist,
		executionsCounter:      executionsCounter,
		attemptsCounter:        attemptsCounter,
		executionDurationHist:  executionDurationHist,
		busyRejectionsCounter:  busyRejectionsCounter,
		requestsActiveGauge:    requestsActiveGauge,
	}, nil
}

// RecordRequestStarted marks a request as holding the document
func (pm *PipelineMetrics) RecordRequestStarted(ctx context.Context, kind string) {
	pm.requestsActiveGauge.Add(ctx, 1,
		metric.WithAttributes(attribute.String("request.kind", kind)),
	)
}

// RecordRequestFinished releases the document slot
func (pm *PipelineMetrics) RecordRequestFinished(ctx context.Context, kind string) {
	pm.requestsActiveGauge.Add(ctx, -1,
		metric.WithAttributes(attribute.String("request.kind", kind)),
	)
}

// RecordGeneration records a completed generation request
func (pm *PipelineMetrics) RecordGeneration(ctx context.Context, backend, parseMode string, failed bool, duration time.Duration) {
	status := "completed"
	if failed {
		status = "failed"
	}
	attrs := metric.WithAttributes(
		attribute.String("generation.backend", backend),
		attribute.String("generation.parse_mode", parseMode),
		attribute.String("status", status),
	)
	pm.generationsCounter.Add(ctx, 1, attrs)
	pm.generationDurationHist.Record(ctx, duration.Seconds(), attrs)
}

// RecordAttempt records one code run
func (pm *PipelineMetrics) RecordAttempt(ctx context.Context, attempt int, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.Int("execution.attempt", attempt),
		attribute.Bool("execution.success", success),
	)
	pm.attemptsCounter.Add(ctx, 1, attrs)
	pm.executionDurationHist.Record(ctx, duration.Seconds(), attrs)
}

// RecordExecution records a finished execute request
func (pm *PipelineMetrics) RecordExecution(ctx context.Context, success bool, category string, attempts int) {
	status := "completed"
	if !success {
		status = "failed"
	}
	pm.executionsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("diagnosis.category", category),
			attribute.Int("execution.attempts", attempts),
		),
	)
}

// RecordBusyRejection records a request turned away while the document was held
func (pm *PipelineMetrics) RecordBusyRejection(ctx context.Context, kind string) {
	pm.busyRejectionsCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("request.kind", kind)),
	)
}
