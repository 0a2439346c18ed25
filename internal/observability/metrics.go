package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartSyncSpan starts a span for an engine operation
func StartSyncSpan(ctx context.Context, component, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", component, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("sync.component", component),
			attribute.String("sync.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SyncMetrics holds the engine's business metrics
type SyncMetrics struct {
	pullOperations  metric.Int64Counter
	recordsMerged   metric.Int64Counter
	recordsSkipped  metric.Int64Counter
	periodsClosed   metric.Int64Counter
	uploadsAttempts metric.Int64Counter
	uploadFailures  metric.Int64Counter
	assetBytesSwept metric.Int64Counter
}

// NewSyncMetrics creates the engine's metric instruments
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	pullOperations, err := meter.Int64Counter(
		"leiturista.sync.pulls",
		metric.WithDescription("Total number of download pulls"),
		metric.WithUnit("{operations}"),
	)
	if err != nil {
		return nil, err
	}

	recordsMerged, err := meter.Int64Counter(
		"leiturista.sync.records_merged",
		metric.WithDescription("Records created or refreshed by downloads"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	recordsSkipped, err := meter.Int64Counter(
		"leiturista.sync.records_skipped",
		metric.WithDescription("Dirty records protected from download overwrite"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	periodsClosed, err := meter.Int64Counter(
		"leiturista.sync.periods_closed",
		metric.WithDescription("Periods demoted to the closed summary cache"),
		metric.WithUnit("{periods}"),
	)
	if err != nil {
		return nil, err
	}

	uploadsAttempts, err := meter.Int64Counter(
		"leiturista.sync.uploads",
		metric.WithDescription("Upload attempts per record category"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	uploadFailures, err := meter.Int64Counter(
		"leiturista.sync.upload_failures",
		metric.WithDescription("Failed upload attempts per record category"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	assetBytesSwept, err := meter.Int64Counter(
		"leiturista.assets.bytes_swept",
		metric.WithDescription("Bytes reclaimed by closed-period asset sweeps"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		pullOperations:  pullOperations,
		recordsMerged:   recordsMerged,
		recordsSkipped:  recordsSkipped,
		periodsClosed:   periodsClosed,
		uploadsAttempts: uploadsAttempts,
		uploadFailures:  uploadFailures,
		assetBytesSwept: assetBytesSwept,
	}, nil
}

// RecordPull records one download pull and its merge totals
func (m *SyncMetrics) RecordPull(ctx context.Context, merged, skipped, closed int) {
	if m == nil {
		return
	}
	m.pullOperations.Add(ctx, 1)
	m.recordsMerged.Add(ctx, int64(merged))
	m.recordsSkipped.Add(ctx, int64(skipped))
	m.periodsClosed.Add(ctx, int64(closed))
}

// RecordUpload records one upload attempt for a record category
func (m *SyncMetrics) RecordUpload(ctx context.Context, category string, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("category", category))
	m.uploadsAttempts.Add(ctx, 1, attrs)
	if !success {
		m.uploadFailures.Add(ctx, 1, attrs)
	}
}

// RecordSweep records bytes reclaimed by an asset sweep
func (m *SyncMetrics) RecordSweep(ctx context.Context, bytes int64) {
	if m == nil {
		return
	}
	m.assetBytesSwept.Add(ctx, bytes)
}
