package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const syncScopeName = "github.com/casesync/casesync/sync"

// SyncInstruments records one span per pass/project/phase and counts record
// outcomes in casesync.records. When telemetry is disabled the global no-op
// providers make every call free.
type SyncInstruments struct {
	tracer  trace.Tracer
	records metric.Int64Counter
	passDur metric.Float64Histogram
}

// NewSyncInstruments creates instruments against the global providers.
func NewSyncInstruments() *SyncInstruments {
	m := Meter(syncScopeName)
	records, _ := m.Int64Counter("casesync.records",
		metric.WithDescription("Records processed by the sync engine, by phase and outcome"),
	)
	passDur, _ := m.Float64Histogram("casesync.pass.duration",
		metric.WithDescription("Duration of a full sync pass in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &SyncInstruments{
		tracer:  Tracer(syncScopeName),
		records: records,
		passDur: passDur,
	}
}

// Start opens a span named "sync.<name>".
func (s *SyncInstruments) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "sync."+name, trace.WithAttributes(attrs...))
}

// End closes span, marking it failed when err is non-nil.
func (s *SyncInstruments) End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Record counts one record outcome ("created", "skipped", "error", ...).
func (s *SyncInstruments) Record(ctx context.Context, phase, outcome string) {
	s.records.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	))
}

// PassDone records the duration of a complete pass.
func (s *SyncInstruments) PassDone(ctx context.Context, start time.Time, status string) {
	ms := float64(time.Since(start).Milliseconds())
	s.passDur.Record(ctx, ms, metric.WithAttributes(attribute.String("status", status)))
}
