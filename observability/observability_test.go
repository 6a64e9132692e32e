package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("suite")

	if cfg.ServiceName != "suite" {
		t.Errorf("expected ServiceName 'suite', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" || !cfg.Insecure {
		t.Errorf("expected insecure localhost endpoint, got %s (insecure=%v)", cfg.Endpoint, cfg.Insecure)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if cfg.MetricInterval != 15*time.Second {
		t.Errorf("expected MetricInterval 15s, got %v", cfg.MetricInterval)
	}
	if cfg.Enabled {
		t.Error("expected exporting to be disabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig("suite")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.SampleRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sample rate above 1")
	}
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned %v", err)
	}
}

func TestEndSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	_, ok := tracer.Start(context.Background(), SpanTempDBStart)
	EndSpan(ok, nil)

	_, failed := tracer.Start(context.Background(), SpanTempDBStop)
	EndSpan(failed, fmt.Errorf("drop failed"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("successful span should not carry an error status")
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[1].Status().Code)
	}
	if len(spans[1].Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestSetSpanAttribute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	SetSpanAttribute(ctx, AttrDatabase, "test_0123456789ab")
	SetSpanAttribute(ctx, AttrNested, true)
	SetSpanAttribute(ctx, AttrFixtures, []string{"users", "posts"})
	span.End()

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range recorder.Ended()[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrDatabase].AsString() != "test_0123456789ab" {
		t.Errorf("unexpected db.name %v", attrs[AttrDatabase])
	}
	if !attrs[AttrNested].AsBool() {
		t.Error("expected nested=true")
	}
	if len(attrs[AttrFixtures].AsStringSlice()) != 2 {
		t.Errorf("unexpected fixtures %v", attrs[AttrFixtures])
	}
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}

	ctx := context.Background()
	metrics.DatabaseCreated(ctx, "sqlite")
	metrics.DatabaseCreated(ctx, "postgres")
	metrics.DatabaseDropped(ctx, "sqlite", true)
	metrics.Rollback(ctx, false, true)
	metrics.Rollback(ctx, true, false)
	metrics.FixturesLoaded(ctx, "tempdb", 5)
	metrics.MigrationsApplied(ctx, 3)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	checks := map[string]int64{
		MetricDatabasesCreated:  2,
		MetricDatabasesDropped:  1,
		MetricRollbacks:         2,
		MetricFixturesLoaded:    5,
		MetricMigrationsApplied: 3,
	}
	for name, want := range checks {
		if got := sumOf(t, rm, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.DatabaseCreated(context.Background(), "sqlite")
	m.Rollback(context.Background(), false, true)
}

func TestDefaultMetrics(t *testing.T) {
	if DefaultMetrics() == nil {
		t.Fatal("expected default metrics on the global meter")
	}
}
