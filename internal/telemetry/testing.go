package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory. It does not touch the
// OTEL globals.
type TestTelemetry struct {
	*Telemetry

	recorder *tracetest.SpanRecorder
	reader   *sdkmetric.ManualReader
}

// NewTestTelemetry returns an enabled instance backed by in-memory
// exporters and a no-op logger provider.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	recorder := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()

	return &TestTelemetry{
		Telemetry: &Telemetry{
			cfg: cfg,
			tp:  sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)),
			mp:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
			lp:  noop.NewLoggerProvider(),
		},
		recorder: recorder,
		reader:   reader,
	}
}

// Spans returns the ended spans.
func (t *TestTelemetry) Spans() []sdktrace.ReadOnlySpan {
	return t.recorder.Ended()
}

// Collect reads the current metric state.
func (t *TestTelemetry) Collect(tb testing.TB) metricdata.ResourceMetrics {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	return rm
}

func (t *TestTelemetry) span(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.Spans() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// AssertSpanExists fails tb unless a span called name has ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.span(name) == nil {
		names := make([]string, 0, len(t.Spans()))
		for _, s := range t.Spans() {
			names = append(names, s.Name())
		}
		tb.Errorf("span %q not recorded; have %v", name, names)
	}
}

// AssertSpanAttribute fails tb unless the first span called name carries
// key with value. Integer attributes compare as int64.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, value any) {
	tb.Helper()
	s := t.span(name)
	if s == nil {
		tb.Fatalf("span %q not recorded", name)
	}
	for _, kv := range s.Attributes() {
		if kv.Key != attribute.Key(key) {
			continue
		}
		if got := kv.Value.AsInterface(); got != value {
			tb.Errorf("span %q attribute %s = %v, want %v", name, key, got, value)
		}
		return
	}
	tb.Errorf("span %q has no attribute %s", name, key)
}
