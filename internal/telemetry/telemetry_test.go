package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Degraded())
	assert.Nil(t, tel.LoggerProvider())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.SampleRate = 2

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_EnabledWithoutCollector(t *testing.T) {
	// OTLP exporters connect lazily, so a missing collector only shows up
	// at export time and New still succeeds.
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "127.0.0.1:1"
	cfg.ShutdownTimeout = 100 * time.Millisecond

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, tel.Enabled())

	_, span := tel.Tracer("test").Start(context.Background(), "noop")
	span.End()
	_ = tel.Shutdown(context.Background())
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("x")
		_ = tel.Meter("x")
		_ = tel.LoggerProvider()
		_ = tel.Degraded()
		_ = tel.Shutdown(context.Background())
	})
	assert.False(t, tel.Enabled())
}

func TestTestTelemetry_Spans(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	_, span := tel.Tracer("test").Start(ctx, "routing.select")
	span.SetAttributes(
		attribute.String("router", "thompson"),
		attribute.Int("arms", 3),
	)
	span.SetStatus(codes.Error, "no arms")
	span.End()

	tel.AssertSpanExists(t, "routing.select")
	tel.AssertSpanAttribute(t, "routing.select", "router", "thompson")
	tel.AssertSpanAttribute(t, "routing.select", "arms", int64(3))
	require.Len(t, tel.Spans(), 1)
	assert.Equal(t, codes.Error, tel.Spans()[0].Status().Code)
	assert.NotNil(t, tel.LoggerProvider())
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	counter, err := tel.Meter("test").Int64Counter("router.selections")
	require.NoError(t, err)
	counter.Add(ctx, 2)
	counter.Add(ctx, 3)

	rm := tel.Collect(t)
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	m := rm.ScopeMetrics[0].Metrics[0]
	assert.Equal(t, "router.selections", m.Name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(5), sum.DataPoints[0].Value)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
