package bandit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/modelrouter/internal/config"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m := &Metrics{
		meter:  mp.Meter(banditInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func intSum(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.recordThompsonSelection(ctx, "a", true)
		m.recordThompsonUpdate(ctx, "a", 1, true)
		m.recordLinUCBSelection(ctx, "a")
		m.recordLinUCBUpdate(ctx, "a", []string{recomputePeriodic}, 3)
	})
}

func TestNewMetrics_GlobalProvider(t *testing.T) {
	m := NewMetrics(nil)
	require.NotNil(t, m)
	assert.NotNil(t, m.thompsonSelections)
	assert.NotNil(t, m.linucbConditionGauge)
}

func TestMetrics_ThompsonInstruments(t *testing.T) {
	m, reader := newTestMetrics(t)
	live := newTestLive(func(rc *config.RouterConfig) {
		rc.Epsilon = 1
		rc.EntropyThreshold = 10
		rc.EntropyWindow = 2
	})
	th := NewThompson(live, seeded(5), WithThompsonMetrics(m))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := th.Select(ctx, []string{"a", "b"}, nil)
		require.NoError(t, err)
	}
	th.Update(ctx, "a", 1, nil)
	th.Update(ctx, "a", 1, nil)

	got := collect(t, reader)
	assert.Equal(t, int64(4), intSum(t, got["modelrouter.thompson.selections_total"]))
	assert.Equal(t, int64(4), intSum(t, got["modelrouter.thompson.forced_explorations_total"]))
	assert.Equal(t, int64(2), intSum(t, got["modelrouter.thompson.updates_total"]))
	assert.Equal(t, int64(1), intSum(t, got["modelrouter.thompson.resets_total"]))

	reward, ok := got["modelrouter.thompson.reward_total"].Data.(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, reward.DataPoints, 1)
	assert.Equal(t, 2.0, reward.DataPoints[0].Value)
}

func TestMetrics_LinUCBInstruments(t *testing.T) {
	m, reader := newTestMetrics(t)
	live := contextualLive(func(rc *config.RouterConfig) {
		rc.LinUCBRecomputeInterval = 2
		rc.LinUCBConditionThreshold = 1e12
	})
	l, err := NewLinUCB(2, live, WithLinUCBMetrics(m))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Select(ctx, []string{"a", "b"}, []float64{1, 0})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Update(ctx, "a", 0.5, []float64{1, 1}))
	}

	got := collect(t, reader)
	assert.Equal(t, int64(1), intSum(t, got["modelrouter.linucb.selections_total"]))
	assert.Equal(t, int64(4), intSum(t, got["modelrouter.linucb.updates_total"]))
	assert.Equal(t, int64(2), intSum(t, got["modelrouter.linucb.recomputes_total"]))

	gauge, ok := got["modelrouter.linucb.condition_number"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.NotEmpty(t, gauge.DataPoints)
	assert.GreaterOrEqual(t, gauge.DataPoints[0].Value, 1.0)
}
