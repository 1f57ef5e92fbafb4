package bandit

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const banditInstrumentationName = "github.com/fyrsmithlabs/modelrouter/internal/bandit"

// Recompute reasons recorded on modelrouter.linucb.recomputes_total.
const (
	recomputeDegenerate = "degenerate"
	recomputePeriodic   = "periodic"
	recomputeCondition  = "condition"
)

// Metrics holds the router instruments. A nil *Metrics records nothing.
type Metrics struct {
	meter  metric.Meter
	logger *zap.Logger

	thompsonSelections   metric.Int64Counter
	thompsonReward       metric.Float64Counter
	thompsonUpdates      metric.Int64Counter
	thompsonForced       metric.Int64Counter
	thompsonResets       metric.Int64Counter
	linucbSelections     metric.Int64Counter
	linucbUpdates        metric.Int64Counter
	linucbRecomputes     metric.Int64Counter
	linucbConditionGauge metric.Float64Gauge
}

// NewMetrics creates router instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(banditInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.thompsonSelections, err = m.meter.Int64Counter(
		"modelrouter.thompson.selections_total",
		metric.WithDescription("Arms chosen by the Thompson router, labeled by arm"),
		metric.WithUnit("{selection}"),
	)
	if err != nil {
		m.logger.Warn("failed to create thompson selections counter", zap.Error(err))
	}

	m.thompsonReward, err = m.meter.Float64Counter(
		"modelrouter.thompson.reward_total",
		metric.WithDescription("Sum of clamped rewards applied to Thompson arms"),
	)
	if err != nil {
		m.logger.Warn("failed to create thompson reward counter", zap.Error(err))
	}

	m.thompsonUpdates, err = m.meter.Int64Counter(
		"modelrouter.thompson.updates_total",
		metric.WithDescription("Posterior updates applied by the Thompson router"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		m.logger.Warn("failed to create thompson updates counter", zap.Error(err))
	}

	m.thompsonForced, err = m.meter.Int64Counter(
		"modelrouter.thompson.forced_explorations_total",
		metric.WithDescription("Selections overridden by the epsilon exploration floor"),
		metric.WithUnit("{selection}"),
	)
	if err != nil {
		m.logger.Warn("failed to create forced exploration counter", zap.Error(err))
	}

	m.thompsonResets, err = m.meter.Int64Counter(
		"modelrouter.thompson.resets_total",
		metric.WithDescription("Posterior resets triggered by low mean entropy"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		m.logger.Warn("failed to create thompson resets counter", zap.Error(err))
	}

	m.linucbSelections, err = m.meter.Int64Counter(
		"modelrouter.linucb.selections_total",
		metric.WithDescription("Arms chosen by the LinUCB router, labeled by arm"),
		metric.WithUnit("{selection}"),
	)
	if err != nil {
		m.logger.Warn("failed to create linucb selections counter", zap.Error(err))
	}

	m.linucbUpdates, err = m.meter.Int64Counter(
		"modelrouter.linucb.updates_total",
		metric.WithDescription("Model updates applied by the LinUCB router"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		m.logger.Warn("failed to create linucb updates counter", zap.Error(err))
	}

	m.linucbRecomputes, err = m.meter.Int64Counter(
		"modelrouter.linucb.recomputes_total",
		metric.WithDescription("Full re-inversions of an arm's design matrix, labeled by reason (periodic, condition, degenerate)"),
		metric.WithUnit("{recompute}"),
	)
	if err != nil {
		m.logger.Warn("failed to create linucb recomputes counter", zap.Error(err))
	}

	m.linucbConditionGauge, err = m.meter.Float64Gauge(
		"modelrouter.linucb.condition_number",
		metric.WithDescription("Estimated infinity-norm condition number of an arm's design matrix after its last update"),
	)
	if err != nil {
		m.logger.Warn("failed to create linucb condition gauge", zap.Error(err))
	}
}

func armAttr(arm string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("arm", arm))
}

func (m *Metrics) recordThompsonSelection(ctx context.Context, arm string, forced bool) {
	if m == nil {
		return
	}
	if m.thompsonSelections != nil {
		m.thompsonSelections.Add(ctx, 1, armAttr(arm))
	}
	if forced && m.thompsonForced != nil {
		m.thompsonForced.Add(ctx, 1, armAttr(arm))
	}
}

func (m *Metrics) recordThompsonUpdate(ctx context.Context, arm string, reward float64, reset bool) {
	if m == nil {
		return
	}
	if m.thompsonUpdates != nil {
		m.thompsonUpdates.Add(ctx, 1, armAttr(arm))
	}
	if m.thompsonReward != nil {
		m.thompsonReward.Add(ctx, reward, armAttr(arm))
	}
	if reset && m.thompsonResets != nil {
		m.thompsonResets.Add(ctx, 1)
	}
}

func (m *Metrics) recordLinUCBSelection(ctx context.Context, arm string) {
	if m == nil || m.linucbSelections == nil {
		return
	}
	m.linucbSelections.Add(ctx, 1, armAttr(arm))
}

func (m *Metrics) recordLinUCBUpdate(ctx context.Context, arm string, recomputes []string, condition float64) {
	if m == nil {
		return
	}
	if m.linucbUpdates != nil {
		m.linucbUpdates.Add(ctx, 1, armAttr(arm))
	}
	if m.linucbRecomputes != nil {
		for _, reason := range recomputes {
			m.linucbRecomputes.Add(ctx, 1, metric.WithAttributes(
				attribute.String("arm", arm),
				attribute.String("reason", reason),
			))
		}
	}
	if condition > 0 && m.linucbConditionGauge != nil {
		m.linucbConditionGauge.Record(ctx, condition, armAttr(arm))
	}
}
