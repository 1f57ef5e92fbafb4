// Package routing ties the bandit routers to decision bookkeeping.
//
// Select picks an arm and remembers the decision under a fresh ID;
// Reward looks the decision up and feeds the reward to the router that
// made it. Decisions live in a bounded TTL cache, so rewards that arrive
// too late are rejected with ErrDecisionNotFound.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/modelrouter/internal/bandit"
	"github.com/fyrsmithlabs/modelrouter/internal/cache"
	"github.com/fyrsmithlabs/modelrouter/internal/config"
	"github.com/fyrsmithlabs/modelrouter/internal/llm"
	"github.com/fyrsmithlabs/modelrouter/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/modelrouter/internal/routing"

// DecisionsCacheName is the name of the pending decision cache.
const DecisionsCacheName = "decisions"

var (
	// ErrDecisionNotFound is returned for unknown, consumed or expired decisions.
	ErrDecisionNotFound = errors.New("decision not found")

	// ErrNoLLMClient is returned by Execute when no client is configured.
	ErrNoLLMClient = errors.New("no llm client configured")
)

// Service routes requests and collects rewards.
type Service struct {
	thompson  *bandit.Thompson
	linucb    *bandit.LinUCB
	live      *config.Live
	decisions *cache.Cache[Decision]
	client    llm.Client
	publisher DecisionPublisher
	logger    *zap.Logger
	now       func() time.Time

	tracer          trace.Tracer
	meter           metric.Meter
	decisionCounter metric.Int64Counter
	rewardCounter   metric.Int64Counter
	missingCounter  metric.Int64Counter
	executeCounter  metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublisher announces every decision through p.
func WithPublisher(p DecisionPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLLMClient sets the client used by Execute.
func WithLLMClient(c llm.Client) Option {
	return func(s *Service) {
		s.client = c
	}
}

// WithClock overrides time.Now for decision timestamps and latency.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMeter overrides the global meter.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		if m != nil {
			s.meter = m
		}
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewService creates a routing service. linucb may be nil, in which case
// every request goes to the Thompson router.
func NewService(thompson *bandit.Thompson, linucb *bandit.LinUCB, live *config.Live, mgr *cache.Manager, cacheCfg config.CacheConfig, opts ...Option) (*Service, error) {
	if thompson == nil {
		return nil, errors.New("thompson router is required")
	}
	if live == nil {
		return nil, errors.New("live config is required")
	}
	if mgr == nil {
		return nil, errors.New("cache manager is required")
	}

	decisions, err := cache.GetOrCreate[Decision](mgr, DecisionsCacheName, cacheCfg.DecisionsMaxSize, cacheCfg.DecisionsTTL)
	if err != nil {
		return nil, fmt.Errorf("creating decision cache: %w", err)
	}

	s := &Service{
		thompson:  thompson,
		linucb:    linucb,
		live:      live,
		decisions: decisions,
		logger:    zap.NewNop(),
		now:       time.Now,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	var err error

	s.decisionCounter, err = s.meter.Int64Counter(
		"modelrouter.routing.decisions_total",
		metric.WithDescription("Decisions made, labeled by router"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		s.logger.Warn("failed to create decision counter", zap.Error(err))
	}

	s.rewardCounter, err = s.meter.Int64Counter(
		"modelrouter.routing.rewards_total",
		metric.WithDescription("Rewards applied to decisions, labeled by router"),
		metric.WithUnit("{reward}"),
	)
	if err != nil {
		s.logger.Warn("failed to create reward counter", zap.Error(err))
	}

	s.missingCounter, err = s.meter.Int64Counter(
		"modelrouter.routing.unknown_decisions_total",
		metric.WithDescription("Rewards rejected because the decision was unknown or expired"),
		metric.WithUnit("{reward}"),
	)
	if err != nil {
		s.logger.Warn("failed to create unknown decision counter", zap.Error(err))
	}

	s.executeCounter, err = s.meter.Int64Counter(
		"modelrouter.routing.executions_total",
		metric.WithDescription("Prompts executed against a selected arm, labeled by success"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		s.logger.Warn("failed to create execution counter", zap.Error(err))
	}
}

// Select picks an arm and records the decision.
//
// Requests with features go to LinUCB when contextual routing is enabled;
// everything else goes to the Thompson router.
func (s *Service) Select(ctx context.Context, req SelectRequest) (Decision, error) {
	ctx, span := s.tracer.Start(ctx, "routing.select")
	defer span.End()

	span.SetAttributes(
		attribute.Int("arms", len(req.Arms)),
		attribute.Int("features", len(req.Features)),
	)

	d := Decision{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
	}

	var err error
	if s.useContextual(req.Features) {
		d.Router = RouterLinUCB
		if req.Diagnostic {
			d.Arm, d.Score, err = s.linucb.SelectWithScore(ctx, req.Arms, req.Features)
		} else {
			d.Arm, d.Score, err = s.linucb.SelectScored(ctx, req.Arms, req.Features)
		}
		d.Features = append([]float64(nil), req.Features...)
	} else {
		d.Router = RouterThompson
		d.Arm, err = s.thompson.Select(ctx, req.Arms, req.Context)
		if err == nil {
			if st, ok := s.thompson.Arm(d.Arm); ok {
				d.Score = st.Mean()
			}
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Decision{}, fmt.Errorf("selecting arm: %w", err)
	}

	s.decisions.Set(d.ID, d)

	span.SetAttributes(
		attribute.String("router", d.Router),
		attribute.String("arm", d.Arm),
		attribute.String("decision_id", d.ID),
	)
	if s.decisionCounter != nil {
		s.decisionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("router", d.Router)))
	}

	ctx = logging.WithDecisionID(logging.WithRouter(ctx, d.Router), d.ID)
	s.logger.Debug("arm selected", append(logging.ContextFields(ctx),
		zap.String("arm", d.Arm),
		zap.Float64("score", d.Score))...)

	if s.publisher != nil {
		if err := s.publisher.PublishDecision(ctx, d); err != nil {
			s.logger.Warn("failed to publish decision", append(logging.ContextFields(ctx), zap.Error(err))...)
		}
	}
	return d, nil
}

func (s *Service) useContextual(features []float64) bool {
	return len(features) > 0 && s.linucb != nil && s.live.Router().ContextualEnabled
}

// Reward applies reward to the router that made decision id. A decision
// can be rewarded once.
func (s *Service) Reward(ctx context.Context, id string, reward float64) error {
	ctx, span := s.tracer.Start(ctx, "routing.reward")
	defer span.End()

	span.SetAttributes(
		attribute.String("decision_id", id),
		attribute.Float64("reward", reward),
	)

	d, ok := s.decisions.Get(id)
	if !ok || !s.decisions.Delete(id) {
		if s.missingCounter != nil {
			s.missingCounter.Add(ctx, 1)
		}
		err := fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
		span.RecordError(err)
		return err
	}

	switch d.Router {
	case RouterLinUCB:
		if s.linucb == nil {
			return fmt.Errorf("decision %s was made by linucb but no linucb router is configured", id)
		}
		if err := s.linucb.Update(ctx, d.Arm, reward, d.Features); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("updating linucb: %w", err)
		}
	default:
		s.thompson.Update(ctx, d.Arm, reward, nil)
	}

	if s.rewardCounter != nil {
		s.rewardCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("router", d.Router)))
	}

	ctx = logging.WithDecisionID(logging.WithRouter(ctx, d.Router), d.ID)
	s.logger.Info("reward applied", append(logging.ContextFields(ctx),
		zap.String("arm", d.Arm),
		zap.Float64("reward", bandit.Clamp01(reward)),
		zap.Duration("age", s.now().Sub(d.CreatedAt)))...)
	return nil
}

// Execute selects an arm, runs the prompt against it and rewards the
// decision from the observed outcome. A failed completion is rewarded 0 and
// returned as an error alongside the result.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if s.client == nil {
		return ExecuteResult{}, ErrNoLLMClient
	}

	ctx, span := s.tracer.Start(ctx, "routing.execute")
	defer span.End()

	d, err := s.Select(ctx, SelectRequest{Arms: req.Arms, Features: req.Features, Context: req.Context})
	if err != nil {
		return ExecuteResult{}, err
	}

	start := s.now()
	out, callErr := s.client.Complete(ctx, d.Arm, req.Prompt)
	latency := s.now().Sub(start)

	reward := bandit.ComputeReward(bandit.Outcome{
		Success:       callErr == nil,
		Cost:          req.ArmCosts[d.Arm],
		Latency:       latency,
		LatencyBudget: req.LatencyBudget,
	})
	res := ExecuteResult{Decision: d, Output: out, Latency: latency, Reward: reward}
	if err := s.Reward(ctx, d.ID, reward); err != nil {
		// The decision expired or was evicted while the model ran; the
		// output is still returned.
		span.RecordError(err)
		return res, err
	}

	if s.executeCounter != nil {
		s.executeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("arm", d.Arm),
			attribute.Bool("success", callErr == nil),
		))
	}

	if callErr != nil {
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		return res, fmt.Errorf("executing on %s: %w", d.Arm, callErr)
	}
	return res, nil
}

// Decision returns a pending decision without consuming it.
func (s *Service) Decision(id string) (Decision, bool) {
	return s.decisions.Get(id)
}

// Snapshot returns the current state of both routers.
func (s *Service) Snapshot() Snapshot {
	rc := s.live.Router()
	snap := Snapshot{
		ThompsonEnabled:   rc.ThompsonEnabled,
		ContextualEnabled: rc.ContextualEnabled,
		Thompson:          s.thompson.Arms(),
		LinUCB:            map[string]LinUCBSummary{},
		PendingDecisions:  s.decisions.Size(),
	}
	if s.linucb != nil {
		snap.Dimension = s.linucb.Dimension()
		for name, arm := range s.linucb.Arms() {
			snap.LinUCB[name] = LinUCBSummary{Theta: arm.Theta, Updates: arm.Updates}
		}
	}
	return snap
}

// Save persists both routers regardless of the persistence flag.
func (s *Service) Save() error {
	var errs []error
	if err := s.thompson.Save(); err != nil {
		errs = append(errs, fmt.Errorf("saving thompson state: %w", err))
	}
	if s.linucb != nil {
		if err := s.linucb.Save(); err != nil {
			errs = append(errs, fmt.Errorf("saving linucb state: %w", err))
		}
	}
	return errors.Join(errs...)
}
