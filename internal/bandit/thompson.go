package bandit

import (
	"context"
	"math"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fyrsmithlabs/modelrouter/internal/config"
	"github.com/fyrsmithlabs/modelrouter/internal/statestore"
)

// ThompsonStateFile is the snapshot file name inside the state directory.
const ThompsonStateFile = "thompson_state.json"

// ArmState is the Beta posterior of one Thompson arm.
type ArmState struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// Mean returns the posterior mean alpha/(alpha+beta).
func (s ArmState) Mean() float64 {
	total := s.Alpha + s.Beta
	if total <= 0 {
		return 0
	}
	return s.Alpha / total
}

// Thompson selects arms by Thompson Sampling over Beta posteriors.
type Thompson struct {
	cfg      *config.Live
	logger   *zap.Logger
	metrics  *Metrics
	stateDir string

	mu            sync.Mutex
	arms          map[string]*ArmState
	rng           *rand.Rand
	lowEntropyRun int
	version       uint64 // bumped under mu with every persisted snapshot

	saveMu       sync.Mutex
	savedVersion uint64
}

// ThompsonOption configures a Thompson router.
type ThompsonOption func(*Thompson)

// WithThompsonLogger sets the logger.
func WithThompsonLogger(logger *zap.Logger) ThompsonOption {
	return func(t *Thompson) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithThompsonRand sets the random source used for draws and exploration.
func WithThompsonRand(src rand.Source) ThompsonOption {
	return func(t *Thompson) {
		if src != nil {
			t.rng = rand.New(src)
		}
	}
}

// WithThompsonMetrics sets the metrics recorder.
func WithThompsonMetrics(m *Metrics) ThompsonOption {
	return func(t *Thompson) {
		t.metrics = m
	}
}

// WithThompsonStateDir overrides the state directory from the config.
func WithThompsonStateDir(dir string) ThompsonOption {
	return func(t *Thompson) {
		t.stateDir = dir
	}
}

// NewThompson creates a Thompson router. When persistence is enabled the
// previous snapshot is loaded; a missing or unreadable snapshot leaves every
// arm at the prior.
func NewThompson(cfg *config.Live, opts ...ThompsonOption) *Thompson {
	now := uint64(time.Now().UnixNano())
	t := &Thompson{
		cfg:    cfg,
		logger: zap.NewNop(),
		arms:   make(map[string]*ArmState),
		rng:    rand.New(rand.NewPCG(now, now>>1|1)),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.cfg.Router().PersistEnabled {
		if err := t.Load(); err != nil {
			t.logger.Warn("failed to load thompson state, starting from prior",
				zap.String("path", t.statePath()), zap.Error(err))
		}
	}
	return t
}

// Select returns the arm with the highest posterior draw.
//
// When Thompson routing is disabled it returns arms[0] without drawing any
// randomness. With probability epsilon (and more than one arm) the draw is
// overridden by a uniformly random different arm.
func (t *Thompson) Select(ctx context.Context, arms []string, _ map[string]any) (string, error) {
	if len(arms) == 0 {
		return "", ErrNoArms
	}

	rc := t.cfg.Router()
	if !rc.ThompsonEnabled {
		return arms[0], nil
	}

	t.mu.Lock()
	best := 0
	bestDraw := math.Inf(-1)
	for i, arm := range arms {
		s := t.armLocked(arm, rc)
		draw := distuv.Beta{Alpha: s.Alpha, Beta: s.Beta, Src: t.rng}.Rand()
		if draw > bestDraw {
			best, bestDraw = i, draw
		}
	}

	forced := false
	if rc.Epsilon > 0 && len(arms) > 1 && t.rng.Float64() < rc.Epsilon {
		other := t.rng.IntN(len(arms) - 1)
		if other >= best {
			other++
		}
		best = other
		forced = true
	}
	t.mu.Unlock()

	chosen := arms[best]
	t.metrics.recordThompsonSelection(ctx, chosen, forced)
	if forced {
		t.logger.Debug("forced exploration", zap.String("arm", chosen), zap.Float64("epsilon", rc.Epsilon))
	}
	return chosen, nil
}

// Update applies a reward to arm's posterior: alpha += r, beta += 1-r with r
// clamped to [0, 1].
//
// The posterior is updated even when Thompson routing is disabled so that it
// is warm when routing is switched on; metrics, the collapse check and
// persistence only run while enabled.
func (t *Thompson) Update(ctx context.Context, arm string, reward float64, _ map[string]any) {
	r := Clamp01(reward)
	rc := t.cfg.Router()

	t.mu.Lock()
	s := t.armLocked(arm, rc)
	s.Alpha += r
	s.Beta += 1 - r

	if !rc.ThompsonEnabled {
		t.mu.Unlock()
		return
	}

	reset := t.checkCollapseLocked(rc)
	var (
		snapshot map[string]ArmState
		version  uint64
	)
	if rc.PersistEnabled {
		snapshot, version = t.versionedSnapshotLocked()
	}
	t.mu.Unlock()

	t.metrics.recordThompsonUpdate(ctx, arm, r, reset)
	if reset {
		t.logger.Info("thompson posteriors reset after entropy collapse",
			zap.Float64("threshold", rc.EntropyThreshold),
			zap.Int("window", rc.EntropyWindow))
	}

	if snapshot != nil {
		if err := t.save(snapshot, version); err != nil {
			t.logger.Warn("failed to persist thompson state", zap.Error(err))
		}
	}
}

// checkCollapseLocked tracks consecutive low-entropy updates and resets all
// arms to the prior once the run reaches the window. Caller holds t.mu.
func (t *Thompson) checkCollapseLocked(rc config.RouterConfig) bool {
	if rc.EntropyThreshold <= 0 || rc.EntropyWindow <= 0 {
		t.lowEntropyRun = 0
		return false
	}

	if meanEntropy(t.arms) >= rc.EntropyThreshold {
		t.lowEntropyRun = 0
		return false
	}

	t.lowEntropyRun++
	if t.lowEntropyRun < rc.EntropyWindow {
		return false
	}

	for _, s := range t.arms {
		s.Alpha, s.Beta = rc.Alpha0, rc.Beta0
	}
	t.lowEntropyRun = 0
	return true
}

// armLocked returns arm's state, creating it at the prior. Caller holds t.mu.
func (t *Thompson) armLocked(arm string, rc config.RouterConfig) *ArmState {
	s, ok := t.arms[arm]
	if !ok {
		s = &ArmState{Alpha: rc.Alpha0, Beta: rc.Beta0}
		t.arms[arm] = s
	}
	return s
}

// Arms returns a copy of every arm's posterior.
func (t *Thompson) Arms() map[string]ArmState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Arm returns a copy of one arm's posterior.
func (t *Thompson) Arm(name string) (ArmState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.arms[name]
	if !ok {
		return ArmState{}, false
	}
	return *s, true
}

func (t *Thompson) snapshotLocked() map[string]ArmState {
	out := make(map[string]ArmState, len(t.arms))
	for name, s := range t.arms {
		out[name] = *s
	}
	return out
}

func (t *Thompson) versionedSnapshotLocked() (map[string]ArmState, uint64) {
	t.version++
	return t.snapshotLocked(), t.version
}

// Save writes every arm's posterior to the state file.
func (t *Thompson) Save() error {
	t.mu.Lock()
	snapshot, version := t.versionedSnapshotLocked()
	t.mu.Unlock()
	return t.save(snapshot, version)
}

// save writes snapshot unless a newer one has already been written, so
// concurrent updates cannot leave an older posterior on disk.
func (t *Thompson) save(snapshot map[string]ArmState, version uint64) error {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()
	if version <= t.savedVersion {
		return nil
	}
	if err := statestore.SaveJSON(t.statePath(), snapshot); err != nil {
		return err
	}
	t.savedVersion = version
	return nil
}

// Load replaces the in-memory posteriors with the state file contents.
// Entries with non-positive or non-finite parameters are skipped.
// A missing file leaves the router untouched.
func (t *Thompson) Load() error {
	var loaded map[string]ArmState
	found, err := statestore.LoadJSON(t.statePath(), &loaded)
	if err != nil || !found {
		return err
	}

	arms := make(map[string]*ArmState, len(loaded))
	for name, s := range loaded {
		if !validBetaParam(s.Alpha) || !validBetaParam(s.Beta) {
			t.logger.Warn("skipping invalid thompson arm state",
				zap.String("arm", name),
				zap.Float64("alpha", s.Alpha),
				zap.Float64("beta", s.Beta))
			continue
		}
		arms[name] = &s
	}

	t.mu.Lock()
	t.arms = arms
	t.lowEntropyRun = 0
	t.mu.Unlock()

	t.logger.Info("thompson state loaded", zap.String("path", t.statePath()), zap.Int("arms", len(arms)))
	return nil
}

func (t *Thompson) statePath() string {
	dir := t.stateDir
	if dir == "" {
		dir = t.cfg.Router().StateDir
	}
	return filepath.Join(dir, ThompsonStateFile)
}

func validBetaParam(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
