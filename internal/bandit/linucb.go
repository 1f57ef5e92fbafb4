package bandit

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/modelrouter/internal/config"
	"github.com/fyrsmithlabs/modelrouter/internal/statestore"
)

// ridgeEpsilon is added to the diagonal when a direct inversion fails.
const ridgeEpsilon = 1e-6

// armModel is the per-arm ridge regression state.
type armModel struct {
	a       *mat.Dense    // identity + sum of x xᵀ
	b       *mat.VecDense // sum of r x
	aInv    *mat.Dense    // kept in step with a
	updates int
}

// ArmSnapshot is a copy of one LinUCB arm's model.
type ArmSnapshot struct {
	A       [][]float64 `json:"A"`
	B       []float64   `json:"b"`
	AInv    [][]float64 `json:"A_inv"`
	Theta   []float64   `json:"theta"`
	Updates int         `json:"updates"`
}

// linucbArmState is the persisted form of an arm. AInv is rebuilt on load.
type linucbArmState struct {
	A [][]float64 `json:"A"`
	B []float64   `json:"b"`
}

// LinUCB selects arms with the linear upper confidence bound algorithm.
type LinUCB struct {
	d        int
	alpha    float64
	cfg      *config.Live
	logger   *zap.Logger
	metrics  *Metrics
	stateDir string

	mu      sync.Mutex
	arms    map[string]*armModel
	version uint64 // bumped under mu with every persisted snapshot

	saveMu       sync.Mutex
	savedVersion uint64
}

// LinUCBOption configures a LinUCB router.
type LinUCBOption func(*LinUCB)

// WithLinUCBLogger sets the logger.
func WithLinUCBLogger(logger *zap.Logger) LinUCBOption {
	return func(l *LinUCB) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLinUCBMetrics sets the metrics recorder.
func WithLinUCBMetrics(m *Metrics) LinUCBOption {
	return func(l *LinUCB) {
		l.metrics = m
	}
}

// WithLinUCBStateDir overrides the state directory from the config.
func WithLinUCBStateDir(dir string) LinUCBOption {
	return func(l *LinUCB) {
		l.stateDir = dir
	}
}

// NewLinUCB creates a router for d-dimensional feature vectors. The
// exploration coefficient is read from the config once, here.
func NewLinUCB(d int, cfg *config.Live, opts ...LinUCBOption) (*LinUCB, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDimension, d)
	}

	rc := cfg.Router()
	l := &LinUCB{
		d:      d,
		alpha:  rc.LinUCBAlpha,
		cfg:    cfg,
		logger: zap.NewNop(),
		arms:   make(map[string]*armModel),
	}
	for _, opt := range opts {
		opt(l)
	}

	if rc.PersistEnabled {
		if err := l.Load(); err != nil {
			l.logger.Warn("failed to load linucb state, starting from identity",
				zap.String("path", l.statePath()), zap.Error(err))
		}
	}
	return l, nil
}

// Dimension returns the feature vector length.
func (l *LinUCB) Dimension() int { return l.d }

// Alpha returns the exploration coefficient.
func (l *LinUCB) Alpha() float64 { return l.alpha }

// Select returns the arm with the highest score
// thetaᵀx + alpha*sqrt(xᵀ A⁻¹ x). Ties go to the first arm.
// When contextual routing is disabled it returns arms[0] without touching
// any arm state.
func (l *LinUCB) Select(ctx context.Context, arms []string, features []float64) (string, error) {
	arm, _, err := l.selectArm(ctx, arms, features, false)
	return arm, err
}

// SelectScored is Select that also returns the winning score, computed from
// the maintained A⁻¹.
func (l *LinUCB) SelectScored(ctx context.Context, arms []string, features []float64) (string, float64, error) {
	return l.selectArm(ctx, arms, features, false)
}

// SelectWithScore is the diagnostic form of SelectScored: scores are
// computed from a fresh inverse of each arm's A rather than the cached one.
func (l *LinUCB) SelectWithScore(ctx context.Context, arms []string, features []float64) (string, float64, error) {
	return l.selectArm(ctx, arms, features, true)
}

func (l *LinUCB) selectArm(ctx context.Context, arms []string, features []float64, freshInverse bool) (string, float64, error) {
	if len(arms) == 0 {
		return "", 0, ErrNoArms
	}
	if !l.cfg.Router().ContextualEnabled {
		return arms[0], 0, nil
	}
	x, err := l.vector(features)
	if err != nil {
		return "", 0, err
	}

	l.mu.Lock()
	best := 0
	bestScore := math.Inf(-1)
	for i, arm := range arms {
		m := l.armLocked(arm)
		aInv := m.aInv
		if freshInverse {
			aInv = invert(m.a)
		}
		score := ucbScore(aInv, m.b, x, l.alpha)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	l.mu.Unlock()

	l.metrics.recordLinUCBSelection(ctx, arms[best])
	return arms[best], bestScore, nil
}

// Update adds one observation to arm's model. reward is clamped to [0, 1].
// It is a no-op when contextual routing is disabled.
func (l *LinUCB) Update(ctx context.Context, arm string, reward float64, features []float64) error {
	rc := l.cfg.Router()
	if !rc.ContextualEnabled {
		return nil
	}
	x, err := l.vector(features)
	if err != nil {
		return err
	}
	r := Clamp01(reward)

	var recomputes []string
	condition := 0.0

	l.mu.Lock()
	m := l.armLocked(arm)

	m.a.RankOne(m.a, 1, x, x)

	// Sherman-Morrison: (A + xxᵀ)⁻¹ = A⁻¹ - (A⁻¹x)(A⁻¹x)ᵀ / (1 + xᵀA⁻¹x)
	var u mat.VecDense
	u.MulVec(m.aInv, x)
	den := 1 + mat.Dot(x, &u)
	if den <= 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		m.aInv = invert(m.a)
		recomputes = append(recomputes, recomputeDegenerate)
	} else {
		m.aInv.RankOne(m.aInv, -1/den, &u, &u)
	}

	m.b.AddScaledVec(m.b, r, x)
	m.updates++

	if rc.LinUCBRecomputeInterval > 0 && m.updates%rc.LinUCBRecomputeInterval == 0 {
		m.aInv = invert(m.a)
		recomputes = append(recomputes, recomputePeriodic)
	}

	if rc.LinUCBConditionThreshold > 0 {
		condition = conditionEstimate(m.a, m.aInv)
		if condition > rc.LinUCBConditionThreshold {
			m.aInv = invert(m.a)
			recomputes = append(recomputes, recomputeCondition)
		}
	}

	var (
		snapshot map[string]linucbArmState
		version  uint64
	)
	if rc.PersistEnabled {
		snapshot = l.persistSnapshotLocked()
		l.version++
		version = l.version
	}
	l.mu.Unlock()

	l.metrics.recordLinUCBUpdate(ctx, arm, recomputes, condition)

	if snapshot != nil {
		if err := l.save(snapshot, version); err != nil {
			l.logger.Warn("failed to persist linucb state", zap.Error(err))
		}
	}
	return nil
}

// ArmContext returns a copy of arm's model.
func (l *LinUCB) ArmContext(name string) (ArmSnapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.arms[name]
	if !ok {
		return ArmSnapshot{}, false
	}
	return m.snapshot(), true
}

// Arms returns a copy of every arm's model.
func (l *LinUCB) Arms() map[string]ArmSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]ArmSnapshot, len(l.arms))
	for name, m := range l.arms {
		out[name] = m.snapshot()
	}
	return out
}

func (l *LinUCB) vector(features []float64) (*mat.VecDense, error) {
	if len(features) != l.d {
		return nil, fmt.Errorf("%w: got %d features, want %d", ErrDimensionMismatch, len(features), l.d)
	}
	return mat.NewVecDense(l.d, append([]float64(nil), features...)), nil
}

// armLocked returns arm's model, creating A = I, b = 0. Caller holds l.mu.
func (l *LinUCB) armLocked(arm string) *armModel {
	m, ok := l.arms[arm]
	if !ok {
		m = &armModel{
			a:    identity(l.d),
			b:    mat.NewVecDense(l.d, nil),
			aInv: identity(l.d),
		}
		l.arms[arm] = m
	}
	return m
}

func (m *armModel) snapshot() ArmSnapshot {
	var theta mat.VecDense
	theta.MulVec(m.aInv, m.b)
	return ArmSnapshot{
		A:       denseRows(m.a),
		B:       append([]float64(nil), m.b.RawVector().Data...),
		AInv:    denseRows(m.aInv),
		Theta:   append([]float64(nil), theta.RawVector().Data...),
		Updates: m.updates,
	}
}

// ucbScore returns thetaᵀx + alpha*sqrt(max(0, xᵀ A⁻¹ x)) with theta = A⁻¹b.
func ucbScore(aInv *mat.Dense, b, x *mat.VecDense, alpha float64) float64 {
	var theta mat.VecDense
	theta.MulVec(aInv, b)
	mean := mat.Dot(&theta, x)
	variance := mat.Inner(x, aInv, x)
	return mean + alpha*math.Sqrt(math.Max(0, variance))
}

// conditionEstimate returns ||A||∞ · ||A⁻¹||∞.
func conditionEstimate(a, aInv *mat.Dense) float64 {
	return mat.Norm(a, math.Inf(1)) * mat.Norm(aInv, math.Inf(1))
}

// invert returns A⁻¹. If A cannot be inverted directly a small ridge is
// added to the diagonal; if that also fails the identity is returned.
func invert(a *mat.Dense) *mat.Dense {
	var inv mat.Dense
	if err := inv.Inverse(a); err == nil {
		return &inv
	}

	d, _ := a.Dims()
	ridged := mat.DenseCopyOf(a)
	for i := 0; i < d; i++ {
		ridged.Set(i, i, ridged.At(i, i)+ridgeEpsilon)
	}
	var ridgedInv mat.Dense
	if err := ridgedInv.Inverse(ridged); err == nil {
		return &ridgedInv
	}

	return identity(d)
}

func identity(d int) *mat.Dense {
	m := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func denseRows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = append([]float64(nil), m.RawRowView(i)...)
	}
	return rows
}

func (l *LinUCB) persistSnapshotLocked() map[string]linucbArmState {
	out := make(map[string]linucbArmState, len(l.arms))
	for name, m := range l.arms {
		out[name] = linucbArmState{
			A: denseRows(m.a),
			B: append([]float64(nil), m.b.RawVector().Data...),
		}
	}
	return out
}

// Save writes every arm's A and b to the state file.
func (l *LinUCB) Save() error {
	l.mu.Lock()
	snapshot := l.persistSnapshotLocked()
	l.version++
	version := l.version
	l.mu.Unlock()
	return l.save(snapshot, version)
}

// save skips snapshots older than the last one written.
func (l *LinUCB) save(snapshot map[string]linucbArmState, version uint64) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	if version <= l.savedVersion {
		return nil
	}
	if err := statestore.SaveJSON(l.statePath(), snapshot); err != nil {
		return err
	}
	l.savedVersion = version
	return nil
}

// Load replaces the in-memory models with the state file contents. A⁻¹ is
// recomputed from A. Arms whose shapes do not match the router dimension
// are skipped. A missing file leaves the router untouched.
func (l *LinUCB) Load() error {
	var loaded map[string]linucbArmState
	found, err := statestore.LoadJSON(l.statePath(), &loaded)
	if err != nil || !found {
		return err
	}

	arms := make(map[string]*armModel, len(loaded))
	for name, s := range loaded {
		a, b, ok := l.decodeArm(s)
		if !ok {
			l.logger.Warn("skipping linucb arm with wrong shape",
				zap.String("arm", name),
				zap.Int("dimension", l.d))
			continue
		}
		arms[name] = &armModel{a: a, b: b, aInv: invert(a)}
	}

	l.mu.Lock()
	l.arms = arms
	l.mu.Unlock()

	l.logger.Info("linucb state loaded", zap.String("path", l.statePath()), zap.Int("arms", len(arms)))
	return nil
}

func (l *LinUCB) decodeArm(s linucbArmState) (*mat.Dense, *mat.VecDense, bool) {
	return decodeArmState(s, l.d)
}

func decodeArmState(s linucbArmState, d int) (*mat.Dense, *mat.VecDense, bool) {
	if d < 1 || len(s.A) != d || len(s.B) != d {
		return nil, nil, false
	}
	data := make([]float64, 0, d*d)
	for _, row := range s.A {
		if len(row) != d {
			return nil, nil, false
		}
		data = append(data, row...)
	}
	for _, v := range append(data, s.B...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, false
		}
	}
	return mat.NewDense(d, d, data), mat.NewVecDense(d, append([]float64(nil), s.B...)), true
}

// StateFileName returns the snapshot file name for a d-dimensional router.
func StateFileName(d int) string {
	return fmt.Sprintf("linucb_state_d%d.json", d)
}

func (l *LinUCB) statePath() string {
	dir := l.stateDir
	if dir == "" {
		dir = l.cfg.Router().StateDir
	}
	return filepath.Join(dir, StateFileName(l.d))
}
