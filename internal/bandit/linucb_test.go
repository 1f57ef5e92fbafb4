package bandit

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/modelrouter/internal/config"
)

func contextualLive(mutate func(rc *config.RouterConfig)) *config.Live {
	return newTestLive(func(rc *config.RouterConfig) {
		rc.ContextualEnabled = true
		if mutate != nil {
			mutate(rc)
		}
	})
}

func TestNewLinUCB_InvalidDimension(t *testing.T) {
	_, err := NewLinUCB(0, contextualLive(nil))
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = NewLinUCB(-3, contextualLive(nil))
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestLinUCB_DimensionMismatch(t *testing.T) {
	l, err := NewLinUCB(2, contextualLive(nil))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Select(ctx, []string{"a", "b"}, []float64{1, 0, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, _, err = l.SelectWithScore(ctx, []string{"a", "b"}, []float64{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = l.Update(ctx, "a", 1, []float64{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	arm, err := l.Select(ctx, []string{"a", "b"}, []float64{1, 0})
	require.NoError(t, err)
	assert.Equal(t, "a", arm)
}

func TestLinUCB_NoArms(t *testing.T) {
	l, err := NewLinUCB(2, contextualLive(nil))
	require.NoError(t, err)

	_, err = l.Select(context.Background(), nil, []float64{1, 0})
	assert.ErrorIs(t, err, ErrNoArms)
}

func TestLinUCB_DisabledPassThrough(t *testing.T) {
	live := newTestLive(func(rc *config.RouterConfig) { rc.ContextualEnabled = false })
	l, err := NewLinUCB(2, live)
	require.NoError(t, err)
	ctx := context.Background()

	arm, err := l.Select(ctx, []string{"x", "y"}, []float64{0, 1})
	require.NoError(t, err)
	assert.Equal(t, "x", arm)

	// Update is a full no-op while disabled.
	require.NoError(t, l.Update(ctx, "y", 1, []float64{0, 1}))
	_, ok := l.ArmContext("y")
	assert.False(t, ok)
	_, ok = l.ArmContext("x")
	assert.False(t, ok, "select does not touch state while disabled")
}

func TestLinUCB_TiesGoToFirstArm(t *testing.T) {
	l, err := NewLinUCB(3, contextualLive(nil))
	require.NoError(t, err)

	arm, err := l.Select(context.Background(), []string{"c", "a", "b"}, []float64{0.2, 0.3, 0.5})
	require.NoError(t, err)
	assert.Equal(t, "c", arm)
}

func TestLinUCB_LearnsOrthogonalPreference(t *testing.T) {
	l, err := NewLinUCB(2, contextualLive(nil))
	require.NoError(t, err)
	ctx := context.Background()

	e1 := []float64{1, 0}
	e2 := []float64{0, 1}
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Update(ctx, "a", 1, e1))
		require.NoError(t, l.Update(ctx, "b", 0, e1))
		require.NoError(t, l.Update(ctx, "a", 0, e2))
		require.NoError(t, l.Update(ctx, "b", 1, e2))
	}

	arm, err := l.Select(ctx, []string{"b", "a"}, e1)
	require.NoError(t, err)
	assert.Equal(t, "a", arm)

	arm, err = l.Select(ctx, []string{"a", "b"}, e2)
	require.NoError(t, err)
	assert.Equal(t, "b", arm)
}

func assertInverseOf(t *testing.T, snap ArmSnapshot, tol float64) {
	t.Helper()
	d := len(snap.A)
	a := mat.NewDense(d, d, nil)
	aInv := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		a.SetRow(i, snap.A[i])
		aInv.SetRow(i, snap.AInv[i])
	}

	var want mat.Dense
	require.NoError(t, want.Inverse(a))
	assert.True(t, mat.EqualApprox(&want, aInv, tol), "A_inv drifted from inverse(A)")
}

func TestLinUCB_RecomputeIntervalKeepsExactInverse(t *testing.T) {
	l, err := NewLinUCB(3, contextualLive(func(rc *config.RouterConfig) {
		rc.LinUCBRecomputeInterval = 1
	}))
	require.NoError(t, err)
	ctx := context.Background()

	features := [][]float64{
		{1, 0.5, -0.2},
		{0.3, 2, 0.1},
		{-1, 0.4, 3},
		{0.9, 0.9, 0.9},
	}
	for i := 0; i < 40; i++ {
		require.NoError(t, l.Update(ctx, "a", float64(i%2), features[i%len(features)]))
		snap, ok := l.ArmContext("a")
		require.True(t, ok)
		assertInverseOf(t, snap, 1e-12)
	}
}

func TestLinUCB_ShermanMorrisonTracksInverse(t *testing.T) {
	l, err := NewLinUCB(3, contextualLive(nil))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		x := []float64{float64(i%3) + 0.1, 1 - float64(i%2), 0.5}
		require.NoError(t, l.Update(ctx, "a", 0.6, x))
	}

	snap, ok := l.ArmContext("a")
	require.True(t, ok)
	assert.Equal(t, 25, snap.Updates)
	assertInverseOf(t, snap, 1e-8)
}

func TestLinUCB_ConditionThresholdForcesRecompute(t *testing.T) {
	l, err := NewLinUCB(2, contextualLive(func(rc *config.RouterConfig) {
		rc.LinUCBConditionThreshold = 1 // every condition number is >= 1
	}))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Update(context.Background(), "a", 1, []float64{1, float64(i)}))
		snap, _ := l.ArmContext("a")
		assertInverseOf(t, snap, 1e-12)
	}
}

func TestLinUCB_UpdateAccumulates(t *testing.T) {
	l, err := NewLinUCB(2, contextualLive(nil))
	require.NoError(t, err)

	require.NoError(t, l.Update(context.Background(), "a", 1.7, []float64{2, 1}))

	snap, ok := l.ArmContext("a")
	require.True(t, ok)
	assert.Equal(t, [][]float64{{5, 2}, {2, 2}}, snap.A)
	assert.Equal(t, []float64{2, 1}, snap.B, "reward clamped to 1")
	assert.Equal(t, 1, snap.Updates)
}

func TestLinUCB_SelectWithScore(t *testing.T) {
	l, err := NewLinUCB(2, contextualLive(func(rc *config.RouterConfig) { rc.LinUCBAlpha = 0.5 }))
	require.NoError(t, err)
	ctx := context.Background()
	assert.Equal(t, 0.5, l.Alpha())

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Update(ctx, "a", 1, []float64{1, 0}))
	}

	x := []float64{1, 0}
	arm, score, err := l.SelectWithScore(ctx, []string{"b", "a"}, x)
	require.NoError(t, err)
	assert.Equal(t, "a", arm)

	plain, err := l.Select(ctx, []string{"b", "a"}, x)
	require.NoError(t, err)
	assert.Equal(t, arm, plain)

	// A = I + 20 e1e1ᵀ, b = 20 e1: mean = 20/21, conf = sqrt(1/21).
	assert.InDelta(t, 20.0/21.0+0.5*0.2182178902359924, score, 1e-9)
}

func TestLinUCB_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	live := contextualLive(func(rc *config.RouterConfig) {
		rc.PersistEnabled = true
		rc.StateDir = dir
	})
	ctx := context.Background()

	l, err := NewLinUCB(3, live)
	require.NoError(t, err)
	require.NoError(t, l.Update(ctx, "a", 1, []float64{1, 2, 3}))
	require.NoError(t, l.Update(ctx, "b", 0.25, []float64{0, 1, 0}))

	_, err = os.Stat(filepath.Join(dir, "linucb_state_d3.json"))
	require.NoError(t, err)

	reloaded, err := NewLinUCB(3, live)
	require.NoError(t, err)

	for _, arm := range []string{"a", "b"} {
		want, ok := l.ArmContext(arm)
		require.True(t, ok)
		got, ok := reloaded.ArmContext(arm)
		require.True(t, ok)

		assert.Equal(t, want.A, got.A)
		assert.Equal(t, want.B, got.B)
		assertInverseOf(t, got, 1e-12)
	}
}

func TestLinUCB_LoadSkipsWrongShape(t *testing.T) {
	dir := t.TempDir()
	state := map[string]linucbArmState{
		"good":   {A: [][]float64{{2, 0}, {0, 2}}, B: []float64{1, 1}},
		"short":  {A: [][]float64{{1}}, B: []float64{1}},
		"ragged": {A: [][]float64{{1, 0}, {0}}, B: []float64{0, 0}},
	}
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateFileName(2)), data, 0600))

	l, err := NewLinUCB(2, contextualLive(func(rc *config.RouterConfig) {
		rc.PersistEnabled = true
		rc.StateDir = dir
	}))
	require.NoError(t, err)

	arms := l.Arms()
	require.Len(t, arms, 1)
	good := arms["good"]
	assert.InDeltaSlice(t, []float64{0.5, 0}, good.AInv[0], 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0.5}, good.AInv[1], 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, good.Theta, 1e-12)
	assert.Equal(t, 0, good.Updates)
}

func TestInvert_SingularFallsBack(t *testing.T) {
	singular := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	for _, v := range invert(singular).RawMatrix().Data {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}

	// The zero matrix is inverted through the ridge.
	zero := mat.NewDense(2, 2, nil)
	want := identity(2)
	want.Scale(1/ridgeEpsilon, want)
	assert.True(t, mat.EqualApprox(want, invert(zero), 1e-3))
}

func TestLinUCB_SelectScoredUsesMaintainedInverse(t *testing.T) {
	l, err := NewLinUCB(2, contextualLive(func(rc *config.RouterConfig) { rc.LinUCBAlpha = 0.5 }))
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, l.Update(ctx, "a", 1, []float64{1, 0}))
	}
	x := []float64{1, 0}
	want := 20.0/21.0 + 0.5*math.Sqrt(1.0/21.0)

	arm, score, err := l.SelectScored(ctx, []string{"a"}, x)
	require.NoError(t, err)
	assert.Equal(t, "a", arm)
	assert.InDelta(t, want, score, 1e-9)

	// Zero the cached inverse: only the fresh-inverse path still sees A.
	l.mu.Lock()
	l.arms["a"].aInv = mat.NewDense(2, 2, nil)
	l.mu.Unlock()

	_, score, err = l.SelectScored(ctx, []string{"a"}, x)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	_, score, err = l.SelectWithScore(ctx, []string{"a"}, x)
	require.NoError(t, err)
	assert.InDelta(t, want, score, 1e-9)
}

func TestLinUCB_ConcurrentPersistedUpdatesKeepLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	live := contextualLive(func(rc *config.RouterConfig) {
		rc.PersistEnabled = true
		rc.StateDir = dir
	})
	ctx := context.Background()
	l, err := NewLinUCB(2, live)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := l.Update(ctx, "a", 1, []float64{1, 0.5}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	want, ok := l.ArmContext("a")
	require.True(t, ok)
	assert.Equal(t, 160, want.Updates)

	reloaded, err := NewLinUCB(2, live)
	require.NoError(t, err)
	got, ok := reloaded.ArmContext("a")
	require.True(t, ok)
	assert.Equal(t, want.A, got.A, "the file holds the final state")
	assert.Equal(t, want.B, got.B)
}
