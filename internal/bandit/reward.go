package bandit

import (
	"math"
	"time"
)

const (
	// costCeiling is the per-request cost (USD) treated as maximally expensive.
	costCeiling = 0.1

	// minLatencyBudget keeps latency normalisation meaningful for tiny budgets.
	minLatencyBudget = time.Second

	costWeight    = 0.3
	latencyWeight = 0.3
	successWeight = 0.4
)

// Outcome describes what happened when a selected arm was executed.
type Outcome struct {
	Success       bool
	Cost          float64 // USD
	Latency       time.Duration
	LatencyBudget time.Duration
}

// ComputeReward maps an outcome to a reward in [0, 1].
//
// Failures score 0. Successful calls earn a fixed 0.4 plus up to 0.3 each
// for being cheap and for being fast relative to the latency budget.
func ComputeReward(o Outcome) float64 {
	if !o.Success {
		return 0
	}

	costNorm := math.Min(math.Max(o.Cost, 0)/costCeiling, 1)

	budget := o.LatencyBudget
	if budget < minLatencyBudget {
		budget = minLatencyBudget
	}
	latencyNorm := math.Min(math.Max(float64(o.Latency), 0)/float64(budget), 1)

	return Clamp01((1-costNorm)*costWeight + (1-latencyNorm)*latencyWeight + successWeight)
}

// Clamp01 clamps r to [0, 1]. NaN maps to 0.
func Clamp01(r float64) float64 {
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
