package routing

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/modelrouter/internal/bandit"
)

// Router names recorded on decisions.
const (
	RouterThompson = "thompson"
	RouterLinUCB   = "linucb"
)

// SelectRequest asks for one arm out of Arms. Features route the request to
// the contextual router when contextual routing is enabled.
type SelectRequest struct {
	Arms     []string       `json:"arms"`
	Features []float64      `json:"features,omitempty"`
	Context  map[string]any `json:"context,omitempty"`

	// Diagnostic scores contextual arms from a fresh inverse of A instead
	// of the incrementally maintained one.
	Diagnostic bool `json:"diagnostic,omitempty"`
}

// Decision is a selection awaiting its reward.
type Decision struct {
	ID        string    `json:"decision_id"`
	Arm       string    `json:"arm"`
	Router    string    `json:"router"`
	Score     float64   `json:"score"`
	Features  []float64 `json:"features,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExecuteRequest selects an arm and runs Prompt against it.
type ExecuteRequest struct {
	Arms          []string           `json:"arms"`
	Features      []float64          `json:"features,omitempty"`
	Context       map[string]any     `json:"context,omitempty"`
	Prompt        string             `json:"prompt"`
	LatencyBudget time.Duration      `json:"latency_budget,omitempty"`
	ArmCosts      map[string]float64 `json:"arm_costs,omitempty"` // USD per call
}

// ExecuteResult reports the outcome of an ExecuteRequest.
type ExecuteResult struct {
	Decision Decision      `json:"decision"`
	Output   string        `json:"output,omitempty"`
	Latency  time.Duration `json:"latency"`
	Reward   float64       `json:"reward"`
}

// LinUCBSummary is the client-facing view of one contextual arm.
type LinUCBSummary struct {
	Theta   []float64 `json:"theta"`
	Updates int       `json:"updates"`
}

// Snapshot is the state of both routers.
type Snapshot struct {
	ThompsonEnabled   bool                       `json:"thompson_enabled"`
	ContextualEnabled bool                       `json:"contextual_enabled"`
	Thompson          map[string]bandit.ArmState `json:"thompson"`
	LinUCB            map[string]LinUCBSummary   `json:"linucb"`
	Dimension         int                        `json:"dimension"`
	PendingDecisions  int                        `json:"pending_decisions"`
}

// DecisionPublisher announces new decisions to other processes.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, d Decision) error
}
