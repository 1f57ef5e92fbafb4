package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// SelectRequest is the request body for POST /api/v1/select.
type SelectRequest struct {
	Arms       []string       `json:"arms"`
	Features   []float64      `json:"features,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Diagnostic bool           `json:"diagnostic,omitempty"`
}

// SelectResponse is the response body for POST /api/v1/select.
type SelectResponse struct {
	DecisionID string  `json:"decision_id"`
	Arm        string  `json:"arm"`
	Router     string  `json:"router"`
	Score      float64 `json:"score"`
}

// RewardRequest is the request body for POST /api/v1/reward.
type RewardRequest struct {
	DecisionID string   `json:"decision_id"`
	Reward     *float64 `json:"reward"`
}

// ExecuteRequest is the request body for POST /api/v1/execute.
type ExecuteRequest struct {
	Arms            []string           `json:"arms"`
	Features        []float64          `json:"features,omitempty"`
	Context         map[string]any     `json:"context,omitempty"`
	Prompt          string             `json:"prompt"`
	LatencyBudgetMS int64              `json:"latency_budget_ms,omitempty"`
	ArmCosts        map[string]float64 `json:"arm_costs,omitempty"`
}

// ExecuteResponse is the response body for POST /api/v1/execute.
type ExecuteResponse struct {
	SelectResponse
	Output    string  `json:"output,omitempty"`
	LatencyMS int64   `json:"latency_ms"`
	Reward    float64 `json:"reward"`
	Error     string  `json:"error,omitempty"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version,omitempty"`
	Routers  map[string]bool `json:"routers"`
	Counts   StatusCounts    `json:"counts"`
	Caches   int             `json:"caches"`
	Feedback bool            `json:"feedback"`
}

// StatusCounts contains count information for router state.
type StatusCounts struct {
	ThompsonArms     int `json:"thompson_arms"`
	LinUCBArms       int `json:"linucb_arms"`
	PendingDecisions int `json:"pending_decisions"`
}

// CleanupResponse is the response body for POST /api/v1/cache/cleanup.
type CleanupResponse struct {
	Removed map[string]int `json:"removed"`
	Total   int            `json:"total"`
}
