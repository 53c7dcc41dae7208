package models

import "time"

// GroundworkStatus is the lifecycle state of a groundwork run.
type GroundworkStatus string

const (
	GroundworkProcessing GroundworkStatus = "processing"
	GroundworkCompleted  GroundworkStatus = "completed"
	GroundworkFailed     GroundworkStatus = "failed"
)

// AgentMetric records resource use for one groundwork agent.
type AgentMetric struct {
	SearchBudget int `json:"search_budget"`
	SearchesUsed int `json:"searches_used"`
	// OverBudget is a soft signal; exceeding the budget never aborts the agent.
	OverBudget  bool      `json:"over_budget"`
	TokensIn    int64     `json:"tokens_in"`
	TokensOut   int64     `json:"tokens_out"`
	DurationMs  int64     `json:"duration_ms"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// GroundworkMetrics aggregates resource use across a groundwork run.
type GroundworkMetrics struct {
	TotalDurationMs int64                  `json:"total_duration_ms"`
	TotalTokensIn   int64                  `json:"total_tokens_in"`
	TotalTokensOut  int64                  `json:"total_tokens_out"`
	TotalSearches   int                    `json:"total_searches"`
	CompetitorsDone int                    `json:"competitors_researched"`
	CompetitorsFail int                    `json:"competitors_failed"`
	Agents          map[string]AgentMetric `json:"agents"`
}

// GroundworkResult is the persisted outcome of one groundwork run.
// At most one run per evaluation is in flight at a time.
type GroundworkResult struct {
	ID                     string            `json:"id"`
	EvaluationID           string            `json:"evaluation_id"`
	Status                 GroundworkStatus  `json:"status"`
	CompetitorIntelligence *AgentOutput      `json:"competitor_intelligence,omitempty"`
	MarketSizing           *AgentOutput      `json:"market_sizing,omitempty"`
	GapAnalysis            *AgentOutput      `json:"gap_analysis,omitempty"`
	CustomerPersonas       *AgentOutput      `json:"customer_personas,omitempty"`
	GTMPlaybook            *AgentOutput      `json:"gtm_playbook,omitempty"`
	MVPScope               *AgentOutput      `json:"mvp_scope,omitempty"`
	Metrics                GroundworkMetrics `json:"metrics"`
	Error                  string            `json:"error,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	CompletedAt            *time.Time        `json:"completed_at,omitempty"`
}

// Output returns the stored output for the named agent, or nil.
func (g *GroundworkResult) Output(agent string) *AgentOutput {
	switch agent {
	case AgentCompetitorIntelligence:
		return g.CompetitorIntelligence
	case AgentMarketSizing:
		return g.MarketSizing
	case AgentGapAnalysis:
		return g.GapAnalysis
	case AgentCustomerPersonas:
		return g.CustomerPersonas
	case AgentGTMPlaybook:
		return g.GTMPlaybook
	case AgentMVPScope:
		return g.MVPScope
	default:
		return nil
	}
}

// SetOutput stores a copy of the output under the named agent.
func (g *GroundworkResult) SetOutput(agent string, out AgentOutput) {
	o := out
	switch agent {
	case AgentCompetitorIntelligence:
		g.CompetitorIntelligence = &o
	case AgentMarketSizing:
		g.MarketSizing = &o
	case AgentGapAnalysis:
		g.GapAnalysis = &o
	case AgentCustomerPersonas:
		g.CustomerPersonas = &o
	case AgentGTMPlaybook:
		g.GTMPlaybook = &o
	case AgentMVPScope:
		g.MVPScope = &o
	}
}
