package models

import "time"

// Agent names for the evaluation pipeline.
const (
	AgentIntake    = "intake"
	AgentCatalyst  = "catalyst"
	AgentFire      = "fire"
	AgentSynthesis = "synthesis"
)

// Agent names for the groundwork pipeline.
const (
	AgentCompetitorIntelligence = "competitorIntelligence"
	AgentMarketSizing           = "marketSizing"
	AgentGapAnalysis            = "gapAnalysis"
	AgentCustomerPersonas       = "customerPersonas"
	AgentGTMPlaybook            = "gtmPlaybook"
	AgentMVPScope               = "mvpScope"
	AgentCompetitorDeepDive     = "competitorDeepDive"
)

// AgentOutput is the result of exactly one agent invocation.
// It is never mutated after creation; transformed copies are new values.
type AgentOutput struct {
	// AgentName identifies the persona that produced the output.
	AgentName string `json:"agent_name"`
	// AnalysisText is the raw text returned by the model.
	AnalysisText string `json:"analysis_text"`
	// TokensIn is the number of prompt tokens consumed.
	TokensIn int64 `json:"tokens_in"`
	// TokensOut is the number of completion tokens produced.
	TokensOut int64 `json:"tokens_out"`
	// DurationMs is the wall-clock latency of the call.
	DurationMs int64 `json:"duration_ms"`
	// SearchesUsed is the number of external searches the model performed.
	SearchesUsed int `json:"searches_used"`
	// Provider is the backend that served the call.
	Provider string `json:"provider,omitempty"`
	// Model is the resolved model identifier.
	Model string `json:"model,omitempty"`
	// StartedAt is when the invocation was issued.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the response was received.
	CompletedAt time.Time `json:"completed_at"`
}

// WithText returns a copy of the output carrying different analysis text.
func (o AgentOutput) WithText(text string) AgentOutput {
	o.AnalysisText = text
	return o
}

// TotalTokens returns input plus output tokens.
func (o AgentOutput) TotalTokens() int64 {
	return o.TokensIn + o.TokensOut
}
