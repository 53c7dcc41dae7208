package models

import "time"

// Decision is the top-line outcome of an evaluation.
type Decision string

const (
	// DecisionStrongSignal indicates clear evidence of demand and fit.
	DecisionStrongSignal Decision = "STRONG_SIGNAL"
	// DecisionConditionalFit indicates promise subject to named conditions.
	DecisionConditionalFit Decision = "CONDITIONAL_FIT"
	// DecisionWeakSignal indicates thin or contradictory evidence.
	DecisionWeakSignal Decision = "WEAK_SIGNAL"
	// DecisionNoMarketFit indicates the idea should not be pursued as framed.
	DecisionNoMarketFit Decision = "NO_MARKET_FIT"
)

// Decisions lists every decision in descending order of strength.
var Decisions = []Decision{
	DecisionStrongSignal,
	DecisionConditionalFit,
	DecisionWeakSignal,
	DecisionNoMarketFit,
}

// Valid returns true if the decision is a known value.
func (d Decision) Valid() bool {
	switch d {
	case DecisionStrongSignal, DecisionConditionalFit, DecisionWeakSignal, DecisionNoMarketFit:
		return true
	default:
		return false
	}
}

// Score bounds shared by confidence and dimension scores.
const (
	MinScore     = 1
	MaxScore     = 10
	DefaultScore = 5
)

// ClampScore forces a score into [MinScore, MaxScore].
func ClampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// Dimension names one of the five scored aspects of an idea.
type Dimension string

const (
	DimensionMarketOpportunity    Dimension = "market_opportunity"
	DimensionProblemSolutionFit   Dimension = "problem_solution_fit"
	DimensionExecutionFeasibility Dimension = "execution_feasibility"
	DimensionBusinessModel        Dimension = "business_model"
	DimensionTiming               Dimension = "timing"
)

// Dimensions lists the scored dimensions in canonical order.
var Dimensions = []Dimension{
	DimensionMarketOpportunity,
	DimensionProblemSolutionFit,
	DimensionExecutionFeasibility,
	DimensionBusinessModel,
	DimensionTiming,
}

// Label returns the human-readable heading for the dimension.
func (d Dimension) Label() string {
	switch d {
	case DimensionMarketOpportunity:
		return "Market Opportunity"
	case DimensionProblemSolutionFit:
		return "Problem-Solution Fit"
	case DimensionExecutionFeasibility:
		return "Execution Feasibility"
	case DimensionBusinessModel:
		return "Business Model"
	case DimensionTiming:
		return "Timing"
	default:
		return string(d)
	}
}

// Category returns the action-item category a weak score in this dimension maps to.
func (d Dimension) Category() ActionCategory {
	switch d {
	case DimensionMarketOpportunity:
		return CategoryMarket
	case DimensionProblemSolutionFit:
		return CategoryProduct
	case DimensionExecutionFeasibility:
		return CategoryExecution
	case DimensionBusinessModel:
		return CategoryBusiness
	case DimensionTiming:
		return CategoryTiming
	default:
		return CategoryMarket
	}
}

// DimensionScores holds the five dimension scores, each in [1,10].
type DimensionScores struct {
	MarketOpportunity    int `json:"market_opportunity"`
	ProblemSolutionFit   int `json:"problem_solution_fit"`
	ExecutionFeasibility int `json:"execution_feasibility"`
	BusinessModel        int `json:"business_model"`
	Timing               int `json:"timing"`
}

// DefaultDimensionScores returns every dimension at DefaultScore.
func DefaultDimensionScores() DimensionScores {
	return DimensionScores{
		MarketOpportunity:    DefaultScore,
		ProblemSolutionFit:   DefaultScore,
		ExecutionFeasibility: DefaultScore,
		BusinessModel:        DefaultScore,
		Timing:               DefaultScore,
	}
}

// Get returns the score for a dimension.
func (s DimensionScores) Get(d Dimension) int {
	switch d {
	case DimensionMarketOpportunity:
		return s.MarketOpportunity
	case DimensionProblemSolutionFit:
		return s.ProblemSolutionFit
	case DimensionExecutionFeasibility:
		return s.ExecutionFeasibility
	case DimensionBusinessModel:
		return s.BusinessModel
	case DimensionTiming:
		return s.Timing
	default:
		return 0
	}
}

// Set assigns the score for a dimension.
func (s *DimensionScores) Set(d Dimension, v int) {
	switch d {
	case DimensionMarketOpportunity:
		s.MarketOpportunity = v
	case DimensionProblemSolutionFit:
		s.ProblemSolutionFit = v
	case DimensionExecutionFeasibility:
		s.ExecutionFeasibility = v
	case DimensionBusinessModel:
		s.BusinessModel = v
	case DimensionTiming:
		s.Timing = v
	}
}

// Clamped returns a copy with every score forced into [1,10].
func (s DimensionScores) Clamped() DimensionScores {
	out := s
	for _, d := range Dimensions {
		out.Set(d, ClampScore(s.Get(d)))
	}
	return out
}

// Verdict is the terminal artifact of one evaluation pipeline run.
// It is immutable once written.
type Verdict struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Input     IdeaInput `json:"input"`

	Intake    AgentOutput `json:"intake"`
	Catalyst  AgentOutput `json:"catalyst"`
	Fire      AgentOutput `json:"fire"`
	Synthesis AgentOutput `json:"synthesis"`

	Decision         Decision        `json:"decision"`
	Confidence       int             `json:"confidence"`
	DimensionScores  DimensionScores `json:"dimension_scores"`
	ExecutiveSummary string          `json:"executive_summary"`
	KeyStrengths     []string        `json:"key_strengths"`
	KeyRisks         []string        `json:"key_risks"`
	NextSteps        []string        `json:"next_steps"`
	KillConditions   []string        `json:"kill_conditions"`

	Version     int          `json:"version"`
	ActionItems []ActionItem `json:"action_items"`

	// ParseWarnings records every field that fell back to a default.
	ParseWarnings []string `json:"parse_warnings,omitempty"`
}

// Outputs returns the four agent outputs in pipeline order.
func (v *Verdict) Outputs() []AgentOutput {
	return []AgentOutput{v.Intake, v.Catalyst, v.Fire, v.Synthesis}
}

// TotalTokens sums tokens across all four agents.
func (v *Verdict) TotalTokens() int64 {
	var total int64
	for _, o := range v.Outputs() {
		total += o.TotalTokens()
	}
	return total
}
