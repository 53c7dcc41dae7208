// Package mcpserver exposes evaluations and groundwork as MCP tools.
package mcpserver

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ShayCichocki/verdict/internal/evaluation"
	"github.com/ShayCichocki/verdict/internal/groundwork"
	"github.com/ShayCichocki/verdict/internal/logging"
	"github.com/ShayCichocki/verdict/internal/pipeline"
	"github.com/ShayCichocki/verdict/pkg/models"
)

// Evaluations is the evaluation surface the tools call.
type Evaluations interface {
	Submit(ctx context.Context, auth models.AuthContext, idea models.IdeaInput, opts pipeline.Options) (string, error)
	Poll(ctx context.Context, id string) (evaluation.PollResult, error)
	Iterate(ctx context.Context, req evaluation.IterateRequest) (string, error)
	History(ctx context.Context, id string) ([]models.Evaluation, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// Groundwork is the groundwork surface the tools call.
type Groundwork interface {
	Start(ctx context.Context, evaluationID string) (<-chan groundwork.Event, error)
	Result(ctx context.Context, evaluationID string) (*models.GroundworkResult, error)
}

// Server wraps the services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	evaluations Evaluations
	groundwork  Groundwork
}

// NewServer creates an MCP server over the given services.
func NewServer(evaluations Evaluations, gw Groundwork, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		evaluations: evaluations,
		groundwork:  gw,
	}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "verdict", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying server for custom transports.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type submitIdeaInput struct {
	Problem       string `json:"problem" jsonschema:"the pain point the idea addresses"`
	Solution      string `json:"solution" jsonschema:"the proposed product or service"`
	TargetMarket  string `json:"target_market" jsonschema:"who pays for the solution"`
	BusinessModel string `json:"business_model" jsonschema:"how the idea makes money"`
	WhyYou        string `json:"why_you,omitempty" jsonschema:"optional founder-market-fit statement"`
	Email         string `json:"email,omitempty" jsonschema:"submitter contact address"`
	UserID        string `json:"user_id,omitempty" jsonschema:"caller identity attached to the project"`
	Transcribe    bool   `json:"transcribe,omitempty" jsonschema:"clean up the raw idea text before intake"`
	Humanize      bool   `json:"humanize,omitempty" jsonschema:"rewrite agent outputs for readability after parsing"`
}

type submitOutput struct {
	EvaluationID string `json:"evaluation_id"`
	Status       string `json:"status"`
}

type pollInput struct {
	EvaluationID string `json:"evaluation_id" jsonschema:"the evaluation to poll"`
}

type dimensionOutput struct {
	MarketOpportunity    int `json:"market_opportunity"`
	ProblemSolutionFit   int `json:"problem_solution_fit"`
	ExecutionFeasibility int `json:"execution_feasibility"`
	BusinessModel        int `json:"business_model"`
	Timing               int `json:"timing"`
}

type actionItemOutput struct {
	ID       string `json:"id"`
	Concern  string `json:"concern"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Source   string `json:"source"`
}

type verdictOutput struct {
	Decision         string             `json:"decision"`
	Confidence       int                `json:"confidence"`
	Dimensions       dimensionOutput    `json:"dimension_scores"`
	ExecutiveSummary string             `json:"executive_summary"`
	KeyStrengths     []string           `json:"key_strengths,omitempty"`
	KeyRisks         []string           `json:"key_risks,omitempty"`
	NextSteps        []string           `json:"next_steps,omitempty"`
	KillConditions   []string           `json:"kill_conditions,omitempty"`
	ActionItems      []actionItemOutput `json:"action_items,omitempty"`
	ParseWarnings    []string           `json:"parse_warnings,omitempty"`
	TotalTokens      int64              `json:"total_tokens"`
}

type pollOutput struct {
	EvaluationID string         `json:"evaluation_id"`
	ProjectID    string         `json:"project_id"`
	Version      int            `json:"version"`
	Status       string         `json:"status"`
	Verdict      *verdictOutput `json:"verdict,omitempty"`
	Error        string         `json:"error,omitempty"`
}

type iterateInput struct {
	PriorEvaluationID string            `json:"prior_evaluation_id" jsonschema:"the completed evaluation to iterate from"`
	Problem           *string           `json:"problem,omitempty" jsonschema:"replacement problem statement"`
	Solution          *string           `json:"solution,omitempty" jsonschema:"replacement solution"`
	TargetMarket      *string           `json:"target_market,omitempty" jsonschema:"replacement target market"`
	BusinessModel     *string           `json:"business_model,omitempty" jsonschema:"replacement business model"`
	WhyYou            *string           `json:"why_you,omitempty" jsonschema:"replacement founder-market-fit statement"`
	Responses         map[string]string `json:"responses,omitempty" jsonschema:"responses keyed by prior action item ID (e.g. AI-1)"`
	Transcribe        bool              `json:"transcribe,omitempty" jsonschema:"clean up the raw idea text before intake"`
	Humanize          bool              `json:"humanize,omitempty" jsonschema:"rewrite agent outputs for readability after parsing"`
}

type historyInput struct {
	ID string `json:"id" jsonschema:"a project ID or the ID of any evaluation in the project"`
}

type historyEntry struct {
	EvaluationID string `json:"evaluation_id"`
	Version      int    `json:"version"`
	Status       string `json:"status"`
	Decision     string `json:"decision,omitempty"`
	Confidence   int    `json:"confidence,omitempty"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type historyOutput struct {
	ProjectID   string         `json:"project_id"`
	Evaluations []historyEntry `json:"evaluations"`
	Count       int            `json:"count"`
}

type statsInput struct{}

type statsOutput struct {
	Projects          int            `json:"projects"`
	Evaluations       int            `json:"evaluations"`
	ByStatus          map[string]int `json:"by_status"`
	ByDecision        map[string]int `json:"by_decision"`
	AverageConfidence float64        `json:"average_confidence"`
}

type runGroundworkInput struct {
	EvaluationID string `json:"evaluation_id" jsonschema:"the completed evaluation to build groundwork for"`
	Wait         bool   `json:"wait,omitempty" jsonschema:"block until the run finishes and return its headlines"`
}

type runGroundworkOutput struct {
	EvaluationID string   `json:"evaluation_id"`
	GroundworkID string   `json:"groundwork_id,omitempty"`
	Status       string   `json:"status"`
	Headlines    []string `json:"headlines,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type getGroundworkInput struct {
	EvaluationID string `json:"evaluation_id" jsonschema:"the evaluation whose latest groundwork to fetch"`
}

type agentMetricOutput struct {
	SearchBudget int   `json:"search_budget"`
	SearchesUsed int   `json:"searches_used"`
	OverBudget   bool  `json:"over_budget"`
	DurationMs   int64 `json:"duration_ms"`
}

type groundworkOutput struct {
	GroundworkID          string                       `json:"groundwork_id"`
	EvaluationID          string                       `json:"evaluation_id"`
	Status                string                       `json:"status"`
	Outputs               map[string]string            `json:"outputs"`
	Error                 string                       `json:"error,omitempty"`
	TotalDurationMs       int64                        `json:"total_duration_ms"`
	TotalTokens           int64                        `json:"total_tokens"`
	TotalSearches         int                          `json:"total_searches"`
	CompetitorsResearched int                          `json:"competitors_researched"`
	CompetitorsFailed     int                          `json:"competitors_failed"`
	Agents                map[string]agentMetricOutput `json:"agents,omitempty"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "submit_idea",
		Description: "Submit a business idea for evaluation. Returns immediately with an evaluation ID; poll it for the verdict.",
	}, s.handleSubmitIdea)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "poll_evaluation",
		Description: "Get the status of an evaluation and, once completed, its verdict and action items.",
	}, s.handlePoll)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "iterate_evaluation",
		Description: "Re-run a completed evaluation as the next version with optional idea edits and responses to its action items. Projects are capped at 3 versions by default.",
	}, s.handleIterate)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_history",
		Description: "List every version of a project in order, by project ID or evaluation ID.",
	}, s.handleHistory)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_stats",
		Description: "Get aggregate counts of projects and evaluations by status and decision.",
	}, s.handleStats)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "run_groundwork",
		Description: "Start the six-agent groundwork research for a completed evaluation: competitors, market sizing, gaps, personas, GTM, MVP scope.",
	}, s.handleRunGroundwork)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_groundwork",
		Description: "Get the latest groundwork result for an evaluation, including each agent's output and resource metrics.",
	}, s.handleGetGroundwork)
}

// --- Tool handlers ---

func (s *Server) handleSubmitIdea(ctx context.Context, _ *gomcp.CallToolRequest, input submitIdeaInput) (*gomcp.CallToolResult, submitOutput, error) {
	idea := models.IdeaInput{
		Problem:       input.Problem,
		Solution:      input.Solution,
		TargetMarket:  input.TargetMarket,
		BusinessModel: input.BusinessModel,
		WhyYou:        input.WhyYou,
		Email:         input.Email,
	}
	auth := models.AuthContext{UserID: input.UserID, Email: input.Email}
	opts := pipeline.Options{Transcribe: input.Transcribe, Humanize: input.Humanize}

	id, err := s.evaluations.Submit(ctx, auth, idea, opts)
	if err != nil {
		return errorResult(fmt.Sprintf("submitting idea: %s", err)), submitOutput{}, nil
	}
	return nil, submitOutput{EvaluationID: id, Status: string(models.EvaluationProcessing)}, nil
}

func (s *Server) handlePoll(ctx context.Context, _ *gomcp.CallToolRequest, input pollInput) (*gomcp.CallToolResult, pollOutput, error) {
	if input.EvaluationID == "" {
		return errorResult("evaluation_id is required"), pollOutput{}, nil
	}
	res, err := s.evaluations.Poll(ctx, input.EvaluationID)
	if err != nil {
		return errorResult(fmt.Sprintf("polling evaluation: %s", err)), pollOutput{}, nil
	}
	return nil, pollOutput{
		EvaluationID: res.EvaluationID,
		ProjectID:    res.ProjectID,
		Version:      res.Version,
		Status:       string(res.Status),
		Verdict:      verdictToOutput(res.Verdict),
		Error:        res.Error,
	}, nil
}

func (s *Server) handleIterate(ctx context.Context, _ *gomcp.CallToolRequest, input iterateInput) (*gomcp.CallToolResult, submitOutput, error) {
	if input.PriorEvaluationID == "" {
		return errorResult("prior_evaluation_id is required"), submitOutput{}, nil
	}
	id, err := s.evaluations.Iterate(ctx, evaluation.IterateRequest{
		PriorEvaluationID: input.PriorEvaluationID,
		Edits: models.IdeaEdits{
			Problem:       input.Problem,
			Solution:      input.Solution,
			TargetMarket:  input.TargetMarket,
			BusinessModel: input.BusinessModel,
			WhyYou:        input.WhyYou,
		},
		Responses: input.Responses,
		Options:   pipeline.Options{Transcribe: input.Transcribe, Humanize: input.Humanize},
	})
	if err != nil {
		return errorResult(fmt.Sprintf("iterating evaluation: %s", err)), submitOutput{}, nil
	}
	return nil, submitOutput{EvaluationID: id, Status: string(models.EvaluationProcessing)}, nil
}

func (s *Server) handleHistory(ctx context.Context, _ *gomcp.CallToolRequest, input historyInput) (*gomcp.CallToolResult, historyOutput, error) {
	if input.ID == "" {
		return errorResult("id is required"), historyOutput{}, nil
	}
	history, err := s.evaluations.History(ctx, input.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("loading history: %s", err)), historyOutput{}, nil
	}

	out := historyOutput{
		Evaluations: make([]historyEntry, len(history)),
		Count:       len(history),
	}
	for i, e := range history {
		out.ProjectID = e.ProjectID
		entry := historyEntry{
			EvaluationID: e.ID,
			Version:      e.Version,
			Status:       string(e.Status),
			Error:        e.Error,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		}
		if e.Verdict != nil {
			entry.Decision = string(e.Verdict.Decision)
			entry.Confidence = e.Verdict.Confidence
		}
		out.Evaluations[i] = entry
	}
	return nil, out, nil
}

func (s *Server) handleStats(ctx context.Context, _ *gomcp.CallToolRequest, _ statsInput) (*gomcp.CallToolResult, statsOutput, error) {
	stats, err := s.evaluations.Stats(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("loading stats: %s", err)), statsOutput{}, nil
	}
	out := statsOutput{
		Projects:          stats.Projects,
		Evaluations:       stats.Evaluations,
		ByStatus:          make(map[string]int, len(stats.ByStatus)),
		ByDecision:        make(map[string]int, len(stats.ByDecision)),
		AverageConfidence: stats.AverageConfidence,
	}
	for k, v := range stats.ByStatus {
		out.ByStatus[string(k)] = v
	}
	for k, v := range stats.ByDecision {
		out.ByDecision[string(k)] = v
	}
	return nil, out, nil
}

func (s *Server) handleRunGroundwork(ctx context.Context, _ *gomcp.CallToolRequest, input runGroundworkInput) (*gomcp.CallToolResult, runGroundworkOutput, error) {
	if input.EvaluationID == "" {
		return errorResult("evaluation_id is required"), runGroundworkOutput{}, nil
	}
	events, err := s.groundwork.Start(ctx, input.EvaluationID)
	if err != nil {
		return errorResult(fmt.Sprintf("starting groundwork: %s", err)), runGroundworkOutput{}, nil
	}

	out := runGroundworkOutput{EvaluationID: input.EvaluationID, Status: string(models.GroundworkProcessing)}
	if !input.Wait {
		go logEvents(input.EvaluationID, events)
		return nil, out, nil
	}

	for {
		select {
		case <-ctx.Done():
			go logEvents(input.EvaluationID, events)
			return errorResult(fmt.Sprintf("waiting for groundwork: %s (the run continues; use get_groundwork)", ctx.Err())), out, nil
		case ev, ok := <-events:
			if !ok {
				return nil, out, nil
			}
			switch ev.Type {
			case groundwork.EventHeadline:
				out.Headlines = append(out.Headlines, ev.Agent+": "+ev.Text)
			case groundwork.EventComplete:
				out.GroundworkID = ev.GroundworkID
				out.Status = string(models.GroundworkCompleted)
			case groundwork.EventError:
				out.Status = string(models.GroundworkFailed)
				out.Error = ev.Message
			}
		}
	}
}

func (s *Server) handleGetGroundwork(ctx context.Context, _ *gomcp.CallToolRequest, input getGroundworkInput) (*gomcp.CallToolResult, groundworkOutput, error) {
	if input.EvaluationID == "" {
		return errorResult("evaluation_id is required"), groundworkOutput{}, nil
	}
	g, err := s.groundwork.Result(ctx, input.EvaluationID)
	if err != nil {
		return errorResult(fmt.Sprintf("loading groundwork: %s", err)), groundworkOutput{}, nil
	}

	out := groundworkOutput{
		GroundworkID:          g.ID,
		EvaluationID:          g.EvaluationID,
		Status:                string(g.Status),
		Outputs:               make(map[string]string),
		Error:                 g.Error,
		TotalDurationMs:       g.Metrics.TotalDurationMs,
		TotalTokens:           g.Metrics.TotalTokensIn + g.Metrics.TotalTokensOut,
		TotalSearches:         g.Metrics.TotalSearches,
		CompetitorsResearched: g.Metrics.CompetitorsDone,
		CompetitorsFailed:     g.Metrics.CompetitorsFail,
		Agents:                make(map[string]agentMetricOutput, len(g.Metrics.Agents)),
	}
	for _, agent := range groundwork.Agents {
		if o := g.Output(agent); o != nil {
			out.Outputs[agent] = o.AnalysisText
		}
	}
	for name, m := range g.Metrics.Agents {
		out.Agents[name] = agentMetricOutput{
			SearchBudget: m.SearchBudget,
			SearchesUsed: m.SearchesUsed,
			OverBudget:   m.OverBudget,
			DurationMs:   m.DurationMs,
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func verdictToOutput(v *models.Verdict) *verdictOutput {
	if v == nil {
		return nil
	}
	out := &verdictOutput{
		Decision:   string(v.Decision),
		Confidence: v.Confidence,
		Dimensions: dimensionOutput{
			MarketOpportunity:    v.DimensionScores.MarketOpportunity,
			ProblemSolutionFit:   v.DimensionScores.ProblemSolutionFit,
			ExecutionFeasibility: v.DimensionScores.ExecutionFeasibility,
			BusinessModel:        v.DimensionScores.BusinessModel,
			Timing:               v.DimensionScores.Timing,
		},
		ExecutiveSummary: v.ExecutiveSummary,
		KeyStrengths:     v.KeyStrengths,
		KeyRisks:         v.KeyRisks,
		NextSteps:        v.NextSteps,
		KillConditions:   v.KillConditions,
		ParseWarnings:    v.ParseWarnings,
		TotalTokens:      v.TotalTokens(),
	}
	for _, item := range v.ActionItems {
		out.ActionItems = append(out.ActionItems, actionItemOutput{
			ID:       item.ID,
			Concern:  item.Concern,
			Category: string(item.Category),
			Severity: string(item.Severity),
			Source:   string(item.Source),
		})
	}
	return out
}

// logEvents drains a groundwork stream nobody is waiting on.
func logEvents(evaluationID string, events <-chan groundwork.Event) {
	for ev := range events {
		logging.Component("mcpserver").Debug().
			Str("evaluation_id", evaluationID).
			Str("type", string(ev.Type)).
			Str("agent", ev.Agent).
			Str("status", string(ev.Status)).
			Msg("groundwork event")
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
