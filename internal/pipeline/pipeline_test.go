package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/verdict/internal/api"
	"github.com/ShayCichocki/verdict/internal/skills"
	"github.com/ShayCichocki/verdict/pkg/models"
)

const synthesisText = `## Verdict

` + "```json" + `
{
  "decision": "CONDITIONAL_FIT",
  "confidence": 6,
  "dimension_scores": {
    "market_opportunity": 7,
    "problem_solution_fit": 6,
    "execution_feasibility": 4,
    "business_model": 5,
    "timing": 8
  },
  "executive_summary": "Real pain, unproven willingness to pay.",
  "key_strengths": ["Clear pain for small clinics"],
  "key_risks": ["Incumbent EHR vendors bundle scheduling", "Long sales cycles into clinics"],
  "next_steps": ["Interview 20 clinic managers"],
  "kill_conditions": ["Fewer than 3 of 20 clinics agree to a paid pilot"]
}
` + "```"

const fireText = `## Critical Risks
- Clinics refuse to switch away from bundled scheduling tools

## Fatal Flaw
No budget owner inside small clinics.`

// scripted is an Invoker that answers per agent and records calls.
type scripted struct {
	mu       sync.Mutex
	calls    []api.Request
	replies  map[string]string
	failures map[string]error
	delay    map[string]time.Duration
	started  map[string]time.Time
	finished map[string]time.Time
}

func newScripted() *scripted {
	return &scripted{
		replies: map[string]string{
			models.AgentIntake:    "Intake: clinic scheduling idea.",
			models.AgentCatalyst:  "Catalyst: clinics waste hours on phone booking.",
			models.AgentFire:      fireText,
			models.AgentSynthesis: synthesisText,
		},
		failures: map[string]error{},
		delay:    map[string]time.Duration{},
		started:  map[string]time.Time{},
		finished: map[string]time.Time{},
	}
}

func (s *scripted) Invoke(_ context.Context, req api.Request) (models.AgentOutput, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.started[req.AgentName] = time.Now()
	delay := s.delay[req.AgentName]
	err := s.failures[req.AgentName]
	reply := s.replies[req.AgentName]
	s.mu.Unlock()

	time.Sleep(delay)

	s.mu.Lock()
	s.finished[req.AgentName] = time.Now()
	s.mu.Unlock()

	if err != nil {
		return models.AgentOutput{}, err
	}
	return models.AgentOutput{AgentName: req.AgentName, AnalysisText: reply, TokensIn: 10, TokensOut: 20}, nil
}

func (s *scripted) request(agent string) (api.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.calls {
		if r.AgentName == agent {
			return r, true
		}
	}
	return api.Request{}, false
}

func testIdea() models.IdeaInput {
	return models.IdeaInput{
		Problem:       "Small clinics lose hours to phone scheduling",
		Solution:      "SMS-first booking assistant",
		TargetMarket:  "Independent clinics in the US",
		BusinessModel: "Per-seat SaaS",
		Email:         "founder@example.com",
	}
}

func TestRun_EndToEnd(t *testing.T) {
	inv := newScripted()
	var events []StageEvent
	var evMu sync.Mutex
	p := New(inv,
		WithIDGenerator(func() string { return "v-1" }),
		WithObserver(func(e StageEvent) {
			evMu.Lock()
			events = append(events, e)
			evMu.Unlock()
		}),
	)

	v, err := p.Run(context.Background(), RunInput{Idea: testIdea(), Version: 1})
	require.NoError(t, err)

	assert.Equal(t, "v-1", v.ID)
	assert.Equal(t, 1, v.Version)
	assert.Equal(t, models.DecisionConditionalFit, v.Decision)
	assert.Equal(t, 6, v.Confidence)
	assert.Equal(t, 4, v.DimensionScores.ExecutionFeasibility)
	assert.Equal(t, "Real pain, unproven willingness to pay.", v.ExecutiveSummary)
	assert.Empty(t, v.ParseWarnings)
	assert.Equal(t, int64(120), v.TotalTokens())

	require.NotEmpty(t, v.ActionItems)
	assert.Equal(t, "AI-1", v.ActionItems[0].ID)
	assert.Equal(t, models.SeverityCritical, v.ActionItems[0].Severity)

	// Catalyst and Fire both see Intake's analysis.
	for _, agent := range []string{models.AgentCatalyst, models.AgentFire} {
		req, ok := inv.request(agent)
		require.True(t, ok, agent)
		assert.Contains(t, req.UserMessage, "Intake: clinic scheduling idea.")
	}
	req, ok := inv.request(models.AgentSynthesis)
	require.True(t, ok)
	assert.Contains(t, req.UserMessage, "Catalyst: clinics waste hours")
	assert.Contains(t, req.UserMessage, "No budget owner")
	assert.NotContains(t, req.UserMessage, "Previous Verdict")

	var stages []Stage
	for _, e := range events {
		if e.Status == StatusComplete {
			stages = append(stages, e.Stage)
		}
	}
	assert.Equal(t, []Stage{StageIntake, StageAnalysis, StageSynthesis, StageParse}, stages)
}

func TestRun_AnalystsRunInParallel(t *testing.T) {
	inv := newScripted()
	inv.delay[models.AgentCatalyst] = 100 * time.Millisecond
	inv.delay[models.AgentFire] = 100 * time.Millisecond

	_, err := New(inv).Run(context.Background(), RunInput{Idea: testIdea()})
	require.NoError(t, err)

	// Each analyst starts before the other finishes.
	assert.True(t, inv.started[models.AgentFire].Before(inv.finished[models.AgentCatalyst]))
	assert.True(t, inv.started[models.AgentCatalyst].Before(inv.finished[models.AgentFire]))
	// Synthesis waits for both.
	assert.False(t, inv.started[models.AgentSynthesis].Before(inv.finished[models.AgentCatalyst]))
	assert.False(t, inv.started[models.AgentSynthesis].Before(inv.finished[models.AgentFire]))
}

func TestRun_FireFailsNoVerdict(t *testing.T) {
	inv := newScripted()
	boom := &api.ProviderError{Provider: api.ProviderAnthropic, Status: 529, Body: "overloaded"}
	inv.failures[models.AgentFire] = boom
	inv.delay[models.AgentCatalyst] = 20 * time.Millisecond

	var failed []StageEvent
	p := New(inv, WithObserver(func(e StageEvent) {
		if e.Status == StatusFailed {
			failed = append(failed, e)
		}
	}))

	v, err := p.Run(context.Background(), RunInput{Idea: testIdea()})
	require.Error(t, err)
	assert.Nil(t, v)

	var pe *api.ProviderError
	assert.ErrorAs(t, err, &pe)
	_, called := inv.request(models.AgentSynthesis)
	assert.False(t, called, "synthesis must not run after a failed analyst")

	require.Len(t, failed, 1)
	assert.Equal(t, StageAnalysis, failed[0].Stage)
}

func TestRun_IntakeFailure(t *testing.T) {
	inv := newScripted()
	inv.failures[models.AgentIntake] = errors.New("connection reset")

	_, err := New(inv).Run(context.Background(), RunInput{Idea: testIdea()})
	require.EqualError(t, err, "connection reset")
	_, called := inv.request(models.AgentCatalyst)
	assert.False(t, called)
}

func TestRun_InvalidIdea(t *testing.T) {
	inv := newScripted()
	_, err := New(inv).Run(context.Background(), RunInput{Idea: models.IdeaInput{Problem: "x"}})
	require.Error(t, err)
	assert.Empty(t, inv.calls)
}

func TestRun_DegradedSynthesis(t *testing.T) {
	inv := newScripted()
	inv.replies[models.AgentSynthesis] = "I think it could work."

	v, err := New(inv).Run(context.Background(), RunInput{Idea: testIdea()})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionConditionalFit, v.Decision)
	assert.Equal(t, models.DefaultScore, v.Confidence)
	assert.NotEmpty(t, v.ParseWarnings)
}

func TestRun_PriorContextReachesSynthesis(t *testing.T) {
	inv := newScripted()
	prior := &models.Verdict{
		Version:    1,
		Decision:   models.DecisionWeakSignal,
		Confidence: 4,
		ActionItems: []models.ActionItem{
			{ID: "AI-1", Concern: "No budget owner", Severity: models.SeverityCritical, Category: models.CategoryBusiness},
		},
	}

	v, err := New(inv).Run(context.Background(), RunInput{
		Idea:    testIdea(),
		Version: 2,
		Prior:   &PriorContext{Verdict: prior, Responses: map[string]string{"AI-1": "Office managers hold the budget"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Version)

	req, _ := inv.request(models.AgentSynthesis)
	assert.Contains(t, req.UserMessage, "Previous Verdict (version 1)")
	assert.Contains(t, req.UserMessage, "Office managers hold the budget")
}

// upper is a SkillApplier that upper-cases text, or fails for one skill.
type upper struct {
	mu      sync.Mutex
	applied []string
	fail    string
}

func (u *upper) Apply(_ context.Context, skill models.Skill, text string) skills.Result {
	u.mu.Lock()
	u.applied = append(u.applied, skill.ID)
	u.mu.Unlock()
	if skill.ID == u.fail {
		return skills.Result{Text: text, Notes: []string{"ollama: health check failed"}}
	}
	return skills.Result{Text: strings.ToUpper(text), Applied: true, Backend: "stub"}
}

func testRegistry(t *testing.T) *skills.Registry {
	t.Helper()
	r, err := skills.NewRegistry("")
	require.NoError(t, err)
	return r
}

func TestRun_HumanizeAfterParse(t *testing.T) {
	inv := newScripted()
	applier := &upper{}
	p := New(inv, WithSkills(testRegistry(t), applier))

	v, err := p.Run(context.Background(), RunInput{Idea: testIdea(), Options: Options{Humanize: true}})
	require.NoError(t, err)

	// Parsed from the raw text, then presentation text rewritten.
	assert.Equal(t, models.DecisionConditionalFit, v.Decision)
	assert.Equal(t, strings.ToUpper(synthesisText), v.Synthesis.AnalysisText)
	assert.Equal(t, strings.ToUpper(fireText), v.Fire.AnalysisText)
	assert.Equal(t, "REAL PAIN, UNPROVEN WILLINGNESS TO PAY.", v.ExecutiveSummary)
	assert.Equal(t, "Clear pain for small clinics", v.KeyStrengths[0])

	// Four outputs plus the summary.
	assert.Len(t, applier.applied, 5)
}

func TestRun_TranscribeBeforeIntake(t *testing.T) {
	inv := newScripted()
	applier := &upper{}
	p := New(inv, WithSkills(testRegistry(t), applier))

	_, err := p.Run(context.Background(), RunInput{Idea: testIdea(), Options: Options{Transcribe: true}})
	require.NoError(t, err)

	req, _ := inv.request(models.AgentIntake)
	assert.Contains(t, req.UserMessage, "SMS-FIRST BOOKING ASSISTANT")
	assert.Equal(t, []string{skills.SkillTranscribe}, applier.applied)
}

func TestRun_SkillFailureIsBestEffort(t *testing.T) {
	inv := newScripted()
	applier := &upper{fail: skills.SkillTranscribe}
	var notes []string
	p := New(inv,
		WithSkills(testRegistry(t), applier),
		WithObserver(func(e StageEvent) {
			if e.Stage == StageTranscribe && e.Status == StatusComplete {
				notes = e.Notes
			}
		}),
	)

	_, err := p.Run(context.Background(), RunInput{Idea: testIdea(), Options: Options{Transcribe: true}})
	require.NoError(t, err)

	req, _ := inv.request(models.AgentIntake)
	assert.Contains(t, req.UserMessage, "SMS-first booking assistant")
	assert.Equal(t, []string{"ollama: health check failed"}, notes)
}

func TestRun_SkillsNotConfigured(t *testing.T) {
	inv := newScripted()
	var skipped []Stage
	p := New(inv, WithObserver(func(e StageEvent) {
		if e.Status == StatusSkipped {
			skipped = append(skipped, e.Stage)
		}
	}))

	_, err := p.Run(context.Background(), RunInput{Idea: testIdea(), Options: Options{Transcribe: true, Humanize: true}})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageTranscribe, StageHumanize}, skipped)
}

func TestRun_PersonaToolBudgets(t *testing.T) {
	inv := newScripted()
	_, err := New(inv).Run(context.Background(), RunInput{Idea: testIdea()})
	require.NoError(t, err)

	req, _ := inv.request(models.AgentFire)
	assert.NotEmpty(t, req.SystemPrompt)
	assert.Zero(t, req.Tools.Search)
}
