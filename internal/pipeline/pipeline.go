// Package pipeline runs the four-agent evaluation DAG:
// Intake, then Catalyst and Fire in parallel, then Synthesis.
//
// Both analysts must finish before Synthesis starts; if either fails the run
// fails and no verdict is produced. After Synthesis the verdict is parsed and
// action items extracted from the raw agent text. Optional skill stages
// transcribe the idea before Intake and humanize agent prose after parsing,
// so structural fields never depend on rewritten text.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/verdict/internal/actionitems"
	"github.com/ShayCichocki/verdict/internal/api"
	"github.com/ShayCichocki/verdict/internal/logging"
	"github.com/ShayCichocki/verdict/internal/prompts"
	"github.com/ShayCichocki/verdict/internal/skills"
	"github.com/ShayCichocki/verdict/internal/verdict"
	"github.com/ShayCichocki/verdict/pkg/models"
)

// Options toggles the optional skill stages.
type Options struct {
	Transcribe bool `json:"transcribe,omitempty"`
	Humanize   bool `json:"humanize,omitempty"`
}

// PriorContext carries the previous version into an iteration run.
type PriorContext struct {
	Verdict   *models.Verdict
	Responses map[string]string
}

// RunInput is one pipeline run.
type RunInput struct {
	Idea    models.IdeaInput
	Options Options
	Prior   *PriorContext
	Version int
}

// SkillSource looks up loaded skills.
type SkillSource interface {
	Get(id string) (models.Skill, bool)
	ForAgent(agent string, point models.ApplyPoint) []models.Skill
}

// SkillApplier applies a skill, best effort.
type SkillApplier interface {
	Apply(ctx context.Context, skill models.Skill, text string) skills.Result
}

// Pipeline executes evaluation runs. It is safe for concurrent use.
type Pipeline struct {
	invoker  api.Invoker
	skills   SkillSource
	applier  SkillApplier
	observer Observer
	now      func() time.Time
	newID    func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSkills enables the transcribe and humanize stages.
func WithSkills(source SkillSource, applier SkillApplier) Option {
	return func(p *Pipeline) {
		p.skills = source
		p.applier = applier
	}
}

// WithObserver registers a stage callback.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator overrides verdict ID generation.
func WithIDGenerator(f func() string) Option {
	return func(p *Pipeline) { p.newID = f }
}

// New creates a Pipeline over invoker.
func New(invoker api.Invoker, opts ...Option) *Pipeline {
	p := &Pipeline{
		invoker: invoker,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every stage and returns the finished verdict.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*models.Verdict, error) {
	if err := in.Idea.Validate(); err != nil {
		return nil, err
	}
	started := p.now()
	logger := logging.Component("pipeline").With().Int("version", in.Version).Logger()

	ideaText := in.Idea.Text()
	if in.Options.Transcribe {
		ideaText = p.transcribe(ctx, ideaText)
	}

	// Stage 1: Intake.
	p.emit(StageEvent{Stage: StageIntake, Status: StatusRunning, Agents: []string{models.AgentIntake}})
	intake, err := p.invoke(ctx, models.AgentIntake, prompts.IdeaMessage(ideaText))
	if err != nil {
		p.fail(StageIntake, err)
		return nil, err
	}
	p.complete(StageIntake, intake)

	// Stage 2: Catalyst and Fire behind a join-all barrier. The group has no
	// shared context, so a failure does not cancel the sibling call; its
	// result is simply discarded.
	analystMsg := prompts.AnalystMessage(ideaText, intake.AnalysisText)
	p.emit(StageEvent{Stage: StageAnalysis, Status: StatusRunning, Agents: []string{models.AgentCatalyst, models.AgentFire}})
	stageStart := p.now()

	var catalyst, fire models.AgentOutput
	var g errgroup.Group
	g.Go(func() error {
		out, err := p.invoke(ctx, models.AgentCatalyst, analystMsg)
		catalyst = out
		return err
	})
	g.Go(func() error {
		out, err := p.invoke(ctx, models.AgentFire, analystMsg)
		fire = out
		return err
	})
	if err := g.Wait(); err != nil {
		p.fail(StageAnalysis, err)
		return nil, err
	}
	p.emit(StageEvent{
		Stage:    StageAnalysis,
		Status:   StatusComplete,
		Agents:   []string{models.AgentCatalyst, models.AgentFire},
		Duration: p.now().Sub(stageStart),
	})

	// Stage 3: Synthesis.
	var prior *models.Verdict
	var responses map[string]string
	if in.Prior != nil {
		prior = in.Prior.Verdict
		responses = in.Prior.Responses
	}
	p.emit(StageEvent{Stage: StageSynthesis, Status: StatusRunning, Agents: []string{models.AgentSynthesis}})
	synthesis, err := p.invoke(ctx, models.AgentSynthesis, prompts.SynthesisMessage(
		ideaText, intake.AnalysisText, catalyst.AnalysisText, fire.AnalysisText, prior, responses,
	))
	if err != nil {
		p.fail(StageSynthesis, err)
		return nil, err
	}
	p.complete(StageSynthesis, synthesis)

	version := in.Version
	if version < 1 {
		version = 1
	}
	v := &models.Verdict{
		ID:        p.newID(),
		CreatedAt: p.now(),
		Input:     in.Idea,
		Intake:    intake,
		Catalyst:  catalyst,
		Fire:      fire,
		Synthesis: synthesis,
		Version:   version,
	}

	// Stage 4: parse and extract from the raw text.
	parsed := verdict.Parse(synthesis.AnalysisText)
	parsed.Apply(v)
	v.ActionItems = actionitems.Extract(actionitems.FromVerdict(v))
	p.emit(StageEvent{Stage: StageParse, Status: StatusComplete, Notes: parsed.WarningStrings()})
	if parsed.Degraded() {
		logger.Warn().
			Str("mode", string(parsed.Mode)).
			Int("warnings", len(parsed.Warnings)).
			Msg("verdict parse degraded")
	}

	// Stage 5: presentation rewrite.
	if in.Options.Humanize {
		p.humanize(ctx, v)
	}

	logger.Info().
		Str("verdict_id", v.ID).
		Str("decision", string(v.Decision)).
		Int("confidence", v.Confidence).
		Int("action_items", len(v.ActionItems)).
		Int64("tokens", v.TotalTokens()).
		Dur("elapsed", p.now().Sub(started)).
		Msg("evaluation pipeline complete")
	return v, nil
}

func (p *Pipeline) invoke(ctx context.Context, agent, message string) (models.AgentOutput, error) {
	persona := prompts.MustGet(agent)
	return p.invoker.Invoke(ctx, api.Request{
		AgentName:    persona.Name,
		SystemPrompt: persona.System,
		UserMessage:  message,
		Tools:        api.ToolBudget{Search: persona.SearchBudget, Fetch: persona.FetchBudget},
	})
}

// transcribe runs every pre skill scoped to Intake over the raw idea, in order.
func (p *Pipeline) transcribe(ctx context.Context, text string) string {
	if p.skills == nil || p.applier == nil {
		p.emit(StageEvent{Stage: StageTranscribe, Status: StatusSkipped, Notes: []string{"skills not configured"}})
		return text
	}
	p.emit(StageEvent{Stage: StageTranscribe, Status: StatusRunning})
	start := p.now()

	var notes []string
	for _, skill := range p.skills.ForAgent(models.AgentIntake, models.ApplyPre) {
		res := p.applier.Apply(ctx, skill, text)
		text = res.Text
		notes = append(notes, res.Notes...)
	}
	p.emit(StageEvent{Stage: StageTranscribe, Status: StatusComplete, Duration: p.now().Sub(start), Notes: notes})
	return text
}

// humanize rewrites all four agent outputs in parallel with their post
// skills, plus the executive summary with the humanize skill. Parsed fields
// other than the summary are left untouched.
func (p *Pipeline) humanize(ctx context.Context, v *models.Verdict) {
	if p.skills == nil || p.applier == nil {
		p.emit(StageEvent{Stage: StageHumanize, Status: StatusSkipped, Notes: []string{"skills not configured"}})
		return
	}
	p.emit(StageEvent{Stage: StageHumanize, Status: StatusRunning})
	start := p.now()

	targets := []*models.AgentOutput{&v.Intake, &v.Catalyst, &v.Fire, &v.Synthesis}
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		notes []string
	)
	for _, out := range targets {
		wg.Add(1)
		go func(out *models.AgentOutput) {
			defer wg.Done()
			text := out.AnalysisText
			for _, skill := range p.skills.ForAgent(out.AgentName, models.ApplyPost) {
				res := p.applier.Apply(ctx, skill, text)
				text = res.Text
				if len(res.Notes) > 0 {
					mu.Lock()
					notes = append(notes, res.Notes...)
					mu.Unlock()
				}
			}
			*out = out.WithText(text)
		}(out)
	}
	if v.ExecutiveSummary != "" {
		if skill, ok := p.skills.Get(skills.SkillHumanize); ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := p.applier.Apply(ctx, skill, v.ExecutiveSummary)
				v.ExecutiveSummary = res.Text
			}()
		}
	}
	wg.Wait()

	p.emit(StageEvent{Stage: StageHumanize, Status: StatusComplete, Duration: p.now().Sub(start), Notes: notes})
}

func (p *Pipeline) complete(stage Stage, out models.AgentOutput) {
	p.emit(StageEvent{
		Stage:    stage,
		Status:   StatusComplete,
		Agents:   []string{out.AgentName},
		Duration: time.Duration(out.DurationMs) * time.Millisecond,
	})
}

func (p *Pipeline) fail(stage Stage, err error) {
	logging.Component("pipeline").Error().Str("stage", string(stage)).Err(err).Msg("evaluation pipeline failed")
	p.emit(StageEvent{Stage: stage, Status: StatusFailed, Err: fmt.Errorf("%s: %w", stage, err)})
}
