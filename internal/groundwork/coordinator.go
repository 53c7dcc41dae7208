// Package groundwork runs the post-verdict research pipeline.
//
// Six agents run in two phases. Phase A runs competitor intelligence and
// market sizing in parallel, then gap analysis over both. Phase B runs
// customer personas and the GTM playbook in parallel over Phase A, then MVP
// scoping over everything. Progress is streamed to a single subscriber as a
// channel of Events that closes after the complete or error event.
package groundwork

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/verdict/internal/api"
	"github.com/ShayCichocki/verdict/internal/logging"
	"github.com/ShayCichocki/verdict/internal/prompts"
	"github.com/ShayCichocki/verdict/internal/store"
	"github.com/ShayCichocki/verdict/pkg/models"
)

var (
	// ErrGroundworkInFlight is returned when a run for the evaluation is
	// already active.
	ErrGroundworkInFlight = errors.New("groundwork already running for evaluation")
	// ErrEvaluationNotCompleted is returned when the evaluation has no verdict yet.
	ErrEvaluationNotCompleted = errors.New("evaluation is not completed")
)

// staleRunAfter bounds how long a stored processing result blocks new runs.
const staleRunAfter = time.Hour

// Agents lists the groundwork agents in execution order.
var Agents = []string{
	models.AgentCompetitorIntelligence,
	models.AgentMarketSizing,
	models.AgentGapAnalysis,
	models.AgentCustomerPersonas,
	models.AgentGTMPlaybook,
	models.AgentMVPScope,
}

// Coordinator starts groundwork runs and serves their results.
type Coordinator struct {
	store   store.Store
	invoker api.Invoker
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator overrides result ID generation.
func WithIDGenerator(f func() string) Option {
	return func(c *Coordinator) { c.newID = f }
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(st store.Store, invoker api.Invoker, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		invoker:  invoker,
		now:      time.Now,
		newID:    uuid.NewString,
		inFlight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches groundwork for a completed evaluation and returns its
// event stream. The run continues if ctx is cancelled or the stream is
// abandoned; its outcome is always persisted.
func (c *Coordinator) Start(ctx context.Context, evaluationID string) (<-chan Event, error) {
	eval, err := c.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("groundwork for %s: %w", evaluationID, err)
	}
	if eval.Status != models.EvaluationCompleted || eval.Verdict == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrEvaluationNotCompleted, evaluationID, eval.Status)
	}

	if !c.acquire(evaluationID) {
		return nil, fmt.Errorf("%w: %s", ErrGroundworkInFlight, evaluationID)
	}
	if err := c.checkStored(ctx, evaluationID); err != nil {
		c.release(evaluationID)
		return nil, err
	}

	result := &models.GroundworkResult{
		ID:           c.newID(),
		EvaluationID: evaluationID,
		Status:       models.GroundworkProcessing,
		Metrics:      models.GroundworkMetrics{Agents: make(map[string]models.AgentMetric)},
		CreatedAt:    c.now(),
	}
	if err := c.store.CreateGroundwork(ctx, result); err != nil {
		c.release(evaluationID)
		return nil, fmt.Errorf("create groundwork: %w", err)
	}

	r := &run{
		c:        c,
		em:       newEmitter(eventBuffer),
		ideaText: eval.RawIdea.Text(),
		verdict:  eval.Verdict,
		result:   result,
	}

	runCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(evaluationID)
		r.execute(runCtx)
	}()

	logging.Component("groundwork").Info().
		Str("evaluation_id", evaluationID).
		Str("groundwork_id", result.ID).
		Msg("groundwork started")
	return r.em.events, nil
}

// Result returns the latest groundwork result for an evaluation.
func (c *Coordinator) Result(ctx context.Context, evaluationID string) (*models.GroundworkResult, error) {
	g, err := c.store.GetGroundworkByEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("groundwork for %s: %w", evaluationID, err)
	}
	return g, nil
}

// Running reports whether a run for the evaluation is active.
func (c *Coordinator) Running(evaluationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[evaluationID]
}

// Wait blocks until every active run has persisted its outcome.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) acquire(evaluationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[evaluationID] {
		return false
	}
	c.inFlight[evaluationID] = true
	return true
}

// checkStored refuses a run while the store holds a fresh processing result
// for the evaluation, which covers runs owned by another process sharing a
// SQLite file. Processing results older than staleRunAfter are treated as
// abandoned by a crashed process.
func (c *Coordinator) checkStored(ctx context.Context, evaluationID string) error {
	prev, err := c.store.GetGroundworkByEvaluation(ctx, evaluationID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("groundwork for %s: %w", evaluationID, err)
	}
	if prev.Status == models.GroundworkProcessing && c.now().Sub(prev.CreatedAt) < staleRunAfter {
		return fmt.Errorf("%w: %s (result %s)", ErrGroundworkInFlight, evaluationID, prev.ID)
	}
	return nil
}

func (c *Coordinator) release(evaluationID string) {
	c.mu.Lock()
	delete(c.inFlight, evaluationID)
	c.mu.Unlock()
}

// run is the state of one groundwork execution.
type run struct {
	c        *Coordinator
	em       *emitter
	ideaText string
	verdict  *models.Verdict

	mu     sync.Mutex
	result *models.GroundworkResult
}

func (r *run) execute(ctx context.Context) {
	defer r.em.close()
	start := r.c.now()

	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("groundwork panic: %v", p)
			}
		}()
		err = r.phases(ctx)
	}()

	r.finish(ctx, start, err)
}

func (r *run) phases(ctx context.Context) error {
	var ci, ms models.AgentOutput

	// Phase A
	var a errgroup.Group
	a.Go(func() error {
		out, err := r.competitorIntelligence(ctx)
		ci = out
		return err
	})
	a.Go(func() error {
		out, err := r.step(ctx, models.AgentMarketSizing, r.message())
		ms = out
		return err
	})
	if err := a.Wait(); err != nil {
		return err
	}

	ga, err := r.step(ctx, models.AgentGapAnalysis, r.message(
		section("Competitor Intelligence", ci),
		section("Market Sizing", ms),
	))
	if err != nil {
		return err
	}
	r.checkpoint(ctx)

	// Phase B
	phaseA := []prompts.Section{
		section("Competitor Intelligence", ci),
		section("Market Sizing", ms),
		section("Gap Analysis", ga),
	}
	var cp, gtm models.AgentOutput
	var b errgroup.Group
	b.Go(func() error {
		out, err := r.step(ctx, models.AgentCustomerPersonas, r.message(phaseA...))
		cp = out
		return err
	})
	b.Go(func() error {
		out, err := r.step(ctx, models.AgentGTMPlaybook, r.message(phaseA...))
		gtm = out
		return err
	})
	if err := b.Wait(); err != nil {
		return err
	}

	_, err = r.step(ctx, models.AgentMVPScope, r.message(append(phaseA,
		section("Customer Personas", cp),
		section("GTM Playbook", gtm),
	)...))
	return err
}

// competitorIntelligence runs discovery, then one deep dive per named
// competitor. The stored output is the discovery call with the combined
// report as its text.
func (r *run) competitorIntelligence(ctx context.Context) (models.AgentOutput, error) {
	agent := models.AgentCompetitorIntelligence
	r.stage(agent, StageRunning)

	discovery, err := r.invoke(ctx, agent, r.message())
	if err != nil {
		return models.AgentOutput{}, fmt.Errorf("%s: %w", agent, err)
	}

	names := ParseCompetitors(discovery.AnalysisText)
	dives := r.deepDives(ctx, names)

	var done, failed []string
	for _, d := range dives {
		if d.err != nil {
			failed = append(failed, d.name)
			logging.Component("groundwork").Warn().Err(d.err).Str("competitor", d.name).Msg("competitor deep dive failed")
			continue
		}
		done = append(done, d.name)
		r.record(models.AgentCompetitorDeepDive+":"+d.name, d.output)
	}

	r.mu.Lock()
	r.result.Metrics.CompetitorsDone = len(done)
	r.result.Metrics.CompetitorsFail = len(failed)
	r.mu.Unlock()

	if len(names) > 0 {
		r.emit(Event{Type: EventHeadline, Agent: models.AgentCompetitorDeepDive, Text: competitorsHeadline(done, failed)})
	}

	out := discovery.WithText(competitorReport(discovery.AnalysisText, dives))
	r.complete(agent, out)
	return out, nil
}

// step runs one agent and records its output.
func (r *run) step(ctx context.Context, agent, message string) (models.AgentOutput, error) {
	r.stage(agent, StageRunning)
	out, err := r.invoke(ctx, agent, message)
	if err != nil {
		return models.AgentOutput{}, fmt.Errorf("%s: %w", agent, err)
	}
	r.complete(agent, out)
	return out, nil
}

func (r *run) invoke(ctx context.Context, agent, message string) (models.AgentOutput, error) {
	persona := prompts.MustGet(agent)
	return r.c.invoker.Invoke(ctx, api.Request{
		AgentName:    persona.Name,
		SystemPrompt: persona.System,
		UserMessage:  message,
		Tools:        api.ToolBudget{Search: persona.SearchBudget, Fetch: persona.FetchBudget},
	})
}

func (r *run) message(upstream ...prompts.Section) string {
	return prompts.GroundworkMessage(r.ideaText, r.verdict, upstream...)
}

// complete stores an agent's output and announces it.
func (r *run) complete(agent string, out models.AgentOutput) {
	r.record(agent, out)
	r.mu.Lock()
	r.result.SetOutput(agent, out)
	r.mu.Unlock()

	r.stage(agent, StageComplete)
	if h := Headline(out.AnalysisText); h != "" {
		r.emit(Event{Type: EventHeadline, Agent: agent, Text: h})
	}
}

// record adds a metric entry. Exceeding the search budget only sets
// OverBudget.
func (r *run) record(key string, out models.AgentOutput) {
	persona := strings.SplitN(key, ":", 2)[0]
	budget := prompts.MustGet(persona).SearchBudget
	m := models.AgentMetric{
		SearchBudget: budget,
		SearchesUsed: out.SearchesUsed,
		OverBudget:   out.SearchesUsed > budget,
		TokensIn:     out.TokensIn,
		TokensOut:    out.TokensOut,
		DurationMs:   out.DurationMs,
		StartedAt:    out.StartedAt,
		CompletedAt:  out.CompletedAt,
	}
	if m.OverBudget {
		logging.Component("groundwork").Warn().
			Str("agent", key).
			Int("budget", budget).
			Int("used", out.SearchesUsed).
			Msg("search budget exceeded")
	}

	r.mu.Lock()
	r.result.Metrics.Agents[key] = m
	r.mu.Unlock()
}

// checkpoint persists partial progress between phases.
func (r *run) checkpoint(ctx context.Context) {
	r.mu.Lock()
	snapshot := *r.result
	r.mu.Unlock()
	if err := r.c.store.UpdateGroundwork(ctx, &snapshot); err != nil {
		logging.Component("groundwork").Warn().Err(err).Str("groundwork_id", snapshot.ID).Msg("groundwork checkpoint failed")
	}
}

func (r *run) finish(ctx context.Context, start time.Time, runErr error) {
	now := r.c.now()

	r.mu.Lock()
	g := r.result
	g.CompletedAt = &now
	totals(&g.Metrics)
	g.Metrics.TotalDurationMs = now.Sub(start).Milliseconds()
	if runErr != nil {
		g.Status = models.GroundworkFailed
		g.Error = runErr.Error()
	} else {
		g.Status = models.GroundworkCompleted
	}
	snapshot := *g
	r.mu.Unlock()

	if err := r.c.store.UpdateGroundwork(ctx, &snapshot); err != nil {
		logging.Component("groundwork").Error().Err(err).Str("groundwork_id", snapshot.ID).Msg("write groundwork result")
		if runErr == nil {
			runErr = fmt.Errorf("persist groundwork: %w", err)
		}
	}

	if runErr != nil {
		logging.Component("groundwork").Warn().
			Str("groundwork_id", snapshot.ID).
			Str("error", runErr.Error()).
			Bool("retryable", api.IsRetryable(runErr)).
			Msg("groundwork failed")
		r.emit(Event{Type: EventError, Message: runErr.Error()})
		return
	}
	logging.Component("groundwork").Info().
		Str("groundwork_id", snapshot.ID).
		Int64("duration_ms", snapshot.Metrics.TotalDurationMs).
		Int64("tokens_in", snapshot.Metrics.TotalTokensIn).
		Int64("tokens_out", snapshot.Metrics.TotalTokensOut).
		Int("searches", snapshot.Metrics.TotalSearches).
		Msg("groundwork completed")
	r.emit(Event{Type: EventComplete, GroundworkID: snapshot.ID})
}

func (r *run) stage(agent string, status StageStatus) {
	r.emit(Event{Type: EventStage, Agent: agent, Status: status})
}

func (r *run) emit(ev Event) {
	ev.Timestamp = r.c.now()
	r.em.emit(ev)
}

func totals(m *models.GroundworkMetrics) {
	m.TotalTokensIn, m.TotalTokensOut, m.TotalSearches = 0, 0, 0
	for _, a := range m.Agents {
		m.TotalTokensIn += a.TokensIn
		m.TotalTokensOut += a.TokensOut
		m.TotalSearches += a.SearchesUsed
	}
}

func section(title string, out models.AgentOutput) prompts.Section {
	return prompts.Section{Title: title, Body: out.AnalysisText}
}

const headlineMax = 140

// Headline returns the first meaningful line of text with markdown markers
// stripped, truncated to a single short line.
func Headline(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(line, "**", "")
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#*->|_ "))
		line = strings.TrimSpace(strings.TrimRight(line, "*_ "))
		if line == "" || strings.Trim(line, "-=|: ") == "" {
			continue
		}
		if utf8.RuneCountInString(line) > headlineMax {
			runes := []rune(line)
			line = strings.TrimSpace(string(runes[:headlineMax-1])) + "…"
		}
		return line
	}
	return ""
}

func competitorsHeadline(done, failed []string) string {
	h := fmt.Sprintf("Researched %d competitor(s)", len(done))
	if len(done) > 0 {
		h += ": " + strings.Join(done, ", ")
	}
	if len(failed) > 0 {
		h += fmt.Sprintf(" (%d unavailable)", len(failed))
	}
	return h
}
