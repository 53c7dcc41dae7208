package groundwork

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/verdict/internal/api"
	"github.com/ShayCichocki/verdict/internal/store"
	"github.com/ShayCichocki/verdict/pkg/models"
)

const discoveryText = `## Landscape
Scheduling is crowded at the enterprise end.

Competitors: Acme Scheduling, Globex, Initech`

// scripted answers per agent, fails selected deep dives, and records call
// timing per agent name.
type scripted struct {
	mu       sync.Mutex
	calls    map[string]int
	started  map[string][]time.Time
	finished map[string][]time.Time
	messages map[string]string

	fail     map[string]error
	failDive map[string]bool
	searches map[string]int
	delay    time.Duration
	block    chan struct{}
}

func newScripted() *scripted {
	return &scripted{
		calls:    make(map[string]int),
		started:  make(map[string][]time.Time),
		finished: make(map[string][]time.Time),
		messages: make(map[string]string),
		fail:     make(map[string]error),
		failDive: make(map[string]bool),
		searches: make(map[string]int),
		delay:    5 * time.Millisecond,
	}
}

func (s *scripted) Invoke(_ context.Context, req api.Request) (models.AgentOutput, error) {
	start := time.Now()
	s.mu.Lock()
	s.calls[req.AgentName]++
	s.started[req.AgentName] = append(s.started[req.AgentName], start)
	s.messages[req.AgentName] = req.UserMessage
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	time.Sleep(s.delay)

	defer func() {
		s.mu.Lock()
		s.finished[req.AgentName] = append(s.finished[req.AgentName], time.Now())
		s.mu.Unlock()
	}()

	if err := s.fail[req.AgentName]; err != nil {
		return models.AgentOutput{}, err
	}

	text := "# " + req.AgentName + " findings\nDetails for " + req.AgentName + "."
	switch req.AgentName {
	case models.AgentCompetitorIntelligence:
		text = discoveryText
	case models.AgentCompetitorDeepDive:
		for name := range s.failDive {
			if strings.Contains(req.UserMessage, `"`+name+`"`) {
				return models.AgentOutput{}, &api.ProviderError{Provider: api.ProviderAnthropic, Status: 529, Body: "overloaded"}
			}
		}
		text = "Deep dive notes."
	}
	return models.AgentOutput{
		AgentName:    req.AgentName,
		AnalysisText: text,
		TokensIn:     10,
		TokensOut:    5,
		SearchesUsed: s.searches[req.AgentName],
		StartedAt:    start,
		CompletedAt:  time.Now(),
	}, nil
}

func (s *scripted) lastFinish(agent string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	for _, t := range s.finished[agent] {
		if t.After(last) {
			last = t
		}
	}
	return last
}

func (s *scripted) firstStart(agent string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started[agent][0]
}

// completedEvaluation seeds a store with one completed evaluation.
func completedEvaluation(t *testing.T, st store.Store) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	eval := &models.Evaluation{
		ID:     "eval-1",
		Status: models.EvaluationPending,
		RawIdea: models.IdeaInput{
			Problem:       "Small clinics lose hours to phone scheduling",
			Solution:      "SMS-first booking assistant",
			TargetMarket:  "Independent clinics",
			BusinessModel: "Per-seat SaaS",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateProjectWithEvaluation(ctx, &models.Project{ID: "proj-1", CreatedAt: now}, eval))

	eval.Status = models.EvaluationProcessing
	require.NoError(t, st.UpdateEvaluation(ctx, eval))
	eval.Status = models.EvaluationCompleted
	eval.Verdict = &models.Verdict{
		Version:         1,
		Decision:        models.DecisionConditionalFit,
		Confidence:      6,
		DimensionScores: models.DefaultDimensionScores(),
	}
	require.NoError(t, st.UpdateEvaluation(ctx, eval))
	return eval.ID
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

func indexOf(events []Event, match func(Event) bool) int {
	for i, ev := range events {
		if match(ev) {
			return i
		}
	}
	return -1
}

func stageIndex(events []Event, agent string, status StageStatus) int {
	return indexOf(events, func(ev Event) bool {
		return ev.Type == EventStage && ev.Agent == agent && ev.Status == status
	})
}

func TestStart_RunsBothPhases(t *testing.T) {
	st := store.NewMemory()
	evalID := completedEvaluation(t, st)
	inv := newScripted()
	inv.failDive["Globex"] = true
	c := NewCoordinator(st, inv)

	events, err := c.Start(context.Background(), evalID)
	require.NoError(t, err)
	got := drain(t, events)
	c.Wait()

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	require.Equal(t, EventComplete, last.Type, "last event: %+v", last)
	assert.NotEmpty(t, last.GroundworkID)
	for _, ev := range got[:len(got)-1] {
		assert.False(t, ev.Terminal())
	}

	for _, agent := range Agents {
		running := stageIndex(got, agent, StageRunning)
		complete := stageIndex(got, agent, StageComplete)
		require.GreaterOrEqual(t, running, 0, agent)
		assert.Greater(t, complete, running, agent)
		headline := indexOf(got, func(ev Event) bool { return ev.Type == EventHeadline && ev.Agent == agent })
		assert.Greater(t, headline, complete, agent)
	}
	assert.Greater(t, stageIndex(got, models.AgentGapAnalysis, StageRunning), stageIndex(got, models.AgentCompetitorIntelligence, StageComplete))
	assert.Greater(t, stageIndex(got, models.AgentGapAnalysis, StageRunning), stageIndex(got, models.AgentMarketSizing, StageComplete))
	assert.Greater(t, stageIndex(got, models.AgentMVPScope, StageRunning), stageIndex(got, models.AgentCustomerPersonas, StageComplete))
	assert.Greater(t, stageIndex(got, models.AgentMVPScope, StageRunning), stageIndex(got, models.AgentGTMPlaybook, StageComplete))

	res, err := c.Result(context.Background(), evalID)
	require.NoError(t, err)
	assert.Equal(t, last.GroundworkID, res.ID)
	assert.Equal(t, models.GroundworkCompleted, res.Status)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.CompletedAt)
	for _, agent := range Agents {
		assert.NotNil(t, res.Output(agent), agent)
	}

	ci := res.CompetitorIntelligence.AnalysisText
	assert.Contains(t, ci, "## Deep Dive: Acme Scheduling\n\nDeep dive notes.")
	assert.Contains(t, ci, "## Deep Dive: Initech")
	assert.Contains(t, ci, "Research on Globex is unavailable")
	assert.Contains(t, ci, ErrCompetitorResearchFailed.Error())

	assert.Equal(t, 2, res.Metrics.CompetitorsDone)
	assert.Equal(t, 1, res.Metrics.CompetitorsFail)
	assert.Equal(t, 3, inv.calls[models.AgentCompetitorDeepDive])
	// Six agents plus two successful deep dives.
	assert.Len(t, res.Metrics.Agents, 8)
	assert.Equal(t, int64(80), res.Metrics.TotalTokensIn)
	assert.Equal(t, int64(40), res.Metrics.TotalTokensOut)

	assert.Contains(t, inv.messages[models.AgentMVPScope], "## GTM Playbook")
	assert.Contains(t, inv.messages[models.AgentMVPScope], "## Gap Analysis")
	assert.Contains(t, inv.messages[models.AgentGapAnalysis], "Deep Dive: Acme Scheduling")
	assert.Contains(t, inv.messages[models.AgentMarketSizing], "Decision: CONDITIONAL_FIT")

	assert.False(t, c.Running(evalID))
}

func TestStart_GapAnalysisWaitsForPhaseA(t *testing.T) {
	st := store.NewMemory()
	evalID := completedEvaluation(t, st)
	inv := newScripted()
	c := NewCoordinator(st, inv)

	events, err := c.Start(context.Background(), evalID)
	require.NoError(t, err)
	drain(t, events)
	c.Wait()

	gaStart := inv.firstStart(models.AgentGapAnalysis)
	for _, upstream := range []string{
		models.AgentCompetitorIntelligence,
		models.AgentCompetitorDeepDive,
		models.AgentMarketSizing,
	} {
		assert.False(t, gaStart.Before(inv.lastFinish(upstream)), "gapAnalysis started before %s finished", upstream)
	}

	mvpStart := inv.firstStart(models.AgentMVPScope)
	for _, upstream := range []string{models.AgentCustomerPersonas, models.AgentGTMPlaybook} {
		assert.False(t, mvpStart.Before(inv.lastFinish(upstream)), "mvpScope started before %s finished", upstream)
	}
	for _, phaseB := range []string{models.AgentCustomerPersonas, models.AgentGTMPlaybook} {
		assert.False(t, inv.firstStart(phaseB).Before(inv.lastFinish(models.AgentGapAnalysis)), "%s started before gapAnalysis finished", phaseB)
	}
}

func TestStart_AgentFailureFailsRun(t *testing.T) {
	st := store.NewMemory()
	evalID := completedEvaluation(t, st)
	inv := newScripted()
	inv.fail[models.AgentMarketSizing] = &api.TransportError{Provider: api.ProviderAnthropic, Err: context.DeadlineExceeded}
	c := NewCoordinator(st, inv)

	events, err := c.Start(context.Background(), evalID)
	require.NoError(t, err)
	got := drain(t, events)
	c.Wait()

	last := got[len(got)-1]
	require.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Message, "marketSizing")
	assert.Contains(t, last.Message, "deadline exceeded")
	assert.Equal(t, -1, stageIndex(got, models.AgentGapAnalysis, StageRunning))
	assert.Zero(t, inv.calls[models.AgentGapAnalysis])

	res, err := c.Result(context.Background(), evalID)
	require.NoError(t, err)
	assert.Equal(t, models.GroundworkFailed, res.Status)
	assert.Equal(t, last.Message, res.Error)
	assert.Nil(t, res.GapAnalysis)
}

func TestStart_InFlightRejected(t *testing.T) {
	st := store.NewMemory()
	evalID := completedEvaluation(t, st)
	inv := newScripted()
	inv.block = make(chan struct{})
	c := NewCoordinator(st, inv)

	events, err := c.Start(context.Background(), evalID)
	require.NoError(t, err)
	assert.True(t, c.Running(evalID))

	_, err = c.Start(context.Background(), evalID)
	assert.ErrorIs(t, err, ErrGroundworkInFlight)

	close(inv.block)
	drain(t, events)
	c.Wait()

	inv.mu.Lock()
	inv.block = nil
	inv.mu.Unlock()
	again, err := c.Start(context.Background(), evalID)
	require.NoError(t, err, "a finished run releases the evaluation")
	drain(t, again)
	c.Wait()
}

func TestStart_InFlightAcrossProcesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verdict.db")
	first, err := store.OpenSQL(store.DriverModernc, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })
	evalID := completedEvaluation(t, first)

	second, err := store.OpenSQL(store.DriverModernc, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	inv := newScripted()
	inv.block = make(chan struct{})
	running := NewCoordinator(first, inv)
	events, err := running.Start(context.Background(), evalID)
	require.NoError(t, err)

	other := NewCoordinator(second, newScripted())
	_, err = other.Start(context.Background(), evalID)
	assert.ErrorIs(t, err, ErrGroundworkInFlight)
	assert.False(t, other.Running(evalID), "a refused start releases the local guard")

	close(inv.block)
	drain(t, events)
	running.Wait()

	again, err := other.Start(context.Background(), evalID)
	require.NoError(t, err, "a stored terminal result does not block")
	drain(t, again)
	other.Wait()
}

func TestStart_StaleProcessingResultIgnored(t *testing.T) {
	st := store.NewMemory()
	evalID := completedEvaluation(t, st)
	require.NoError(t, st.CreateGroundwork(context.Background(), &models.GroundworkResult{
		ID:           "gw-crashed",
		EvaluationID: evalID,
		Status:       models.GroundworkProcessing,
		Metrics:      models.GroundworkMetrics{Agents: map[string]models.AgentMetric{}},
		CreatedAt:    time.Now().Add(-2 * staleRunAfter),
	}))

	c := NewCoordinator(st, newScripted())
	events, err := c.Start(context.Background(), evalID)
	require.NoError(t, err)
	drain(t, events)
	c.Wait()

	res, err := c.Result(context.Background(), evalID)
	require.NoError(t, err)
	assert.NotEqual(t, "gw-crashed", res.ID)
	assert.Equal(t, models.GroundworkCompleted, res.Status)
}

func TestStart_CallerCancelDoesNotAbort(t *testing.T) {
	st := store.NewMemory()
	evalID := completedEvaluation(t, st)
	c := NewCoordinator(st, newScripted())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.Start(ctx, evalID)
	require.NoError(t, err)
	cancel()
	c.Wait()

	res, err := c.Result(context.Background(), evalID)
	require.NoError(t, err)
	assert.Equal(t, models.GroundworkCompleted, res.Status)
}

func TestStart_RequiresCompletedEvaluation(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Now()
	eval := &models.Evaluation{ID: "pending", Status: models.EvaluationPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.CreateProjectWithEvaluation(ctx, &models.Project{ID: "p"}, eval))

	c := NewCoordinator(st, newScripted())
	_, err := c.Start(ctx, "pending")
	assert.ErrorIs(t, err, ErrEvaluationNotCompleted)

	_, err = c.Start(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.Result(ctx, "pending")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStart_OverBudgetIsSoft(t *testing.T) {
	st := store.NewMemory()
	evalID := completedEvaluation(t, st)
	inv := newScripted()
	inv.searches[models.AgentMVPScope] = 2
	inv.searches[models.AgentMarketSizing] = 3
	c := NewCoordinator(st, inv)

	events, err := c.Start(context.Background(), evalID)
	require.NoError(t, err)
	drain(t, events)
	c.Wait()

	res, err := c.Result(context.Background(), evalID)
	require.NoError(t, err)
	assert.Equal(t, models.GroundworkCompleted, res.Status)

	mvp := res.Metrics.Agents[models.AgentMVPScope]
	assert.True(t, mvp.OverBudget)
	assert.Equal(t, 0, mvp.SearchBudget)
	assert.Equal(t, 2, mvp.SearchesUsed)

	ms := res.Metrics.Agents[models.AgentMarketSizing]
	assert.False(t, ms.OverBudget, "using exactly the budget is allowed")
	assert.Equal(t, 5, res.Metrics.TotalSearches)
}

func TestStart_SQLStore(t *testing.T) {
	st, err := store.OpenSQL(store.DriverModernc, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	evalID := completedEvaluation(t, st)
	c := NewCoordinator(st, newScripted())
	events, err := c.Start(context.Background(), evalID)
	require.NoError(t, err)
	drain(t, events)
	c.Wait()

	res, err := c.Result(context.Background(), evalID)
	require.NoError(t, err)
	assert.Equal(t, models.GroundworkCompleted, res.Status)
	require.NotNil(t, res.MVPScope)
	assert.Equal(t, models.AgentMVPScope, res.MVPScope.AgentName)
}

func TestEmitter_DropsWhenFull(t *testing.T) {
	em := newEmitter(1)
	em.emit(Event{Type: EventStage})
	em.emit(Event{Type: EventHeadline})
	assert.Equal(t, uint64(1), em.dropped.Load())
	em.close()

	var n int
	for range em.events {
		n++
	}
	assert.Equal(t, 1, n)
}
