package store

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/ShayCichocki/verdict/pkg/models"
)

// Memory is an in-process store. Every method holds a single mutex, so
// CreateIteration is atomic per project. Records are copied on the way in
// and out; verdicts are shared and must be treated as immutable.
type Memory struct {
	mu          sync.RWMutex
	projects    map[string]models.Project
	evaluations map[string]models.Evaluation
	byProject   map[string][]string
	groundwork  map[string]models.GroundworkResult
	gwByEval    map[string][]string
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		projects:    make(map[string]models.Project),
		evaluations: make(map[string]models.Evaluation),
		byProject:   make(map[string][]string),
		groundwork:  make(map[string]models.GroundworkResult),
		gwByEval:    make(map[string][]string),
	}
}

// Close implements io.Closer.
func (m *Memory) Close() error { return nil }

func cloneEvaluation(e models.Evaluation) models.Evaluation {
	e.UserResponses = maps.Clone(e.UserResponses)
	return e
}

func cloneGroundwork(g models.GroundworkResult) models.GroundworkResult {
	g.Metrics.Agents = maps.Clone(g.Metrics.Agents)
	return g
}

func (m *Memory) CreateProjectWithEvaluation(_ context.Context, p *models.Project, e *models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.ProjectID = p.ID
	if e.Version == 0 {
		e.Version = 1
	}
	p.LatestVersion = e.Version

	m.projects[p.ID] = *p
	m.evaluations[e.ID] = cloneEvaluation(*e)
	m.byProject[p.ID] = append(m.byProject[p.ID], e.ID)
	return nil
}

func (m *Memory) GetProject(_ context.Context, id string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) ListProjects(_ context.Context, userID string) ([]models.Project, error) {
	m.mu.RLock()
	out := make([]models.Project, 0, len(m.projects))
	for _, p := range m.projects {
		if userID == "" || p.UserID == userID {
			out = append(out, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) GetProjectHistory(_ context.Context, projectID string) ([]models.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.projects[projectID]; !ok {
		return nil, ErrNotFound
	}
	ids := m.byProject[projectID]
	out := make([]models.Evaluation, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneEvaluation(m.evaluations[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Memory) GetStats(_ context.Context) (models.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := newStats()
	stats.Projects = len(m.projects)
	stats.Evaluations = len(m.evaluations)

	var confSum, confN int
	for _, e := range m.evaluations {
		stats.ByStatus[e.Status]++
		if e.Status == models.EvaluationCompleted && e.Verdict != nil {
			stats.ByDecision[e.Verdict.Decision]++
			confSum += e.Verdict.Confidence
			confN++
		}
	}
	if confN > 0 {
		stats.AverageConfidence = float64(confSum) / float64(confN)
	}
	return stats, nil
}

func (m *Memory) GetEvaluation(_ context.Context, id string) (*models.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.evaluations[id]
	if !ok {
		return nil, ErrNotFound
	}
	e = cloneEvaluation(e)
	return &e, nil
}

func (m *Memory) UpdateEvaluation(_ context.Context, e *models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.evaluations[e.ID]
	if !ok {
		return ErrNotFound
	}
	if err := checkTransition(cur.Status, e.Status); err != nil {
		return err
	}
	cur.Status = e.Status
	cur.Verdict = e.Verdict
	cur.Error = e.Error
	cur.UpdatedAt = e.UpdatedAt
	m.evaluations[e.ID] = cur
	return nil
}

func (m *Memory) CreateIteration(_ context.Context, e *models.Evaluation, maxVersions int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[e.ProjectID]
	if !ok {
		return ErrNotFound
	}
	if maxVersions > 0 && p.LatestVersion >= maxVersions {
		return ErrVersionLimit
	}

	p.LatestVersion++
	e.Version = p.LatestVersion
	m.projects[p.ID] = p
	m.evaluations[e.ID] = cloneEvaluation(*e)
	m.byProject[p.ID] = append(m.byProject[p.ID], e.ID)
	return nil
}

func (m *Memory) CreateGroundwork(_ context.Context, g *models.GroundworkResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.evaluations[g.EvaluationID]; !ok {
		return ErrNotFound
	}
	m.groundwork[g.ID] = cloneGroundwork(*g)
	m.gwByEval[g.EvaluationID] = append(m.gwByEval[g.EvaluationID], g.ID)
	return nil
}

func (m *Memory) UpdateGroundwork(_ context.Context, g *models.GroundworkResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groundwork[g.ID]; !ok {
		return ErrNotFound
	}
	m.groundwork[g.ID] = cloneGroundwork(*g)
	return nil
}

func (m *Memory) GetGroundworkByEvaluation(_ context.Context, evaluationID string) (*models.GroundworkResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.gwByEval[evaluationID]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	g := cloneGroundwork(m.groundwork[ids[len(ids)-1]])
	return &g, nil
}
