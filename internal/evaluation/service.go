// Package evaluation owns the evaluation job lifecycle: submission, the
// background pipeline run, polling, and iteration into new versions.
//
// Every evaluation moves pending -> processing -> completed|failed. Submit and
// Iterate return as soon as the record is processing; the pipeline runs in a
// detached goroutine whose completion handler writes the terminal state.
// There is no cancellation: a started run always reaches a terminal state.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/verdict/internal/api"
	"github.com/ShayCichocki/verdict/internal/config"
	"github.com/ShayCichocki/verdict/internal/logging"
	"github.com/ShayCichocki/verdict/internal/pipeline"
	"github.com/ShayCichocki/verdict/internal/store"
	"github.com/ShayCichocki/verdict/pkg/models"
)

var (
	// ErrIterationLimitExceeded is returned when a project already has the
	// maximum number of versions. No record is created.
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")
	// ErrPriorNotCompleted is returned when iterating from an evaluation
	// that has not completed.
	ErrPriorNotCompleted = errors.New("prior evaluation is not completed")
)

// Runner executes the evaluation pipeline.
type Runner interface {
	Run(ctx context.Context, in pipeline.RunInput) (*models.Verdict, error)
}

// Service manages evaluations over a store.
type Service struct {
	store         store.Store
	runner        Runner
	maxIterations int
	now           func() time.Time
	newID         func() string

	wg sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithMaxIterations sets the per-project version cap.
func WithMaxIterations(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// NewService creates a Service.
func NewService(st store.Store, runner Runner, opts ...Option) *Service {
	s := &Service{
		store:         st,
		runner:        runner,
		maxIterations: config.DefaultMaxIterations,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxIterations returns the per-project version cap.
func (s *Service) MaxIterations() int {
	return s.maxIterations
}

// Submit validates idea, creates a project with its first evaluation, and
// starts the pipeline in the background. It returns the evaluation ID.
func (s *Service) Submit(ctx context.Context, auth models.AuthContext, idea models.IdeaInput, opts pipeline.Options) (string, error) {
	if idea.Email == "" {
		idea.Email = auth.Email
	}
	if err := idea.Validate(); err != nil {
		return "", err
	}

	now := s.now()
	project := &models.Project{
		ID:        s.newID(),
		UserID:    auth.UserID,
		Email:     idea.Email,
		Title:     idea.Title(),
		CreatedAt: now,
	}
	eval := &models.Evaluation{
		ID:        s.newID(),
		Version:   1,
		Status:    models.EvaluationPending,
		RawIdea:   idea,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateProjectWithEvaluation(ctx, project, eval); err != nil {
		return "", fmt.Errorf("create project: %w", err)
	}

	if err := s.start(ctx, eval, pipeline.RunInput{Idea: idea, Options: opts, Version: eval.Version}); err != nil {
		return "", err
	}
	logging.Component("evaluation").Info().
		Str("evaluation_id", eval.ID).
		Str("project_id", project.ID).
		Msg("evaluation submitted")
	return eval.ID, nil
}

// IterateRequest re-runs a completed evaluation as the next version.
type IterateRequest struct {
	PriorEvaluationID string
	Edits             models.IdeaEdits
	// Responses maps prior action-item IDs to the founder's rebuttals.
	Responses map[string]string
	Options   pipeline.Options
}

// Iterate creates the next version of the prior evaluation's project and
// starts its run. The prior verdict and responses become Synthesis context.
func (s *Service) Iterate(ctx context.Context, req IterateRequest) (string, error) {
	prior, err := s.store.GetEvaluation(ctx, req.PriorEvaluationID)
	if err != nil {
		return "", fmt.Errorf("prior evaluation %s: %w", req.PriorEvaluationID, err)
	}
	if prior.Status != models.EvaluationCompleted || prior.Verdict == nil {
		return "", fmt.Errorf("%w: %s is %s", ErrPriorNotCompleted, prior.ID, prior.Status)
	}

	idea := prior.RawIdea.Overlay(req.Edits)
	if err := idea.Validate(); err != nil {
		return "", err
	}

	now := s.now()
	eval := &models.Evaluation{
		ID:            s.newID(),
		ProjectID:     prior.ProjectID,
		Status:        models.EvaluationPending,
		RawIdea:       idea,
		UserResponses: req.Responses,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateIteration(ctx, eval, s.maxIterations); err != nil {
		if errors.Is(err, store.ErrVersionLimit) {
			return "", fmt.Errorf("%w: project %s already has %d versions", ErrIterationLimitExceeded, prior.ProjectID, s.maxIterations)
		}
		return "", fmt.Errorf("create iteration: %w", err)
	}

	in := pipeline.RunInput{
		Idea:    idea,
		Options: req.Options,
		Version: eval.Version,
		Prior:   &pipeline.PriorContext{Verdict: prior.Verdict, Responses: req.Responses},
	}
	if err := s.start(ctx, eval, in); err != nil {
		return "", err
	}
	logging.Component("evaluation").Info().
		Str("evaluation_id", eval.ID).
		Str("project_id", eval.ProjectID).
		Int("version", eval.Version).
		Msg("iteration submitted")
	return eval.ID, nil
}

// start moves eval to processing and launches the detached run.
func (s *Service) start(ctx context.Context, eval *models.Evaluation, in pipeline.RunInput) error {
	eval.Status = models.EvaluationProcessing
	eval.UpdatedAt = s.now()
	if err := s.store.UpdateEvaluation(ctx, eval); err != nil {
		return fmt.Errorf("start evaluation: %w", err)
	}

	// The run outlives the caller's request.
	runCtx := context.WithoutCancel(ctx)
	id := eval.ID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx, id, in)
	}()
	return nil
}

func (s *Service) run(ctx context.Context, id string, in pipeline.RunInput) {
	var (
		v   *models.Verdict
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pipeline panic: %v", r)
			}
		}()
		v, err = s.runner.Run(ctx, in)
	}()
	s.finish(ctx, id, v, err)
}

// finish is the completion handler: it writes the terminal state.
func (s *Service) finish(ctx context.Context, id string, v *models.Verdict, runErr error) {
	eval, err := s.store.GetEvaluation(ctx, id)
	if err != nil {
		logging.Component("evaluation").Error().Err(err).Str("evaluation_id", id).Msg("load evaluation for completion")
		return
	}

	eval.UpdatedAt = s.now()
	if runErr != nil {
		eval.Status = models.EvaluationFailed
		eval.Error = runErr.Error()
		eval.Verdict = nil
	} else {
		eval.Status = models.EvaluationCompleted
		eval.Verdict = v
	}

	if err := s.store.UpdateEvaluation(ctx, eval); err != nil {
		logging.Component("evaluation").Error().Err(err).Str("evaluation_id", id).Msg("write evaluation result")
		return
	}

	if runErr != nil {
		logging.Component("evaluation").Warn().
			Str("evaluation_id", id).
			Str("error", eval.Error).
			Bool("retryable", api.IsRetryable(runErr)).
			Msg("evaluation failed")
		return
	}
	logging.Component("evaluation").Info().
		Str("evaluation_id", id).
		Str("decision", string(v.Decision)).
		Int("confidence", v.Confidence).
		Msg("evaluation completed")
}

// Wait blocks until every background run has written its terminal state.
func (s *Service) Wait() {
	s.wg.Wait()
}

// PollResult is the caller-visible state of an evaluation.
type PollResult struct {
	EvaluationID string                  `json:"evaluation_id"`
	ProjectID    string                  `json:"project_id"`
	Version      int                     `json:"version"`
	Status       models.EvaluationStatus `json:"status"`
	Verdict      *models.Verdict         `json:"verdict,omitempty"`
	Error        string                  `json:"error,omitempty"`
}

// Poll returns the current state of an evaluation.
func (s *Service) Poll(ctx context.Context, id string) (PollResult, error) {
	eval, err := s.store.GetEvaluation(ctx, id)
	if err != nil {
		return PollResult{}, fmt.Errorf("poll %s: %w", id, err)
	}
	return PollResult{
		EvaluationID: eval.ID,
		ProjectID:    eval.ProjectID,
		Version:      eval.Version,
		Status:       eval.Status,
		Verdict:      eval.Verdict,
		Error:        eval.Error,
	}, nil
}

// Await polls every interval until the evaluation is terminal or ctx is done.
func (s *Service) Await(ctx context.Context, id string, interval time.Duration) (PollResult, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := s.Poll(ctx, id)
		if err != nil || res.Status.Terminal() {
			return res, err
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
	}
}

// History returns every version of a project in order. id may be a project
// ID or the ID of any evaluation in the project.
func (s *Service) History(ctx context.Context, id string) ([]models.Evaluation, error) {
	history, err := s.store.GetProjectHistory(ctx, id)
	if err == nil {
		return history, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	eval, err := s.store.GetEvaluation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", id, err)
	}
	return s.store.GetProjectHistory(ctx, eval.ProjectID)
}

// ListProjects returns a user's projects, newest first.
func (s *Service) ListProjects(ctx context.Context, userID string) ([]models.Project, error) {
	return s.store.ListProjects(ctx, userID)
}

// Stats returns aggregate counts.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	return s.store.GetStats(ctx)
}
