// Package store persists projects, evaluations, and groundwork results.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ShayCichocki/verdict/internal/config"
	"github.com/ShayCichocki/verdict/pkg/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionLimit is returned by CreateIteration when the project already
	// holds the maximum number of versions. Nothing is written.
	ErrVersionLimit = errors.New("project version limit reached")
	// ErrInvalidTransition is returned when an update would move an
	// evaluation to a status its current status cannot reach.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ProjectStore handles projects and their version history.
type ProjectStore interface {
	// CreateProjectWithEvaluation stores a new project and its first
	// evaluation together.
	CreateProjectWithEvaluation(ctx context.Context, p *models.Project, e *models.Evaluation) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	// ListProjects returns projects newest first. An empty userID lists all.
	ListProjects(ctx context.Context, userID string) ([]models.Project, error)
	// GetProjectHistory returns a project's evaluations ordered by version.
	GetProjectHistory(ctx context.Context, projectID string) ([]models.Evaluation, error)
	GetStats(ctx context.Context) (models.Stats, error)
}

// EvaluationStore handles evaluation records.
type EvaluationStore interface {
	GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error)
	// UpdateEvaluation replaces status, verdict, and error. Status changes
	// must follow models.EvaluationStatus.CanTransition.
	UpdateEvaluation(ctx context.Context, e *models.Evaluation) error
	// CreateIteration atomically assigns e.Version = latest+1 for
	// e.ProjectID and stores e, unless the project already has maxVersions
	// versions.
	CreateIteration(ctx context.Context, e *models.Evaluation, maxVersions int) error
}

// GroundworkStore handles groundwork results.
type GroundworkStore interface {
	CreateGroundwork(ctx context.Context, g *models.GroundworkResult) error
	UpdateGroundwork(ctx context.Context, g *models.GroundworkResult) error
	// GetGroundworkByEvaluation returns the most recent result for an evaluation.
	GetGroundworkByEvaluation(ctx context.Context, evaluationID string) (*models.GroundworkResult, error)
}

// Store is the full storage adapter.
type Store interface {
	io.Closer
	ProjectStore
	EvaluationStore
	GroundworkStore
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQL)(nil)
)

// Open returns the backend selected by cfg.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQL(cfg.Driver, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func checkTransition(from, to models.EvaluationStatus) error {
	if from == to || from.CanTransition(to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func newStats() models.Stats {
	return models.Stats{
		ByStatus:   make(map[models.EvaluationStatus]int),
		ByDecision: make(map[models.Decision]int),
	}
}
