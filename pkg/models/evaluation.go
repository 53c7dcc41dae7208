package models

import "time"

// EvaluationStatus represents the lifecycle state of one pipeline run.
type EvaluationStatus string

const (
	// EvaluationPending indicates the record exists but the run has not started.
	EvaluationPending EvaluationStatus = "pending"
	// EvaluationProcessing indicates the pipeline is running in the background.
	EvaluationProcessing EvaluationStatus = "processing"
	// EvaluationCompleted indicates a verdict was produced and stored.
	EvaluationCompleted EvaluationStatus = "completed"
	// EvaluationFailed indicates the run aborted; Error holds the raw message.
	EvaluationFailed EvaluationStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s EvaluationStatus) Valid() bool {
	switch s {
	case EvaluationPending, EvaluationProcessing, EvaluationCompleted, EvaluationFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s EvaluationStatus) Terminal() bool {
	return s == EvaluationCompleted || s == EvaluationFailed
}

// CanTransition reports whether moving from s to next is allowed:
// pending -> processing -> {completed, failed}.
func (s EvaluationStatus) CanTransition(next EvaluationStatus) bool {
	switch s {
	case EvaluationPending:
		return next == EvaluationProcessing || next == EvaluationFailed
	case EvaluationProcessing:
		return next == EvaluationCompleted || next == EvaluationFailed
	default:
		return false
	}
}

// Evaluation is the run record for one pipeline execution within a project.
type Evaluation struct {
	// ID is the opaque evaluation identifier returned to callers.
	ID string `json:"id"`
	// ProjectID groups this evaluation into a version chain.
	ProjectID string `json:"project_id"`
	// Version is the 1-based position in the project chain.
	Version int `json:"version"`
	// Status is the current lifecycle state.
	Status EvaluationStatus `json:"status"`
	// RawIdea is the idea input this run evaluated.
	RawIdea IdeaInput `json:"raw_idea"`
	// UserResponses maps action item IDs of the prior verdict to rebuttal text.
	UserResponses map[string]string `json:"user_responses,omitempty"`
	// Verdict is set once the run completes.
	Verdict *Verdict `json:"verdict,omitempty"`
	// Error holds the raw failure message when Status is failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Project groups an ordered chain of evaluations of one idea.
type Project struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id,omitempty"`
	Email         string    `json:"email"`
	Title         string    `json:"title"`
	LatestVersion int       `json:"latest_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stats summarizes stored evaluations.
type Stats struct {
	Projects          int                      `json:"projects"`
	Evaluations       int                      `json:"evaluations"`
	ByStatus          map[EvaluationStatus]int `json:"by_status"`
	ByDecision        map[Decision]int         `json:"by_decision"`
	AverageConfidence float64                  `json:"average_confidence"`
}
