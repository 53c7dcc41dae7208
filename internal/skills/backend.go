package skills

import (
	"context"
	"errors"
	"fmt"

	"github.com/ShayCichocki/verdict/internal/api"
	"github.com/ShayCichocki/verdict/pkg/models"
)

// ErrBackendUnavailable is matched by every backend failure.
var ErrBackendUnavailable = errors.New("skill backend unavailable")

// UnavailableError explains why one backend could not apply a skill.
type UnavailableError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrBackendUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

func unavailable(backend, reason string, err error) error {
	return &UnavailableError{Backend: backend, Reason: reason, Err: err}
}

// Backend is one strategy for applying a skill. Backends are tried in order.
type Backend interface {
	Name() string
	TryApply(ctx context.Context, skill models.Skill, text string) (string, error)
}

// RemoteBackend applies skills through the model invoker.
type RemoteBackend struct {
	Invoker api.Invoker
	// Model overrides the configured model for skill calls.
	Model string
}

// Name implements Backend.
func (b *RemoteBackend) Name() string { return "remote" }

// TryApply implements Backend.
func (b *RemoteBackend) TryApply(ctx context.Context, skill models.Skill, text string) (string, error) {
	if b.Invoker == nil {
		return "", unavailable(b.Name(), "no invoker configured", nil)
	}
	out, err := b.Invoker.Invoke(ctx, api.Request{
		AgentName:    "skill:" + skill.ID,
		SystemPrompt: skill.Content,
		UserMessage:  text,
		ModelHint:    b.Model,
	})
	if err != nil {
		return "", unavailable(b.Name(), "invocation failed", err)
	}
	if out.AnalysisText == "" {
		return "", unavailable(b.Name(), "empty response", nil)
	}
	return out.AnalysisText, nil
}
