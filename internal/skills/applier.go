package skills

import (
	"context"
	"errors"

	"github.com/ShayCichocki/verdict/internal/api"
	"github.com/ShayCichocki/verdict/internal/config"
	"github.com/ShayCichocki/verdict/internal/logging"
	"github.com/ShayCichocki/verdict/pkg/models"
)

// Result is the outcome of applying a skill. When Applied is false, Text is
// the original input and Notes explains why each backend was skipped.
type Result struct {
	Text    string
	Applied bool
	Backend string
	Notes   []string
}

// Applier runs skills through an ordered backend chain.
type Applier struct {
	backends []Backend
}

// NewApplier creates an Applier that tries backends in order.
func NewApplier(backends ...Backend) *Applier {
	return &Applier{backends: backends}
}

// NewApplierFromConfig builds the standard chain: local Ollama when a URL is
// configured, then the remote invoker.
func NewApplierFromConfig(cfg config.SkillsConfig, invoker api.Invoker) *Applier {
	var backends []Backend
	if cfg.OllamaURL != "" {
		backends = append(backends, NewOllamaBackend(OllamaConfig{
			BaseURL:       cfg.OllamaURL,
			Model:         cfg.OllamaModel,
			HealthTimeout: cfg.HealthTimeout,
		}))
	}
	if invoker != nil {
		backends = append(backends, &RemoteBackend{Invoker: invoker})
	}
	return NewApplier(backends...)
}

// Backends returns the backend names in try order.
func (a *Applier) Backends() []string {
	names := make([]string, len(a.backends))
	for i, b := range a.backends {
		names[i] = b.Name()
	}
	return names
}

// Apply transforms text with skill. It never fails: if every backend is
// unavailable the original text is returned with Applied false.
func (a *Applier) Apply(ctx context.Context, skill models.Skill, text string) Result {
	res := Result{Text: text}
	if len(a.backends) == 0 {
		res.Notes = append(res.Notes, "no skill backends configured")
		return res
	}

	for _, b := range a.backends {
		out, err := b.TryApply(ctx, skill, text)
		if err == nil {
			res.Text = out
			res.Applied = true
			res.Backend = b.Name()
			logging.Component("skills").Debug().Str("skill", skill.ID).Str("backend", b.Name()).Msg("skill applied")
			return res
		}
		if !errors.Is(err, ErrBackendUnavailable) {
			err = unavailable(b.Name(), "failed", err)
		}
		res.Notes = append(res.Notes, err.Error())
		logging.Component("skills").Debug().Str("skill", skill.ID).Str("backend", b.Name()).Err(err).Msg("skill backend unavailable")
	}

	logging.Component("skills").Warn().Str("skill", skill.ID).Strs("notes", res.Notes).Msg("skill not applied, using original text")
	return res
}
