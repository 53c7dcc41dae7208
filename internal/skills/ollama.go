package skills

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/ShayCichocki/verdict/internal/logging"
	"github.com/ShayCichocki/verdict/pkg/models"
)

const defaultHealthTimeout = 2 * time.Second

// OllamaConfig configures the local inference backend.
type OllamaConfig struct {
	BaseURL       string
	Model         string
	HealthTimeout time.Duration
	HTTPClient    *http.Client
}

// OllamaBackend applies skills with a local Ollama server.
type OllamaBackend struct {
	cfg    OllamaConfig
	client *ollama.Client
	err    error

	// pulled records models a pull was already attempted for, so a missing
	// model costs at most one pull per process.
	mu     sync.Mutex
	pulled map[string]bool
}

// NewOllamaBackend creates a backend for the server at cfg.BaseURL.
func NewOllamaBackend(cfg OllamaConfig) *OllamaBackend {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = defaultHealthTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	b := &OllamaBackend{cfg: cfg, pulled: make(map[string]bool)}
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			b.err = fmt.Errorf("parse ollama url: %w", err)
		} else {
			b.client = ollama.NewClient(base, httpClient)
		}
	}
	return b
}

// Name implements Backend.
func (b *OllamaBackend) Name() string { return "ollama" }

// TryApply implements Backend: health check, optional single pull, generate.
func (b *OllamaBackend) TryApply(ctx context.Context, skill models.Skill, text string) (string, error) {
	if b.err != nil {
		return "", unavailable(b.Name(), "invalid url", b.err)
	}
	if b.client == nil {
		return "", unavailable(b.Name(), "not configured", nil)
	}
	model := skill.Model
	if model == "" {
		model = b.cfg.Model
	}
	if model == "" {
		return "", unavailable(b.Name(), "no model configured", nil)
	}

	installed, err := b.models(ctx)
	if err != nil {
		return "", unavailable(b.Name(), "health check failed", err)
	}
	if !hasModel(installed, model) {
		if err := b.pullOnce(ctx, model); err != nil {
			return "", unavailable(b.Name(), fmt.Sprintf("model %s not available", model), err)
		}
	}

	stream := false
	var out strings.Builder
	err = b.client.Generate(ctx, &ollama.GenerateRequest{
		Model:  model,
		System: skill.Content,
		Prompt: text,
		Stream: &stream,
	}, func(resp ollama.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", unavailable(b.Name(), "generate failed", err)
	}
	result := strings.TrimSpace(out.String())
	if result == "" {
		return "", unavailable(b.Name(), "empty response", nil)
	}
	return result, nil
}

// models lists installed models under the short health timeout.
func (b *OllamaBackend) models(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.HealthTimeout)
	defer cancel()

	list, err := b.client.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		} else {
			names = append(names, m.Model)
		}
	}
	return names, nil
}

func (b *OllamaBackend) pullOnce(ctx context.Context, model string) error {
	b.mu.Lock()
	if b.pulled[model] {
		b.mu.Unlock()
		return fmt.Errorf("pull already attempted")
	}
	b.pulled[model] = true
	b.mu.Unlock()

	logging.Component("skills").Info().Str("model", model).Msg("pulling local model")
	stream := false
	var status string
	err := b.client.Pull(ctx, &ollama.PullRequest{Model: model, Stream: &stream}, func(p ollama.ProgressResponse) error {
		status = p.Status
		return nil
	})
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if status != "success" {
		return fmt.Errorf("pull: status %q", status)
	}
	return nil
}

// hasModel matches "llama3.2" against installed names such as "llama3.2:latest".
func hasModel(installed []string, model string) bool {
	for _, name := range installed {
		if name == model {
			return true
		}
		if !strings.Contains(model, ":") && name == model+":latest" {
			return true
		}
	}
	return false
}
