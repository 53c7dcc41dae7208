package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/verdict/internal/config"
	"github.com/ShayCichocki/verdict/internal/logging"
	"github.com/ShayCichocki/verdict/pkg/models"
)

// ToolBudget declares the external tools an agent may use.
// Search becomes the server-side web search max_uses; Fetch is declared only.
type ToolBudget struct {
	Search int
	Fetch  int
}

// Request is one agent invocation.
type Request struct {
	AgentName    string
	SystemPrompt string
	UserMessage  string
	// ModelHint overrides the configured model for the agent.
	ModelHint string
	Tools     ToolBudget
}

// Invoker runs one agent call and returns its output.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (models.AgentOutput, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (models.AgentOutput, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, req Request) (models.AgentOutput, error) {
	return f(ctx, req)
}

// ProviderFactory builds a provider from a resolved credential.
type ProviderFactory func(ctx context.Context, cred config.Credential) (Provider, error)

// Router resolves a provider for each request and issues exactly one call.
// Providers are tried in configured order for resolution only; a call that
// fails is never re-issued on another provider.
type Router struct {
	cfg       *config.Config
	chain     *config.CredentialChain
	tracker   *TokenTracker
	factories map[string]ProviderFactory
	now       func() time.Time

	mu        sync.Mutex
	providers map[string]Provider
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithCredentialChain replaces the default credential chain.
func WithCredentialChain(chain *config.CredentialChain) RouterOption {
	return func(r *Router) { r.chain = chain }
}

// WithTracker shares a token tracker across routers.
func WithTracker(t *TokenTracker) RouterOption {
	return func(r *Router) { r.tracker = t }
}

// WithProviderFactory overrides how a provider is built for a credential kind
// (anthropic, bedrock, gemini).
func WithProviderFactory(kind string, f ProviderFactory) RouterOption {
	return func(r *Router) { r.factories[kind] = f }
}

// NewRouter creates a Router over the configured providers.
func NewRouter(cfg *config.Config, opts ...RouterOption) *Router {
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Router{
		cfg:       cfg,
		factories: make(map[string]ProviderFactory),
		providers: make(map[string]Provider),
		now:       time.Now,
	}
	r.factories[config.CredentialAnthropic] = r.anthropicFactory(false)
	r.factories[config.CredentialBedrock] = r.anthropicFactory(true)
	r.factories[config.CredentialGemini] = r.geminiFactory()
	for _, opt := range opts {
		opt(r)
	}
	if r.chain == nil {
		r.chain = config.DefaultCredentialChain(cfg)
	}
	if r.tracker == nil {
		r.tracker = NewTokenTracker()
	}
	return r
}

// Tracker returns the process-wide token tracker.
func (r *Router) Tracker() *TokenTracker {
	return r.tracker
}

// ResolveModel returns the model a request will use.
func (r *Router) ResolveModel(req Request) string {
	if req.ModelHint != "" {
		return req.ModelHint
	}
	return r.cfg.Models.ModelFor(req.AgentName)
}

// Invoke implements Invoker.
func (r *Router) Invoke(ctx context.Context, req Request) (models.AgentOutput, error) {
	model := r.ResolveModel(req)
	provider, err := r.resolve(ctx, model)
	if err != nil {
		logging.Component("api").Warn().Str("agent", req.AgentName).Str("model", model).Err(err).Msg("provider resolution failed")
		return models.AgentOutput{}, err
	}

	maxTokens := r.cfg.Pipeline.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}

	started := r.now()
	completion, err := provider.Complete(ctx, Call{
		Model:        model,
		SystemPrompt: req.SystemPrompt,
		UserMessage:  req.UserMessage,
		MaxTokens:    maxTokens,
		Tools:        req.Tools,
	})
	completed := r.now()
	duration := completed.Sub(started).Milliseconds()

	if err != nil {
		logging.Component("api").Error().
			Str("agent", req.AgentName).
			Str("provider", provider.Name()).
			Str("model", model).
			Int64("duration_ms", duration).
			Err(err).
			Msg("agent call failed")
		return models.AgentOutput{}, fmt.Errorf("invoke %s: %w", req.AgentName, err)
	}

	logging.Component("api").Info().
		Str("agent", req.AgentName).
		Str("provider", provider.Name()).
		Str("model", completion.Model).
		Int64("duration_ms", duration).
		Int64("tokens_in", completion.TokensIn).
		Int64("tokens_out", completion.TokensOut).
		Int("searches", completion.Searches).
		Msg("agent call complete")

	return models.AgentOutput{
		AgentName:    req.AgentName,
		AnalysisText: completion.Text,
		TokensIn:     completion.TokensIn,
		TokensOut:    completion.TokensOut,
		DurationMs:   duration,
		SearchesUsed: completion.Searches,
		Provider:     provider.Name(),
		Model:        completion.Model,
		StartedAt:    started,
		CompletedAt:  completed,
	}, nil
}

// resolve picks the first configured provider that serves the model's family
// and whose credential resolves.
func (r *Router) resolve(ctx context.Context, model string) (Provider, error) {
	fam := family(model)
	for _, name := range r.cfg.Providers {
		if fam != "" && name != fam {
			continue
		}
		kind := name
		if name == config.ProviderAnthropic && r.cfg.Anthropic.UseBedrock {
			kind = config.CredentialBedrock
		}
		cred, err := r.chain.Resolve(ctx, kind)
		if err != nil {
			continue
		}
		return r.provider(ctx, kind, cred)
	}

	want := fam
	if want == "" {
		want = "any provider"
	}
	return nil, &CredentialMissingError{Provider: want, Model: model}
}

func (r *Router) provider(ctx context.Context, kind string, cred config.Credential) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[kind]; ok {
		return p, nil
	}
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("no provider factory for %s", kind)
	}
	p, err := factory(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("build %s provider: %w", kind, err)
	}
	r.providers[kind] = p
	return p, nil
}

func (r *Router) anthropicFactory(bedrock bool) ProviderFactory {
	return func(_ context.Context, cred config.Credential) (Provider, error) {
		client, err := NewClient(ClientConfig{
			Model:         anthropic.Model(r.cfg.Models.Default),
			APIKey:        cred.APIKey,
			UseAWSBedrock: bedrock,
			AWSRegion:     cred.Region,
			AWSProfile:    cred.Profile,
			Timeout:       r.cfg.Anthropic.Timeout,
			Tracker:       r.tracker,
		})
		if err != nil {
			return nil, err
		}
		return NewAnthropicProvider(client), nil
	}
}

func (r *Router) geminiFactory() ProviderFactory {
	return func(ctx context.Context, cred config.Credential) (Provider, error) {
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey:  cred.APIKey,
			Timeout: r.cfg.Anthropic.Timeout,
			Tracker: r.tracker,
		})
	}
}
