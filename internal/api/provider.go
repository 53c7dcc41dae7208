package api

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"
)

// Provider names reported in AgentOutput and errors.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
)

// Call is one provider request.
type Call struct {
	Model        string
	SystemPrompt string
	UserMessage  string
	MaxTokens    int
	Tools        ToolBudget
}

// Completion is the text and usage returned by one provider call.
type Completion struct {
	Text      string
	TokensIn  int64
	TokensOut int64
	Searches  int
	Model     string
}

// Provider performs exactly one model call.
type Provider interface {
	Name() string
	Complete(ctx context.Context, call Call) (Completion, error)
}

// family reports which provider family serves a model identifier.
func family(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"), strings.Contains(m, "anthropic."):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gemini"), strings.HasPrefix(m, "models/gemini"):
		return ProviderGemini
	default:
		return ""
	}
}

// AnthropicProvider calls the Messages API directly or through Bedrock.
type AnthropicProvider struct {
	client *Client
}

// NewAnthropicProvider wraps a Client.
func NewAnthropicProvider(client *Client) *AnthropicProvider {
	return &AnthropicProvider{client: client}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string {
	if p.client.Bedrock() {
		return ProviderBedrock
	}
	return ProviderAnthropic
}

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, call Call) (Completion, error) {
	model := p.client.Model()
	if call.Model != "" {
		model = p.client.TranslateModel(anthropic.Model(call.Model))
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: int64(call.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(call.UserMessage)),
		},
	}
	if call.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: call.SystemPrompt}}
	}
	if call.Tools.Search > 0 {
		params.Tools = []anthropic.ToolUnionParam{{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
				MaxUses: anthropic.Int(int64(call.Tools.Search)),
			},
		}}
	}

	resp, err := p.client.sdk().Messages.New(ctx, params)
	if err != nil {
		return Completion{}, classifyAnthropic(p.Name(), err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		}
	}

	searches := resp.Usage.ServerToolUse.WebSearchRequests
	p.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	p.client.Tracker().AddSearches(searches)

	return Completion{
		Text:      text.String(),
		TokensIn:  resp.Usage.InputTokens,
		TokensOut: resp.Usage.OutputTokens,
		Searches:  int(searches),
		Model:     string(model),
	}, nil
}

// GeminiProvider calls the Gemini API. Search tools are not forwarded.
type GeminiProvider struct {
	client  *genai.Client
	tracker *TokenTracker
}

// GeminiConfig configures a GeminiProvider.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Tracker *TokenTracker
}

// NewGeminiProvider creates a Gemini API client.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, &CredentialMissingError{Provider: ProviderGemini}
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		cc.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &TransportError{Provider: ProviderGemini, Err: err}
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = NewTokenTracker()
	}
	return &GeminiProvider{client: client, tracker: tracker}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string {
	return ProviderGemini
}

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, call Call) (Completion, error) {
	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(call.MaxTokens),
	}
	if call.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(call.SystemPrompt, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, call.Model, genai.Text(call.UserMessage), genCfg)
	if err != nil {
		return Completion{}, classifyGemini(err)
	}

	var in, out int64
	if resp.UsageMetadata != nil {
		in = int64(resp.UsageMetadata.PromptTokenCount)
		out = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	p.tracker.Add(in, out)

	return Completion{
		Text:      resp.Text(),
		TokensIn:  in,
		TokensOut: out,
		Model:     call.Model,
	}, nil
}
