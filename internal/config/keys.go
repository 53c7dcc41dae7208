package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
)

// ErrNoAPIKey is returned when no credential resolves for a provider.
var ErrNoAPIKey = errors.New("no API key configured")

// Credential providers understood by the resolution chain.
const (
	CredentialAnthropic = "anthropic"
	CredentialGemini    = "gemini"
	CredentialBedrock   = "bedrock"
)

// envKeys lists the environment variables consulted per provider, in order.
var envKeys = map[string][]string{
	CredentialAnthropic: {"ANTHROPIC_API_KEY"},
	CredentialGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceDotenv KeySource = "dotenv"
	KeySourceConfig KeySource = "config_file"
	KeySourceAWS    KeySource = "aws_default_chain"
	KeySourceNone   KeySource = "none"
)

// Credential is a resolved secret for one provider.
type Credential struct {
	Provider string
	// APIKey is empty for Bedrock, which signs requests with AWS credentials.
	APIKey string
	Source KeySource
	// Region and Profile are set for Bedrock credentials.
	Region  string
	Profile string
}

// CredentialResolver is one strategy in the resolution chain.
type CredentialResolver interface {
	TryResolve(ctx context.Context, provider string) (Credential, bool)
}

// EnvResolver reads provider keys from process environment variables.
type EnvResolver struct {
	Getenv func(string) string
}

// TryResolve implements CredentialResolver.
func (r EnvResolver) TryResolve(_ context.Context, provider string) (Credential, bool) {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, name := range envKeys[provider] {
		if key := getenv(name); key != "" {
			return Credential{Provider: provider, APIKey: key, Source: KeySourceEnv}, true
		}
	}
	return Credential{}, false
}

// DotenvResolver reads provider keys from a dotenv secret file.
type DotenvResolver struct {
	Path string
}

// TryResolve implements CredentialResolver.
func (r DotenvResolver) TryResolve(_ context.Context, provider string) (Credential, bool) {
	if r.Path == "" {
		return Credential{}, false
	}
	values, err := godotenv.Read(r.Path)
	if err != nil {
		return Credential{}, false
	}
	for _, name := range envKeys[provider] {
		if key := values[name]; key != "" {
			return Credential{Provider: provider, APIKey: key, Source: KeySourceDotenv}, true
		}
	}
	return Credential{}, false
}

// ConfigResolver reads provider keys from the loaded config file.
// Unexpanded ${VAR} references count as unset.
type ConfigResolver struct {
	Config *Config
}

// TryResolve implements CredentialResolver.
func (r ConfigResolver) TryResolve(_ context.Context, provider string) (Credential, bool) {
	if r.Config == nil {
		return Credential{}, false
	}
	var raw string
	switch provider {
	case CredentialAnthropic:
		raw = r.Config.Anthropic.APIKey
	case CredentialGemini:
		raw = r.Config.Gemini.APIKey
	default:
		return Credential{}, false
	}
	key := os.ExpandEnv(raw)
	if key == "" || strings.HasPrefix(key, "${") {
		return Credential{}, false
	}
	return Credential{Provider: provider, APIKey: key, Source: KeySourceConfig}, true
}

// AWSResolver resolves Bedrock access through the AWS default credential chain.
type AWSResolver struct {
	Region  string
	Profile string
}

// TryResolve implements CredentialResolver.
func (r AWSResolver) TryResolve(ctx context.Context, provider string) (Credential, bool) {
	if provider != CredentialBedrock {
		return Credential{}, false
	}

	var opts []func(*awsconfig.LoadOptions) error
	if r.Region != "" {
		opts = append(opts, awsconfig.WithRegion(r.Region))
	}
	if r.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(r.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil || awsCfg.Credentials == nil {
		return Credential{}, false
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return Credential{}, false
	}
	return Credential{
		Provider: provider,
		Source:   KeySourceAWS,
		Region:   awsCfg.Region,
		Profile:  r.Profile,
	}, true
}

// CredentialChain tries each resolver in order and returns the first hit.
type CredentialChain struct {
	resolvers []CredentialResolver
}

// NewCredentialChain builds a chain from explicit resolvers.
func NewCredentialChain(resolvers ...CredentialResolver) *CredentialChain {
	return &CredentialChain{resolvers: resolvers}
}

// DefaultCredentialChain builds the standard order:
// environment, dotenv file, config file, AWS default chain.
func DefaultCredentialChain(cfg *Config) *CredentialChain {
	if cfg == nil {
		cfg = Default()
	}
	return NewCredentialChain(
		EnvResolver{},
		DotenvResolver{Path: cfg.Secrets.Dotenv},
		ConfigResolver{Config: cfg},
		AWSResolver{Region: cfg.Anthropic.AWSRegion, Profile: cfg.Anthropic.AWSProfile},
	)
}

// Resolve returns the first credential found for the provider, or ErrNoAPIKey.
func (c *CredentialChain) Resolve(ctx context.Context, provider string) (Credential, error) {
	for _, r := range c.resolvers {
		if cred, ok := r.TryResolve(ctx, provider); ok {
			return cred, nil
		}
	}
	return Credential{Provider: provider, Source: KeySourceNone}, ErrNoAPIKey
}

// ValidateAPIKey checks the format of a provider key without calling the
// provider. Bedrock has no key and always passes.
func ValidateAPIKey(provider, key string) error {
	if provider == CredentialBedrock {
		return nil
	}
	if key == "" {
		return ErrNoAPIKey
	}
	var prefix string
	minLen := 20
	switch provider {
	case CredentialAnthropic:
		prefix = "sk-ant-"
	case CredentialGemini:
		prefix, minLen = "AIza", 30
	default:
		return fmt.Errorf("unknown credential provider %q", provider)
	}
	if !strings.HasPrefix(key, prefix) {
		return fmt.Errorf("invalid %s key format: expected %q prefix", provider, prefix)
	}
	if len(key) < minLen {
		return fmt.Errorf("invalid %s key format: key too short", provider)
	}
	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}
