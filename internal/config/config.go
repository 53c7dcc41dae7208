// Package config handles configuration loading and management for verdict.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config holds all configuration for verdict.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Providers []string        `mapstructure:"providers"`
	Models    ModelsConfig    `mapstructure:"models"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Skills    SkillsConfig    `mapstructure:"skills"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Log       LogConfig       `mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseBedrock routes Anthropic models through AWS Bedrock.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	// Timeout bounds a single HTTP request to the provider.
	Timeout time.Duration `mapstructure:"timeout"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// ModelsConfig holds model selection settings.
type ModelsConfig struct {
	// Default is the model used when an agent has no override.
	Default string `mapstructure:"default"`
	// Agents maps agent names to model identifiers.
	Agents map[string]string `mapstructure:"agents"`
}

// ModelFor returns the configured model for an agent, falling back to the default.
func (m ModelsConfig) ModelFor(agent string) string {
	if model, ok := m.Agents[agent]; ok && model != "" {
		return model
	}
	// viper lowercases map keys read from files.
	if model, ok := m.Agents[strings.ToLower(agent)]; ok && model != "" {
		return model
	}
	return m.Default
}

// PipelineConfig holds evaluation pipeline settings.
type PipelineConfig struct {
	// MaxIterations caps the number of versions in one project.
	MaxIterations int `mapstructure:"max_iterations"`
	// MaxTokens is the completion token ceiling per agent call.
	MaxTokens int `mapstructure:"max_tokens"`
}

// SkillsConfig holds skill subsystem settings.
type SkillsConfig struct {
	Dir           string        `mapstructure:"dir"`
	OllamaURL     string        `mapstructure:"ollama_url"`
	OllamaModel   string        `mapstructure:"ollama_model"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
	Watch         bool          `mapstructure:"watch"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `mapstructure:"backend"`
	// Driver is the database/sql driver name: "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// SecretsConfig holds secret file locations.
type SecretsConfig struct {
	// Dotenv is the path of a dotenv file consulted for API keys.
	Dotenv string `mapstructure:"dotenv"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, GEMINI_API_KEY, VERDICT_*)
// 2. Project config (.verdict.yaml in current directory or parent)
// 3. User config (~/.config/verdict/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return decode(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return decode(v)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("verdict")
	v.AutomaticEnv()

	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("anthropic.use_bedrock", "VERDICT_USE_BEDROCK")
	_ = v.BindEnv("anthropic.aws_region", "AWS_REGION")
	_ = v.BindEnv("anthropic.aws_profile", "AWS_PROFILE")
	_ = v.BindEnv("storage.backend", "VERDICT_STORAGE")
	_ = v.BindEnv("storage.path", "VERDICT_DB")
	_ = v.BindEnv("log.debug", "VERDICT_DEBUG")
}

func decode(v *viper.Viper) (*Config, error) {
	if err := ValidateSettings(v.AllSettings()); err != nil {
		return nil, err
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Gemini.APIKey = expandEnv(cfg.Gemini.APIKey)
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Skills.Dir = expandHome(cfg.Skills.Dir)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("anthropic.timeout", "5m")

	v.SetDefault("gemini.api_key", "")

	v.SetDefault("providers", []string{ProviderAnthropic, ProviderGemini})

	v.SetDefault("models.default", DefaultModel)
	v.SetDefault("models.agents", map[string]string{})

	v.SetDefault("pipeline.max_iterations", DefaultMaxIterations)
	v.SetDefault("pipeline.max_tokens", DefaultMaxTokens)

	v.SetDefault("skills.dir", filepath.Join(getUserConfigDir(), "skills"))
	v.SetDefault("skills.ollama_url", "http://localhost:11434")
	v.SetDefault("skills.ollama_model", "llama3.2")
	v.SetDefault("skills.health_timeout", "2s")
	v.SetDefault("skills.watch", false)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(getUserConfigDir(), "verdict.db"))

	v.SetDefault("secrets.dotenv", ".env")

	v.SetDefault("log.debug", false)
}

// Provider names accepted in the providers list.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Built-in defaults shared with Default().
const (
	DefaultModel         = "claude-sonnet-4-5"
	DefaultMaxIterations = 3
	DefaultMaxTokens     = 4096
)

// getUserConfigDir returns the XDG config directory for verdict.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "verdict")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "verdict")
	}
	return filepath.Join(home, ".config", "verdict")
}

// findProjectConfig searches for .verdict.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".verdict.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// Default returns a Config with default values.
func Default() *Config {
	dir := getUserConfigDir()
	return &Config{
		Anthropic: AnthropicConfig{
			Timeout: 5 * time.Minute,
		},
		Providers: []string{ProviderAnthropic, ProviderGemini},
		Models: ModelsConfig{
			Default: DefaultModel,
			Agents:  map[string]string{},
		},
		Pipeline: PipelineConfig{
			MaxIterations: DefaultMaxIterations,
			MaxTokens:     DefaultMaxTokens,
		},
		Skills: SkillsConfig{
			Dir:           filepath.Join(dir, "skills"),
			OllamaURL:     "http://localhost:11434",
			OllamaModel:   "llama3.2",
			HealthTimeout: 2 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Driver:  "sqlite",
			Path:    filepath.Join(dir, "verdict.db"),
		},
		Secrets: SecretsConfig{
			Dotenv: ".env",
		},
	}
}
