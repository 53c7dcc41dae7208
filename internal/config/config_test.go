package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Models.Default != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.Models.Default)
	}

	if cfg.Pipeline.MaxIterations != 3 {
		t.Errorf("expected max iterations 3, got %d", cfg.Pipeline.MaxIterations)
	}

	if cfg.Skills.HealthTimeout != 2*time.Second {
		t.Errorf("expected health timeout 2s, got %v", cfg.Skills.HealthTimeout)
	}

	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected memory storage, got %q", cfg.Storage.Backend)
	}

	if len(cfg.Providers) != 2 || cfg.Providers[0] != ProviderAnthropic {
		t.Errorf("expected anthropic first in providers, got %v", cfg.Providers)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  timeout: 90s
providers: [gemini, anthropic]
models:
  default: gemini-2.5-pro
  agents:
    fire: claude-opus-4-1
    marketSizing: gemini-2.5-flash
pipeline:
  max_iterations: 5
skills:
  health_timeout: 500ms
  watch: true
storage:
  backend: sqlite
  driver: sqlite3
  path: /tmp/verdict-test.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.Timeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %v", cfg.Anthropic.Timeout)
	}
	if len(cfg.Providers) != 2 || cfg.Providers[0] != ProviderGemini {
		t.Errorf("expected gemini first, got %v", cfg.Providers)
	}
	if got := cfg.Models.ModelFor("fire"); got != "claude-opus-4-1" {
		t.Errorf("ModelFor(fire) = %q", got)
	}
	if got := cfg.Models.ModelFor("marketSizing"); got != "gemini-2.5-flash" {
		t.Errorf("ModelFor(marketSizing) = %q", got)
	}
	if got := cfg.Models.ModelFor("intake"); got != "gemini-2.5-pro" {
		t.Errorf("ModelFor(intake) = %q", got)
	}
	if cfg.Pipeline.MaxIterations != 5 {
		t.Errorf("expected max iterations 5, got %d", cfg.Pipeline.MaxIterations)
	}
	if cfg.Pipeline.MaxTokens != DefaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", cfg.Pipeline.MaxTokens)
	}
	if cfg.Skills.HealthTimeout != 500*time.Millisecond {
		t.Errorf("expected health timeout 500ms, got %v", cfg.Skills.HealthTimeout)
	}
	if !cfg.Skills.Watch {
		t.Error("expected skills.watch true")
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Driver != "sqlite3" {
		t.Errorf("unexpected storage %+v", cfg.Storage)
	}
}

func TestLoadFromPath_ExpandsEnv(t *testing.T) {
	t.Setenv("VERDICT_TEST_KEY", "sk-ant-expanded")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "anthropic:\n  api_key: ${VERDICT_TEST_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-expanded" {
		t.Errorf("expected expanded key, got %q", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPath_SchemaViolation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown backend", "storage:\n  backend: postgres\n", "backend"},
		{"zero iterations", "pipeline:\n  max_iterations: 0\n", "max_iterations"},
		{"unknown provider", "providers: [openai]\n", "providers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}
			_, err := LoadFromPath(path)
			if err == nil {
				t.Fatal("expected schema validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_ProjectOverride(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("ANTHROPIC_API_KEY", "")

	userDir := filepath.Join(xdg, "verdict")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte("pipeline:\n  max_tokens: 1024\n  max_iterations: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}

	project := t.TempDir()
	nested := filepath.Join(project, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(project, ".verdict.yaml"), []byte("pipeline:\n  max_iterations: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.MaxIterations != 2 {
		t.Errorf("project config should win: got %d", cfg.Pipeline.MaxIterations)
	}
	if cfg.Pipeline.MaxTokens != 1024 {
		t.Errorf("user config should apply: got %d", cfg.Pipeline.MaxTokens)
	}
	if GetProjectConfigPath() != filepath.Join(project, ".verdict.yaml") {
		t.Errorf("unexpected project config path %q", GetProjectConfigPath())
	}
}

func TestGetUserConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if got := GetUserConfigPath(); got != "/custom/config/verdict/config.yaml" {
		t.Errorf("expected XDG path, got %q", got)
	}
}
