package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/verdict/internal/config"
	"github.com/ShayCichocki/verdict/internal/pipeline"
	"github.com/ShayCichocki/verdict/pkg/models"
)

// offlineConfig resolves no credentials, so every agent call fails fast.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, name := range []string{"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()
	c := config.Default()
	c.Providers = []string{config.ProviderAnthropic}
	c.Secrets.Dotenv = filepath.Join(dir, "missing.env")
	c.Skills.Dir = filepath.Join(dir, "skills")
	c.Skills.OllamaURL = ""
	c.Storage = config.StorageConfig{Backend: "sqlite", Driver: "sqlite", Path: filepath.Join(dir, "verdict.db")}
	return c
}

func idea() models.IdeaInput {
	return models.IdeaInput{
		Problem:       "Clinics lose hours to phone scheduling",
		Solution:      "SMS-first booking assistant",
		TargetMarket:  "Independent clinics",
		BusinessModel: "Per-seat SaaS",
		Email:         "founder@example.com",
	}
}

func TestWithServicesBuildsGraph(t *testing.T) {
	c := offlineConfig(t)
	c.Storage = config.StorageConfig{Backend: "memory"}

	err := withServices(context.Background(), c, nil, func(ctx context.Context, s services) error {
		assert.Same(t, c, s.Config)
		assert.NotNil(t, s.Store)
		assert.Equal(t, config.DefaultMaxIterations, s.Evaluation.MaxIterations())
		assert.Equal(t, []string{"remote"}, s.Applier.Backends())
		assert.NotEmpty(t, s.Skills.List(), "built-in skills load without a directory")

		stats, err := s.Evaluation.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Evaluations)
		return nil
	})
	require.NoError(t, err)
}

func TestWithServicesDrainsBackgroundRuns(t *testing.T) {
	c := offlineConfig(t)

	var stages []pipeline.StageEvent
	observer := func(ev pipeline.StageEvent) { stages = append(stages, ev) }

	var id string
	err := withServices(context.Background(), c, observer, func(ctx context.Context, s services) error {
		var err error
		id, err = s.Evaluation.Submit(ctx, models.AuthContext{}, idea(), pipeline.Options{})
		return err
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// A second process sees the terminal state written before shutdown.
	err = withServices(context.Background(), c, nil, func(ctx context.Context, s services) error {
		res, err := s.Evaluation.Poll(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.EvaluationFailed, res.Status)
		assert.Contains(t, res.Error, "no credential resolved")
		assert.Nil(t, res.Verdict)
		return nil
	})
	require.NoError(t, err)

	require.NotEmpty(t, stages)
	assert.Equal(t, pipeline.StatusFailed, stages[len(stages)-1].Status)
}

func TestWithServicesRejectsUnknownBackend(t *testing.T) {
	c := offlineConfig(t)
	c.Storage.Backend = "postgres"

	called := false
	err := withServices(context.Background(), c, nil, func(context.Context, services) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
	assert.False(t, called)
}
