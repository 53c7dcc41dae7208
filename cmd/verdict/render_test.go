package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ShayCichocki/verdict/internal/pipeline"
	"github.com/ShayCichocki/verdict/pkg/models"
)

func sampleVerdict() *models.Verdict {
	return &models.Verdict{
		Version:          2,
		Decision:         models.DecisionConditionalFit,
		Confidence:       6,
		DimensionScores:  models.DefaultDimensionScores(),
		ExecutiveSummary: "Real pain, unproven willingness to pay.",
		KeyStrengths:     []string{"Clear buyer"},
		KeyRisks:         []string{"Incumbent EHR vendors"},
		ActionItems: []models.ActionItem{
			{ID: "AI-1", Concern: "Price | packaging unclear", Severity: models.SeverityCritical, Category: models.CategoryBusiness},
		},
		ParseWarnings: []string{"timing score missing, defaulted to 5"},
	}
}

func TestScoreBar(t *testing.T) {
	tests := []struct {
		score int
		full  int
		label string
	}{
		{score: 7, full: 7, label: "7/10"},
		{score: 0, full: 0, label: "0/10"},
		{score: 14, full: 10, label: "10/10"},
		{score: -2, full: 0, label: "0/10"},
	}
	for _, tt := range tests {
		bar := scoreBar(tt.score)
		assert.Equal(t, tt.full, strings.Count(bar, "█"), "score %d", tt.score)
		assert.Equal(t, 10-tt.full, strings.Count(bar, "░"), "score %d", tt.score)
		assert.True(t, strings.HasSuffix(bar, tt.label), bar)
	}
}

func TestVerdictCard(t *testing.T) {
	card := verdictCard(sampleVerdict())
	assert.Contains(t, card, "Verdict v2")
	assert.Contains(t, card, "CONDITIONAL_FIT")
	for _, d := range models.Dimensions {
		assert.Contains(t, card, d.Label())
	}
}

func TestVerdictMarkdown(t *testing.T) {
	md := verdictMarkdown(sampleVerdict())
	assert.Contains(t, md, "## Executive Summary\n\nReal pain, unproven willingness to pay.")
	assert.Contains(t, md, "## Key Strengths\n\n- Clear buyer\n")
	assert.Contains(t, md, "| AI-1 | critical | business | Price \\| packaging unclear |")
	assert.Contains(t, md, "## Parse Warnings")
	assert.NotContains(t, md, "## Kill Conditions", "empty sections are omitted")
}

func TestStageObserver(t *testing.T) {
	var buf bytes.Buffer
	observe := stageObserver(&buf)
	observe(pipeline.StageEvent{Stage: pipeline.StageAnalysis, Status: pipeline.StatusRunning, Agents: []string{"catalyst", "fire"}})
	observe(pipeline.StageEvent{Stage: pipeline.StageTranscribe, Status: pipeline.StatusSkipped})
	observe(pipeline.StageEvent{Stage: pipeline.StageSynthesis, Status: pipeline.StatusComplete, Notes: []string{"skill tone: ollama unavailable"}})

	out := buf.String()
	assert.Contains(t, out, "(catalyst, fire)")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "ollama unavailable")
}

func TestGroundworkMarkdown(t *testing.T) {
	g := &models.GroundworkResult{}
	g.SetOutput(models.AgentMVPScope, models.AgentOutput{AnalysisText: "  Build scheduling only.\n"})
	g.SetOutput(models.AgentMarketSizing, models.AgentOutput{AnalysisText: "SAM is $2B."})

	md := groundworkMarkdown(g)
	sizing := strings.Index(md, "SAM is $2B.")
	mvp := strings.Index(md, "Build scheduling only.")
	assert.True(t, sizing >= 0 && mvp > sizing, "sections follow agent order:\n%s", md)
	assert.NotContains(t, md, "Gap", "agents without output are skipped")
}
