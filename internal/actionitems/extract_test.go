package actionitems

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ShayCichocki/verdict/pkg/models"
)

func scores(market, fit, exec, business, timing int) models.DimensionScores {
	return models.DimensionScores{
		MarketOpportunity:    market,
		ProblemSolutionFit:   fit,
		ExecutionFeasibility: exec,
		BusinessModel:        business,
		Timing:               timing,
	}
}

const fireText = `## Overview
The idea is plausible.

## Critical Risks
- Data privacy rules block access to client ledgers

| Risk | Severity |
|---|---|
| Sales cycles longer than runway | 🔴 High |
| Minor UI polish | 🟡 Low |
`

func TestExtract_FullInput(t *testing.T) {
	items := Extract(Input{
		FireText: fireText,
		KeyRisks: []string{
			"Incumbents may bundle the feature for free",
			"Customer acquisition cost could exceed lifetime value",
			"Regulatory approval may take years",
			"Founder lacks sales experience",
		},
		KillConditions: []string{
			"Fewer than five pilots convert to paid plans",
			"Incumbents may bundle the feature for free within a year",
		},
		Dimensions: scores(7, 6, 4, 6, 8),
	})

	require.Len(t, items, MaxItems)

	assert.Equal(t, "AI-1", items[0].ID)
	assert.Equal(t, "Fewer than five pilots convert to paid plans", items[0].Concern)
	assert.Equal(t, models.SeverityCritical, items[0].Severity)
	assert.Equal(t, models.SourceSynthesis, items[0].Source)

	assert.Equal(t, "Data privacy rules block access to client ledgers", items[1].Concern)
	assert.Equal(t, models.SeverityCritical, items[1].Severity)
	assert.Equal(t, models.SourceFire, items[1].Source)

	assert.Equal(t, "Incumbents may bundle the feature for free", items[2].Concern)
	assert.Equal(t, models.SeverityMajor, items[2].Severity)
	assert.Equal(t, models.CategoryMarket, items[2].Category)

	assert.Equal(t, models.CategoryTiming, items[4].Category)
	assert.Equal(t, "AI-5", items[4].ID)
}

func TestExtract_DimensionTemplates(t *testing.T) {
	items := Extract(Input{Dimensions: scores(2, 6, 5, 7, 8)})

	require.Len(t, items, 2)
	assert.Equal(t, models.SeverityCritical, items[0].Severity)
	assert.Equal(t, models.CategoryMarket, items[0].Category)
	assert.Equal(t, models.SourceDimension, items[0].Source)
	assert.Contains(t, items[0].Concern, "2/10")

	assert.Equal(t, models.SeverityMajor, items[1].Severity)
	assert.Equal(t, models.CategoryExecution, items[1].Category)
}

func TestExtract_SkipsRepresentedCategory(t *testing.T) {
	items := Extract(Input{
		KeyRisks:   []string{"Demand from buyers is unproven"},
		Dimensions: scores(3, 8, 8, 8, 8),
	})

	require.Len(t, items, 1)
	assert.Equal(t, models.CategoryMarket, items[0].Category)
	assert.Equal(t, models.SourceSynthesis, items[0].Source)
}

func TestExtract_Backfill(t *testing.T) {
	items := Extract(Input{
		KeyRisks: []string{
			"Churn could exceed twenty percent monthly",
			"Churn could exceed twenty percent each month",
			"Monthly churn could exceed twenty percent",
			"Pricing power is unproven",
		},
		Dimensions: scores(6, 6, 6, 6, 6),
	})

	require.Len(t, items, 2)
	assert.Equal(t, models.SeverityMajor, items[0].Severity)
	assert.Equal(t, "Pricing power is unproven", items[1].Concern)
	assert.Equal(t, models.SeverityMinor, items[1].Severity)
	assert.Equal(t, models.CategoryBusiness, items[1].Category)
}

func TestExtract_FatalFlawInline(t *testing.T) {
	items := Extract(Input{
		FireText:   "Critical risks include many things.\n**Fatal Flaw:** Nobody budgets for this problem.",
		Dimensions: scores(8, 8, 8, 8, 8),
	})

	require.Len(t, items, 1)
	assert.Equal(t, "Nobody budgets for this problem.", items[0].Concern)
	assert.Equal(t, models.SeverityCritical, items[0].Severity)
}

func TestFromVerdict_ScansOnlyFire(t *testing.T) {
	v := &models.Verdict{
		Synthesis:       models.AgentOutput{AnalysisText: fireText},
		Fire:            models.AgentOutput{AnalysisText: "## Overview\nNo blocking issues found."},
		DimensionScores: scores(8, 8, 8, 8, 8),
	}

	items := Extract(FromVerdict(v))
	for _, item := range items {
		assert.NotContains(t, item.Concern, "Data privacy", "synthesis risk tables are not scanned")
		assert.NotContains(t, item.Concern, "Sales cycles", "synthesis risk tables are not scanned")
	}

	v.Fire.AnalysisText = fireText
	items = Extract(FromVerdict(v))
	require.NotEmpty(t, items)
	assert.Equal(t, models.SourceFire, items[0].Source)
	assert.Equal(t, models.SeverityCritical, items[0].Severity)
}

func TestExtract_Empty(t *testing.T) {
	items := Extract(Input{Dimensions: scores(8, 8, 8, 8, 8)})
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestExtract_CleansMarkup(t *testing.T) {
	items := Extract(Input{KeyRisks: []string{"- **Team** has   no ML hire"}, Dimensions: scores(8, 8, 8, 8, 8)})
	require.Len(t, items, 1)
	assert.Equal(t, "Team has no ML hire", items[0].Concern)
	assert.Equal(t, models.CategoryExecution, items[0].Category)
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		text string
		want models.ActionCategory
	}{
		{"Competitors have a head start", models.CategoryMarket},
		{"The window may close before launch", models.CategoryTiming},
		{"Unit economics look thin", models.CategoryBusiness},
		{"The team cannot hire fast enough", models.CategoryExecution},
		{"The MVP lacks a differentiating feature", models.CategoryProduct},
		{"Something vague", models.CategoryMarket},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.text))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("Pricing power unproven", "pricing POWER is unproven!"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("a an the", "the an a"), 1e-9)
	assert.InDelta(t, 0.5, Similarity("alpha bravo", "alpha charlie delta echo"), 1e-9)
}

func TestScanRisks(t *testing.T) {
	critical, high := scanRisks(fireText)
	assert.Equal(t, []string{"- Data privacy rules block access to client ledgers"}, critical)
	assert.Equal(t, []string{"Sales cycles longer than runway"}, high)
}

var wordPool = []string{
	"market", "demand", "pricing", "churn", "team", "hire", "timing", "window", "product",
	"feature", "revenue", "margin", "buyers", "regulation", "launch", "scale", "cost", "a", "the",
}

func phrase() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		words := rapid.SliceOfN(rapid.SampledFrom(wordPool), 1, 7).Draw(t, "words")
		return strings.Join(words, " ")
	})
}

func inputGen() *rapid.Generator[Input] {
	return rapid.Custom(func(t *rapid.T) Input {
		score := rapid.IntRange(1, 10)
		var fire strings.Builder
		if rapid.Bool().Draw(t, "hasFire") {
			fire.WriteString("## Critical Risks\n")
			for _, p := range rapid.SliceOfN(phrase(), 0, 4).Draw(t, "fireRisks") {
				fmt.Fprintf(&fire, "- %s\n", p)
			}
			for _, p := range rapid.SliceOfN(phrase(), 0, 3).Draw(t, "fireRows") {
				fmt.Fprintf(&fire, "| %s | 🔴 High |\n", p)
			}
		}
		return Input{
			FireText:       fire.String(),
			KeyRisks:       rapid.SliceOfN(phrase(), 0, 6).Draw(t, "keyRisks"),
			KillConditions: rapid.SliceOfN(phrase(), 0, 4).Draw(t, "killConditions"),
			Dimensions: scores(
				score.Draw(t, "market"), score.Draw(t, "fit"), score.Draw(t, "exec"),
				score.Draw(t, "business"), score.Draw(t, "timing"),
			),
		}
	})
}

func TestExtract_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := inputGen().Draw(rt, "input")

		first := Extract(in)
		second := Extract(in)
		if !reflect.DeepEqual(first, second) {
			rt.Fatalf("extraction is not deterministic")
		}

		if len(first) > MaxItems {
			rt.Fatalf("got %d items, cap is %d", len(first), MaxItems)
		}
		for i, it := range first {
			if it.ID != fmt.Sprintf("AI-%d", i+1) {
				rt.Fatalf("item %d has id %q", i, it.ID)
			}
			if !it.Category.Valid() {
				rt.Fatalf("invalid category %q", it.Category)
			}
			if i > 0 && first[i-1].Severity.Rank() > it.Severity.Rank() {
				rt.Fatalf("items not sorted by severity: %v", first)
			}
			for _, other := range first[:i] {
				if s := Similarity(other.Concern, it.Concern); s > SimilarityThreshold {
					rt.Fatalf("%q and %q overlap %.2f", other.Concern, it.Concern, s)
				}
			}
		}
	})
}

func TestExtract_LowerBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(0, 6).Draw(rt, "k")
		risks := make([]string, k)
		for i := range risks {
			risks[i] = fmt.Sprintf("alpha%d bravo%d charlie%d", i, i, i)
		}
		items := Extract(Input{KeyRisks: risks, Dimensions: scores(9, 9, 9, 9, 9)})
		if want := min(MinItems, k); len(items) < want {
			rt.Fatalf("got %d items from %d distinct risks, want at least %d", len(items), k, want)
		}
	})
}
