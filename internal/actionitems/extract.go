// Package actionitems derives refinement tasks from a verdict.
//
// Extraction is pure: identical inputs yield an identical ordered list. No
// two returned items overlap by more than SimilarityThreshold, the list is
// sorted critical-first, and its length is between min(3, available) and
// MaxItems.
package actionitems

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ShayCichocki/verdict/pkg/models"
)

const (
	// MaxItems caps the extracted list.
	MaxItems = 5
	// MinItems is the backfill target.
	MinItems = 3
	// SimilarityThreshold is the maximum word overlap allowed between items.
	SimilarityThreshold = 0.4

	maxKeyRisks       = 3
	maxKillConditions = 2
	weakScore         = 5
	criticalScore     = 3
	maxConcernLen     = 240
)

// Input is everything the extractor reads.
type Input struct {
	FireText       string
	Dimensions     models.DimensionScores
	KeyRisks       []string
	KillConditions []string
}

// FromVerdict builds an Input from a parsed verdict.
func FromVerdict(v *models.Verdict) Input {
	return Input{
		FireText:       v.Fire.AnalysisText,
		Dimensions:     v.DimensionScores,
		KeyRisks:       v.KeyRisks,
		KillConditions: v.KillConditions,
	}
}

type builder struct {
	items []models.ActionItem
	words [][]string
}

// add appends an item unless it is empty or overlaps an existing one.
func (b *builder) add(concern string, cat models.ActionCategory, sev models.Severity, src models.ActionSource) bool {
	concern = cleanConcern(concern)
	if concern == "" {
		return false
	}
	for _, it := range b.items {
		if strings.EqualFold(it.Concern, concern) {
			return false
		}
	}
	w := significantWords(concern)
	for _, existing := range b.words {
		if similarity(w, existing) > SimilarityThreshold {
			return false
		}
	}
	b.items = append(b.items, models.ActionItem{Concern: concern, Category: cat, Severity: sev, Source: src})
	b.words = append(b.words, w)
	return true
}

func (b *builder) hasCategory(cat models.ActionCategory) bool {
	for _, it := range b.items {
		if it.Category == cat {
			return true
		}
	}
	return false
}

// Extract derives the ordered action-item list.
func Extract(in Input) []models.ActionItem {
	b := &builder{}
	usedRisks := make(map[int]bool)

	// 1. The first key risks become major items.
	for i, risk := range in.KeyRisks {
		if i == maxKeyRisks {
			break
		}
		if b.add(risk, Categorize(risk), models.SeverityMajor, models.SourceSynthesis) {
			usedRisks[i] = true
		}
	}

	// 2. Kill conditions become critical items.
	added := 0
	for _, kc := range in.KillConditions {
		if added == maxKillConditions {
			break
		}
		if b.add(kc, Categorize(kc), models.SeverityCritical, models.SourceSynthesis) {
			added++
		}
	}

	// 3. Weak dimensions get a templated concern, one per category.
	for _, d := range models.Dimensions {
		score := in.Dimensions.Get(d)
		if score > weakScore || b.hasCategory(d.Category()) {
			continue
		}
		sev := models.SeverityMajor
		if score <= criticalScore {
			sev = models.SeverityCritical
		}
		b.add(dimensionConcern(d, score), d.Category(), sev, models.SourceDimension)
	}

	// 4. Fire's critical risks, fatal flaw, and red high-severity rows.
	critical, high := scanRisks(in.FireText)
	for _, c := range critical {
		b.add(c, Categorize(c), models.SeverityCritical, models.SourceFire)
	}
	for _, h := range high {
		b.add(h, Categorize(h), models.SeverityMajor, models.SourceFire)
	}

	// 5. Severity order, cap, then backfill.
	sort.SliceStable(b.items, func(i, j int) bool {
		return b.items[i].Severity.Rank() < b.items[j].Severity.Rank()
	})
	if len(b.items) > MaxItems {
		b.items = b.items[:MaxItems]
	}
	for i, risk := range in.KeyRisks {
		if len(b.items) >= MinItems {
			break
		}
		if usedRisks[i] {
			continue
		}
		if b.add(risk, Categorize(risk), models.SeverityMinor, models.SourceSynthesis) {
			usedRisks[i] = true
		}
	}

	for i := range b.items {
		b.items[i].ID = fmt.Sprintf("AI-%d", i+1)
	}
	if b.items == nil {
		return []models.ActionItem{}
	}
	return b.items
}

var dimensionTemplates = map[models.Dimension]string{
	models.DimensionMarketOpportunity:    "Market opportunity scored %d/10: quantify demand with paying-customer evidence",
	models.DimensionProblemSolutionFit:   "Problem-solution fit scored %d/10: show the solution removes the stated pain",
	models.DimensionExecutionFeasibility: "Execution feasibility scored %d/10: name who builds it and how fast",
	models.DimensionBusinessModel:        "Business model scored %d/10: prove unit economics with real pricing data",
	models.DimensionTiming:               "Timing scored %d/10: explain why now rather than five years ago",
}

func dimensionConcern(d models.Dimension, score int) string {
	return fmt.Sprintf(dimensionTemplates[d], score)
}

// categoryKeywords is checked in order; the first category with a keyword
// contained in the concern wins.
var categoryKeywords = []struct {
	category models.ActionCategory
	keywords []string
}{
	{models.CategoryMarket, []string{"market", "demand", "customer", "competitor", "competition", "incumbent", "adoption", "segment", "buyer"}},
	{models.CategoryTiming, []string{"timing", "too early", "too late", "window", "trend", "regulat", "why now"}},
	{models.CategoryBusiness, []string{"revenue", "pricing", "price", "margin", "cac", "ltv", "monetiz", "unit economics", "business model", "churn", "profit"}},
	{models.CategoryExecution, []string{"team", "hire", "hiring", "execution", "technical", "scale", "founder", "operations", "distribution", "build"}},
	{models.CategoryProduct, []string{"product", "feature", "solution", "ux", "mvp", "differentiat", "value proposition"}},
}

// Categorize infers an action category from concern text, defaulting to market.
func Categorize(text string) models.ActionCategory {
	lower := strings.ToLower(text)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if containsKeyword(lower, kw) {
				return entry.category
			}
		}
	}
	return models.CategoryMarket
}

// containsKeyword matches kw only at the start of a word.
func containsKeyword(text, kw string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], kw)
		if j < 0 {
			return false
		}
		pos := i + j
		if pos == 0 {
			return true
		}
		if prev, _ := utf8.DecodeLastRuneInString(text[:pos]); !isWordRune(prev) {
			return true
		}
		i = pos + 1
		if i >= len(text) {
			return false
		}
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// significantWords returns the distinct lowercase words longer than three
// characters, sorted.
func significantWords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !isWordRune(r) })
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) <= 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// similarity is |A∩B| / min(|A|,|B|) over sorted distinct word lists.
func similarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return float64(inter) / float64(min(len(a), len(b)))
}

// Similarity exposes the overlap measure used for deduplication.
func Similarity(a, b string) float64 {
	return similarity(significantWords(a), significantWords(b))
}

func cleanConcern(s string) string {
	s = strings.TrimSpace(s)
	s = bulletPrefix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.TrimSpace(strings.Trim(s, "*_`"))
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxConcernLen {
		s = strings.TrimSpace(string(r[:maxConcernLen-3])) + "..."
	}
	return s
}
