// Package verdict reduces Synthesis free text into structured verdict fields.
//
// Parsing prefers the verdict.v1 JSON contract: the first balanced JSON
// object in the text is decoded and validated against an embedded schema.
// When no object is present, or a field is missing from it, a case-insensitive
// marker scan over the prose fills the gap. Anything still missing takes a
// documented default and is reported as a ParseWarning. Parse never fails.
package verdict

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ShayCichocki/verdict/pkg/models"
)

//go:embed schema/verdict.v1.json
var schemaFS embed.FS

// ContractVersion identifies the JSON schema Parse validates against.
const ContractVersion = "verdict.v1"

// MaxListItems caps every extracted list.
const MaxListItems = 5

var schemaLoader gojsonschema.JSONLoader

func init() {
	raw, err := schemaFS.ReadFile("schema/verdict.v1.json")
	if err != nil {
		panic(fmt.Sprintf("verdict: embedded schema missing: %v", err))
	}
	schemaLoader = gojsonschema.NewBytesLoader(raw)
}

// ErrParseDegraded is matched by every ParseWarning.
var ErrParseDegraded = errors.New("parse degraded")

// ParseWarning records a field that was defaulted, clamped, or failed
// contract validation. It is informational, never fatal.
type ParseWarning struct {
	Field   string
	Message string
}

func (w ParseWarning) Error() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// Is lets errors.Is match ErrParseDegraded.
func (w ParseWarning) Is(target error) bool {
	return target == ErrParseDegraded
}

// Mode reports which strategy supplied the structure.
type Mode string

const (
	// ModeContract means a JSON object was decoded from the text.
	ModeContract Mode = "contract"
	// ModeMarkers means no JSON object was found and markers were scanned.
	ModeMarkers Mode = "markers"
)

// Fields holds the structured verdict fields.
type Fields struct {
	Decision         models.Decision
	Confidence       int
	DimensionScores  models.DimensionScores
	ExecutiveSummary string
	KeyStrengths     []string
	KeyRisks         []string
	NextSteps        []string
	KillConditions   []string
}

// Result is the outcome of Parse: always-complete fields plus warnings.
type Result struct {
	Fields
	Warnings []ParseWarning
	Mode     Mode
}

// Degraded reports whether any field fell back or failed validation.
func (r Result) Degraded() bool {
	return len(r.Warnings) > 0
}

// WarningStrings renders warnings for storage on a Verdict.
func (r Result) WarningStrings() []string {
	if len(r.Warnings) == 0 {
		return nil
	}
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.Error()
	}
	return out
}

// Apply copies the parsed fields onto a verdict.
func (r Result) Apply(v *models.Verdict) {
	v.Decision = r.Decision
	v.Confidence = r.Confidence
	v.DimensionScores = r.DimensionScores
	v.ExecutiveSummary = r.ExecutiveSummary
	v.KeyStrengths = r.KeyStrengths
	v.KeyRisks = r.KeyRisks
	v.NextSteps = r.NextSteps
	v.KillConditions = r.KillConditions
	v.ParseWarnings = r.WarningStrings()
}

// partial tracks which fields a strategy found.
type partial struct {
	decision   *models.Decision
	confidence *float64
	dims       map[models.Dimension]float64
	summary    *string
	strengths  []string
	risks      []string
	steps      []string
	kills      []string
	hasLists   map[string]bool
}

func newPartial() *partial {
	return &partial{dims: make(map[models.Dimension]float64), hasLists: make(map[string]bool)}
}

// Parse extracts verdict fields from Synthesis text.
func Parse(text string) Result {
	res := Result{Mode: ModeMarkers}
	found := newPartial()

	if block, obj, ok := firstJSONObject(text); ok {
		res.Mode = ModeContract
		res.Warnings = append(res.Warnings, validate(block)...)
		fromContract(obj, found)
	}

	// Markers fill whatever the contract did not supply.
	fromMarkers(text, found)

	res.Fields = finalize(found, &res.Warnings)
	return res
}

func validate(block string) []ParseWarning {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(block))
	if err != nil {
		return []ParseWarning{{Field: "contract", Message: err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	warnings := make([]ParseWarning, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		warnings = append(warnings, ParseWarning{
			Field:   ContractVersion + ":" + e.Field(),
			Message: e.Description(),
		})
	}
	return warnings
}

func finalize(p *partial, warnings *[]ParseWarning) Fields {
	warn := func(field, msg string) {
		*warnings = append(*warnings, ParseWarning{Field: field, Message: msg})
	}

	var f Fields

	if p.confidence != nil {
		f.Confidence = clamp(*p.confidence, "confidence", warn)
	} else {
		f.Confidence = models.DefaultScore
		warn("confidence", fmt.Sprintf("missing, defaulted to %d", models.DefaultScore))
	}

	if p.decision != nil {
		f.Decision = *p.decision
	} else {
		f.Decision = DefaultDecision(f.Confidence)
		warn("decision", fmt.Sprintf("missing, defaulted to %s", f.Decision))
	}

	for _, d := range models.Dimensions {
		if v, ok := p.dims[d]; ok {
			f.DimensionScores.Set(d, clamp(v, string(d), warn))
			continue
		}
		f.DimensionScores.Set(d, models.DefaultScore)
		warn(string(d), fmt.Sprintf("missing, defaulted to %d", models.DefaultScore))
	}

	if p.summary != nil && strings.TrimSpace(*p.summary) != "" {
		f.ExecutiveSummary = strings.TrimSpace(*p.summary)
	} else {
		warn("executive_summary", "missing, defaulted to empty")
	}

	lists := []struct {
		name string
		src  []string
		dst  *[]string
	}{
		{"key_strengths", p.strengths, &f.KeyStrengths},
		{"key_risks", p.risks, &f.KeyRisks},
		{"next_steps", p.steps, &f.NextSteps},
		{"kill_conditions", p.kills, &f.KillConditions},
	}
	for _, l := range lists {
		*l.dst = capList(l.src)
		if !p.hasLists[l.name] {
			warn(l.name, "missing, defaulted to empty")
		}
	}

	return f
}

// DefaultDecision is used when no decision is stated: a middling-or-better
// confidence reads as conditional, anything lower as weak.
func DefaultDecision(confidence int) models.Decision {
	if confidence >= models.DefaultScore {
		return models.DecisionConditionalFit
	}
	return models.DecisionWeakSignal
}

func clamp(v float64, field string, warn func(string, string)) int {
	if math.IsNaN(v) {
		warn(field, fmt.Sprintf("not a number, defaulted to %d", models.DefaultScore))
		return models.DefaultScore
	}
	var n int
	switch {
	case v >= float64(math.MaxInt32):
		n = math.MaxInt32
	case v <= float64(math.MinInt32):
		n = math.MinInt32
	default:
		n = int(math.Round(v))
	}
	c := models.ClampScore(n)
	if c != n {
		warn(field, fmt.Sprintf("%d clamped to %d", n, c))
	}
	return c
}

func capList(items []string) []string {
	out := make([]string, 0, MaxListItems)
	for _, item := range items {
		if c := cleanItem(item); c != "" {
			out = append(out, c)
		}
		if len(out) == MaxListItems {
			break
		}
	}
	return out
}

// parseDecision normalizes free-form decision text such as "Conditional Fit".
func parseDecision(s string) (models.Decision, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.Trim(norm, "*\"'` .")
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	d := models.Decision(norm)
	return d, d.Valid()
}

// parseScore accepts numbers, numeric strings, and "N/10" strings.
func parseScore(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(x)
		if i := strings.Index(s, "/"); i >= 0 {
			s = strings.TrimSpace(s[:i])
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
