package verdict

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ShayCichocki/verdict/pkg/models"
)

// firstJSONObject returns the first balanced {...} block in text that decodes
// as a JSON object. Braces inside string literals are ignored.
func firstJSONObject(text string) (string, map[string]any, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		end := matchBrace(text, start)
		if end > start {
			block := text[start : end+1]
			dec := json.NewDecoder(bytes.NewReader([]byte(block)))
			dec.UseNumber()
			var obj map[string]any
			if err := dec.Decode(&obj); err == nil {
				return block, obj, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", nil, false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// contractKeys maps accepted JSON keys (snake_case and camelCase) to fields.
var contractKeys = map[string][]string{
	"decision":          {"decision", "verdict"},
	"confidence":        {"confidence", "confidence_score", "confidenceScore"},
	"dimension_scores":  {"dimension_scores", "dimensionScores", "dimensions", "scores"},
	"executive_summary": {"executive_summary", "executiveSummary", "summary"},
	"key_strengths":     {"key_strengths", "keyStrengths", "strengths"},
	"key_risks":         {"key_risks", "keyRisks", "risks"},
	"next_steps":        {"next_steps", "nextSteps"},
	"kill_conditions":   {"kill_conditions", "killConditions"},
}

var dimensionKeys = map[models.Dimension][]string{
	models.DimensionMarketOpportunity:    {"market_opportunity", "marketOpportunity"},
	models.DimensionProblemSolutionFit:   {"problem_solution_fit", "problemSolutionFit"},
	models.DimensionExecutionFeasibility: {"execution_feasibility", "executionFeasibility"},
	models.DimensionBusinessModel:        {"business_model", "businessModel"},
	models.DimensionTiming:               {"timing"},
}

func lookup(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// fromContract records every field present in a decoded JSON object.
func fromContract(obj map[string]any, p *partial) {
	if v, ok := lookup(obj, contractKeys["decision"]); ok {
		if s, ok := v.(string); ok {
			if d, ok := parseDecision(s); ok {
				p.decision = &d
			}
		}
	}

	if v, ok := lookup(obj, contractKeys["confidence"]); ok {
		if f, ok := parseScore(v); ok {
			p.confidence = &f
		}
	}

	if v, ok := lookup(obj, contractKeys["dimension_scores"]); ok {
		if dims, ok := v.(map[string]any); ok {
			for d, keys := range dimensionKeys {
				if raw, ok := lookup(dims, keys); ok {
					if f, ok := parseScore(raw); ok {
						p.dims[d] = f
					}
				}
			}
		}
	}

	if v, ok := lookup(obj, contractKeys["executive_summary"]); ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			p.summary = &s
		}
	}

	lists := []struct {
		name string
		dst  *[]string
	}{
		{"key_strengths", &p.strengths},
		{"key_risks", &p.risks},
		{"next_steps", &p.steps},
		{"kill_conditions", &p.kills},
	}
	for _, l := range lists {
		v, ok := lookup(obj, contractKeys[l.name])
		if !ok {
			continue
		}
		switch x := v.(type) {
		case []any:
			for _, item := range x {
				if s, ok := item.(string); ok {
					*l.dst = append(*l.dst, s)
				}
			}
			p.hasLists[l.name] = true
		case string:
			*l.dst = splitItems(x)
			p.hasLists[l.name] = true
		}
	}
}
