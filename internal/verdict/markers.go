package verdict

import (
	"regexp"
	"strings"

	"github.com/ShayCichocki/verdict/pkg/models"
)

const decisionAlt = `STRONG[_ -]SIGNAL|CONDITIONAL[_ -]FIT|WEAK[_ -]SIGNAL|NO[_ -]MARKET[_ -]FIT`

var (
	labeledDecisionRe = regexp.MustCompile(`(?i)\b(?:decision|verdict|recommendation|overall)\b[^\n:]{0,20}[:\-–]\s*[*_"'` + "`" + `]*\s*(` + decisionAlt + `)\b`)
	// Unlabeled decisions only count in their upper-case form, so prose such
	// as "a strong signal of pain" never decides.
	bareDecisionRe = regexp.MustCompile(`\b(` + decisionAlt + `)\b`)
	confidenceRe   = regexp.MustCompile(`(?i)\bconfidence(?:\s+(?:score|level))?\**\s*[:\-–]?\s*\**\s*(-?\d+(?:\.\d+)?)\s*(?:/\s*10|out of 10)?`)

	bulletRe  = regexp.MustCompile(`^\s*(?:[-*•+▪◦]|\d+[.)]|[a-zA-Z][.)]|\(\d+\))\s+`)
	headingRe = regexp.MustCompile(`^\s*(?:#{1,6}\s+\S|\*\*[^*]+\*\*\s*:?\s*$|[A-Z][A-Za-z /&-]{2,40}:\s*$)`)
	boldRe    = regexp.MustCompile(`\*\*([^*]*)\*\*|__([^_]*)__`)
	metaRe    = regexp.MustCompile(`(?i)^\s*[*_]*\s*(?:decision|verdict|confidence|overall score)\b[^\n]{0,30}[:\-–]`)
)

var dimensionLabels = map[models.Dimension]string{
	models.DimensionMarketOpportunity:    `market[ _-]?opportunity`,
	models.DimensionProblemSolutionFit:   `problem[ _/-]?solution[ _-]?fit`,
	models.DimensionExecutionFeasibility: `execution(?:[ _-]?feasibility)?`,
	models.DimensionBusinessModel:        `business[ _-]?model`,
	models.DimensionTiming:               `timing`,
}

var dimensionRes = func() map[models.Dimension]*regexp.Regexp {
	out := make(map[models.Dimension]*regexp.Regexp, len(dimensionLabels))
	for d, label := range dimensionLabels {
		out[d] = regexp.MustCompile(`(?i)\b` + label + `\b[^\n\d]{0,24}?(-?\d+(?:\.\d+)?)\s*/\s*10`)
	}
	return out
}()

// sectionNames maps list/summary fields to the headers that introduce them.
var sectionNames = map[string][]string{
	"executive_summary": {"executive summary", "summary"},
	"key_strengths":     {"key strengths", "strengths"},
	"key_risks":         {"key risks", "risks"},
	"next_steps":        {"next steps", "recommended next steps"},
	"kill_conditions":   {"kill conditions", "kill criteria"},
}

// fromMarkers scans prose for any field the contract did not supply.
// First match wins for every field.
func fromMarkers(text string, p *partial) {
	if p.decision == nil {
		var m []string
		if m = labeledDecisionRe.FindStringSubmatch(text); m == nil {
			m = bareDecisionRe.FindStringSubmatch(text)
		}
		if m != nil {
			if d, ok := parseDecision(m[1]); ok {
				p.decision = &d
			}
		}
	}

	if p.confidence == nil {
		if m := confidenceRe.FindStringSubmatch(text); m != nil {
			if f, ok := parseScore(m[1]); ok {
				p.confidence = &f
			}
		}
	}

	for d, re := range dimensionRes {
		if _, ok := p.dims[d]; ok {
			continue
		}
		if m := re.FindStringSubmatch(text); m != nil {
			if f, ok := parseScore(m[1]); ok {
				p.dims[d] = f
			}
		}
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	if p.summary == nil {
		if body, ok := section(lines, sectionNames["executive_summary"]); ok {
			s := joinParagraph(body)
			if s != "" {
				p.summary = &s
			}
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
		if p.hasLists[l.name] {
			continue
		}
		if body, ok := section(lines, sectionNames[l.name]); ok {
			*l.dst = listItems(body)
			p.hasLists[l.name] = true
		}
	}
}

// section finds the first header line naming one of names and returns the
// lines up to the next header. Text after a "Header:" on the same line is
// included as the first body line.
func section(lines []string, names []string) ([]string, bool) {
	for i, line := range lines {
		rest, ok := matchHeader(line, names)
		if !ok {
			continue
		}
		var body []string
		if strings.TrimSpace(rest) != "" {
			body = append(body, rest)
		}
		for _, next := range lines[i+1:] {
			if isHeader(next) {
				break
			}
			body = append(body, next)
		}
		return body, true
	}
	return nil, false
}

// matchHeader reports whether line is a header for one of names, returning
// any inline content that follows it.
func matchHeader(line string, names []string) (string, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "#")
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "*_")
	for _, name := range names {
		if len(s) < len(name) || !strings.EqualFold(s[:len(name)], name) {
			continue
		}
		rest := s[len(name):]
		rest = strings.TrimLeft(rest, "*_ ")
		switch {
		case rest == "":
			return "", true
		case strings.HasPrefix(rest, ":"), strings.HasPrefix(rest, "-"), strings.HasPrefix(rest, "–"):
			rest = strings.TrimLeft(rest, ":-– ")
			rest = strings.TrimLeft(rest, "*_ ")
			return rest, true
		}
	}
	return "", false
}

func isHeader(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	if bulletRe.MatchString(line) {
		return false
	}
	if headingRe.MatchString(line) || metaRe.MatchString(line) {
		return true
	}
	for _, names := range sectionNames {
		if _, ok := matchHeader(line, names); ok {
			return true
		}
	}
	return false
}

// listItems extracts bullet or enumerated lines; plain non-empty lines are
// used when the section has no bullets.
func listItems(body []string) []string {
	var bullets, plain []string
	for _, line := range body {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if bulletRe.MatchString(line) {
			bullets = append(bullets, line)
		} else {
			plain = append(plain, line)
		}
	}
	if len(bullets) > 0 {
		return bullets
	}
	return plain
}

// splitItems breaks a single string into items on newlines or semicolons.
func splitItems(s string) []string {
	if strings.Contains(s, "\n") {
		return listItems(strings.Split(s, "\n"))
	}
	return strings.Split(s, ";")
}

func joinParagraph(body []string) string {
	parts := make([]string, 0, len(body))
	for _, line := range body {
		line = strings.TrimSpace(stripBold(line))
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

// cleanItem strips enumeration, bullet markers, and bold wrappers.
func cleanItem(s string) string {
	s = bulletRe.ReplaceAllString(s, "")
	s = stripBold(s)
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_")
	return strings.TrimSpace(s)
}

func stripBold(s string) string {
	return boldRe.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Trim(m, "*_")
	})
}
