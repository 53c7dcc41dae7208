package actionitems

import (
	"regexp"
	"strings"
)

var (
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•+▪◦]|\d+[.)]|\(\d+\))\s+`)
	riskHeader   = regexp.MustCompile(`(?i)^\s*(#{1,6}\s*)?([*_]*)\s*(?:critical risks?|fatal flaws?)\b[*_]*\s*(:?)[*_]*\s*(.*)$`)
	anyHeader    = regexp.MustCompile(`^\s*(?:#{1,6}\s+\S|\*\*[^*]+\*\*\s*:?\s*$)`)
	tableSep     = regexp.MustCompile(`^\s*\|?\s*:?-{3,}`)
)

const redMarker = "🔴"

// scanRisks finds concerns in agent prose: bullets under "Critical Risks" or
// "Fatal Flaw" headers are critical; table rows flagged "🔴 High" are high.
func scanRisks(text string) (critical, high []string) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			if c := redRow(line); c != "" {
				high = append(high, c)
			}
			continue
		}
		inline, ok := riskSection(line)
		if !ok {
			continue
		}
		var body []string
		if inline != "" {
			body = append(body, inline)
		}
		j := i + 1
		for ; j < len(lines); j++ {
			next := lines[j]
			if anyHeader.MatchString(next) {
				break
			}
			if _, ok := riskSection(next); ok {
				break
			}
			if strings.HasPrefix(strings.TrimSpace(next), "|") {
				break
			}
			body = append(body, next)
		}
		critical = append(critical, sectionItems(body)...)
		i = j - 1
	}
	return critical, high
}

// riskSection reports whether line introduces a risk section and returns any
// inline text. A bare sentence starting "Critical risks include" is not a
// header; it needs a markdown heading, bold markup, a colon, or nothing after.
func riskSection(line string) (string, bool) {
	if bulletPrefix.MatchString(line) {
		return "", false
	}
	m := riskHeader.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	inline := strings.TrimSpace(m[4])
	if m[1] == "" && m[2] == "" && m[3] == "" && inline != "" {
		return "", false
	}
	return inline, true
}

// sectionItems prefers bullet lines; otherwise the first paragraph line.
func sectionItems(body []string) []string {
	var bullets []string
	var first string
	for _, line := range body {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if bulletPrefix.MatchString(line) {
			bullets = append(bullets, line)
		} else if first == "" {
			first = line
		}
	}
	if len(bullets) > 0 {
		return bullets
	}
	if first != "" {
		return []string{first}
	}
	return nil
}

// redRow returns the first descriptive cell of a table row flagged red and
// high, or "".
func redRow(line string) string {
	if tableSep.MatchString(line) {
		return ""
	}
	lower := strings.ToLower(line)
	if !strings.Contains(line, redMarker) || !strings.Contains(lower, "high") {
		return ""
	}
	for _, cell := range strings.Split(strings.Trim(strings.TrimSpace(line), "|"), "|") {
		c := strings.TrimSpace(cell)
		if c == "" || strings.Contains(c, redMarker) {
			continue
		}
		if strings.EqualFold(strings.Trim(c, "*_ "), "high") {
			continue
		}
		return c
	}
	return ""
}
