package groundwork

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ShayCichocki/verdict/internal/prompts"
	"github.com/ShayCichocki/verdict/pkg/models"
)

// MaxCompetitors caps the deep-dive batch.
const MaxCompetitors = 5

// ErrCompetitorResearchFailed marks a deep dive that was replaced by a
// placeholder. It never fails the run.
var ErrCompetitorResearchFailed = errors.New("competitor research failed")

var (
	competitorsLineRe = regexp.MustCompile(`(?im)^[\s*_#>-]*competitors[*_]*\s*:[*_]*\s*(.+)$`)
	boldBulletRe      = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+\*\*([^*]+)\*\*`)
)

// ParseCompetitors extracts up to MaxCompetitors names from discovery text.
// A "Competitors: a, b, c" line wins; otherwise bolded bullet leads are used.
func ParseCompetitors(text string) []string {
	var raw []string
	if m := competitorsLineRe.FindStringSubmatch(text); m != nil {
		raw = strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == ';' })
	} else {
		for _, m := range boldBulletRe.FindAllStringSubmatch(text, -1) {
			raw = append(raw, m[1])
		}
	}

	seen := make(map[string]bool)
	out := make([]string, 0, MaxCompetitors)
	for _, name := range raw {
		name = strings.TrimSpace(strings.Trim(strings.TrimSpace(name), "*_`.:"))
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
		if len(out) == MaxCompetitors {
			break
		}
	}
	return out
}

// dive is the outcome of one competitor deep dive.
type dive struct {
	name   string
	output models.AgentOutput
	err    error
}

// placeholder is recorded in place of a failed deep dive.
func placeholder(name string, err error) string {
	return fmt.Sprintf("Research on %s is unavailable (%v: %v).", name, ErrCompetitorResearchFailed, err)
}

// deepDives researches every competitor in parallel. Each failure is
// isolated to its own entry.
func (r *run) deepDives(ctx context.Context, names []string) []dive {
	results := make([]dive, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			out, err := r.invoke(ctx, models.AgentCompetitorDeepDive, prompts.DeepDiveMessage(name, r.ideaText))
			results[i] = dive{name: name, output: out, err: err}
		}(i, name)
	}
	wg.Wait()
	return results
}

// competitorReport joins the discovery text with every deep dive.
func competitorReport(discovery string, dives []dive) string {
	if len(dives) == 0 {
		return discovery
	}
	sections := make([]prompts.Section, 0, len(dives))
	for _, d := range dives {
		body := d.output.AnalysisText
		if d.err != nil {
			body = placeholder(d.name, d.err)
		}
		sections = append(sections, prompts.Section{Title: "Deep Dive: " + d.name, Body: body})
	}
	return prompts.Compose(discovery, sections...)
}
