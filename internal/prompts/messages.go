package prompts

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/verdict/pkg/models"
)

// Section is a titled block of prior analysis appended to a user message.
type Section struct {
	Title string
	Body  string
}

// Compose renders a base message followed by titled sections. Empty
// sections are skipped.
func Compose(base string, sections ...Section) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))
	for _, s := range sections {
		body := strings.TrimSpace(s.Body)
		if body == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n## %s\n\n%s", s.Title, body)
	}
	return b.String()
}

// IdeaMessage is the user message for Intake.
func IdeaMessage(idea string) string {
	return Compose("Evaluate this business idea.\n\n" + strings.TrimSpace(idea))
}

// AnalystMessage is the user message for Catalyst and Fire: the idea plus
// the Intake analysis.
func AnalystMessage(idea, intake string) string {
	return Compose(IdeaMessage(idea), Section{Title: "Intake Analysis", Body: intake})
}

// SynthesisMessage assembles Synthesis input. When prior is non-nil the
// message carries the previous verdict and the founder's responses to its
// action items.
func SynthesisMessage(idea, intake, catalyst, fire string, prior *models.Verdict, responses map[string]string) string {
	sections := []Section{
		{Title: "Intake Analysis", Body: intake},
		{Title: "Catalyst Analysis", Body: catalyst},
		{Title: "Fire Analysis", Body: fire},
	}
	if prior != nil {
		sections = append(sections,
			Section{Title: fmt.Sprintf("Previous Verdict (version %d)", prior.Version), Body: PriorSummary(prior)},
			Section{Title: "Founder Responses", Body: Responses(prior.ActionItems, responses)},
		)
	}
	return Compose(IdeaMessage(idea), sections...)
}

// PriorSummary renders the structured fields of a previous verdict.
func PriorSummary(v *models.Verdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Decision: %s\nConfidence: %d/10\n", v.Decision, v.Confidence)
	for _, d := range models.Dimensions {
		fmt.Fprintf(&b, "%s: %d/10\n", d.Label(), v.DimensionScores.Get(d))
	}
	if v.ExecutiveSummary != "" {
		fmt.Fprintf(&b, "\n%s\n", v.ExecutiveSummary)
	}
	writeList(&b, "Key Risks", v.KeyRisks)
	writeList(&b, "Kill Conditions", v.KillConditions)
	return b.String()
}

// Responses pairs each prior action item with the founder's rebuttal, in
// action-item order. Items without a response are listed as unanswered.
func Responses(items []models.ActionItem, responses map[string]string) string {
	if len(items) == 0 && len(responses) == 0 {
		return ""
	}
	var b strings.Builder
	for _, item := range items {
		resp := strings.TrimSpace(responses[item.ID])
		if resp == "" {
			resp = "(no response)"
		}
		fmt.Fprintf(&b, "- [%s] %s (%s, %s)\n  Response: %s\n", item.ID, item.Concern, item.Severity, item.Category, resp)
	}
	return b.String()
}

// DeepDiveMessage is the user message for one competitor deep dive.
func DeepDiveMessage(competitor, idea string) string {
	return Compose(fmt.Sprintf("Research the competitor %q.", competitor), Section{Title: "Idea", Body: idea})
}

// GroundworkMessage is the user message for a groundwork agent: the idea,
// the verdict it is building on, and any upstream research.
func GroundworkMessage(idea string, v *models.Verdict, upstream ...Section) string {
	sections := make([]Section, 0, len(upstream)+1)
	if v != nil {
		sections = append(sections, Section{Title: "Evaluation Verdict", Body: PriorSummary(v)})
	}
	sections = append(sections, upstream...)
	return Compose("Prepare launch groundwork for this business idea.\n\n"+strings.TrimSpace(idea), sections...)
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
