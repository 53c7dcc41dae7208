package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/verdict/internal/groundwork"
	"github.com/ShayCichocki/verdict/internal/pipeline"
	"github.com/ShayCichocki/verdict/internal/prompts"
	"github.com/ShayCichocki/verdict/pkg/models"
)

const renderWidth = 88

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().
			Bold(true)
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(24)
	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))
)

var decisionColors = map[models.Decision]lipgloss.Color{
	models.DecisionStrongSignal:   lipgloss.Color("42"),
	models.DecisionConditionalFit: lipgloss.Color("220"),
	models.DecisionWeakSignal:     lipgloss.Color("208"),
	models.DecisionNoMarketFit:    lipgloss.Color("196"),
}

func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// verdictCard renders the decision, confidence, and dimension scores.
func verdictCard(v *models.Verdict) string {
	decision := lipgloss.NewStyle().Bold(true).Foreground(decisionColors[v.Decision]).Render(string(v.Decision))

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", titleStyle.Render(fmt.Sprintf("Verdict v%d", v.Version)), decision)
	fmt.Fprintf(&b, "%s%s\n\n", labelStyle.Render("Confidence"), scoreBar(v.Confidence))
	for i, d := range models.Dimensions {
		fmt.Fprintf(&b, "%s%s", labelStyle.Render(d.Label()), scoreBar(v.DimensionScores.Get(d)))
		if i < len(models.Dimensions)-1 {
			b.WriteString("\n")
		}
	}
	return cardStyle.Render(b.String())
}

func scoreBar(score int) string {
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return barStyle.Render(strings.Repeat("█", score)) + strings.Repeat("░", 10-score) + fmt.Sprintf(" %d/10", score)
}

// verdictMarkdown renders the narrative sections and action items.
func verdictMarkdown(v *models.Verdict) string {
	var b strings.Builder
	if v.ExecutiveSummary != "" {
		fmt.Fprintf(&b, "## Executive Summary\n\n%s\n\n", v.ExecutiveSummary)
	}
	writeSection(&b, "Key Strengths", v.KeyStrengths)
	writeSection(&b, "Key Risks", v.KeyRisks)
	writeSection(&b, "Next Steps", v.NextSteps)
	writeSection(&b, "Kill Conditions", v.KillConditions)

	if len(v.ActionItems) > 0 {
		b.WriteString("## Action Items\n\n| ID | Severity | Category | Concern |\n|---|---|---|---|\n")
		for _, item := range v.ActionItems {
			concern := strings.ReplaceAll(item.Concern, "|", "\\|")
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", item.ID, item.Severity, item.Category, concern)
		}
		b.WriteString("\n")
	}
	if len(v.ParseWarnings) > 0 {
		writeSection(&b, "Parse Warnings", v.ParseWarnings)
	}
	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func renderMarkdown(input string, width int) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", nil
	}
	if width <= 0 {
		width = renderWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithWordWrap(width),
		glamour.WithStandardStyle("dark"),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(input)
}

func printVerdict(w io.Writer, v *models.Verdict) {
	fmt.Fprintln(w, verdictCard(v))
	md := verdictMarkdown(v)
	out, err := renderMarkdown(md, renderWidth)
	if err != nil {
		out = md
	}
	fmt.Fprint(w, out)
	fmt.Fprintf(w, "Tokens: %d\n", v.TotalTokens())
}

// stageObserver prints pipeline progress lines.
func stageObserver(w io.Writer) pipeline.Observer {
	return func(ev pipeline.StageEvent) {
		label := string(ev.Stage)
		if len(ev.Agents) > 0 {
			label += " (" + strings.Join(ev.Agents, ", ") + ")"
		}
		switch ev.Status {
		case pipeline.StatusRunning:
			printStatus(w, "…", label, color.FgCyan)
		case pipeline.StatusComplete:
			printStatus(w, "✓", fmt.Sprintf("%s %s", label, ev.Duration.Round(time.Millisecond)), color.FgGreen)
		case pipeline.StatusSkipped:
			printStatus(w, "-", label+" skipped", color.FgHiBlack)
		case pipeline.StatusFailed:
			printStatus(w, "✗", fmt.Sprintf("%s: %v", label, ev.Err), color.FgRed)
		}
		for _, note := range ev.Notes {
			printStatus(w, " ", note, color.FgYellow)
		}
	}
}

func printGroundworkEvent(w io.Writer, ev groundwork.Event) {
	switch ev.Type {
	case groundwork.EventStage:
		if ev.Status == groundwork.StageRunning {
			printStatus(w, "…", ev.Agent, color.FgCyan)
		} else {
			printStatus(w, "✓", ev.Agent, color.FgGreen)
		}
	case groundwork.EventHeadline:
		printStatus(w, "›", fmt.Sprintf("%s: %s", ev.Agent, ev.Text), color.FgHiBlack)
	case groundwork.EventComplete:
		printStatus(w, "✓", "groundwork complete: "+ev.GroundworkID, color.FgGreen)
	case groundwork.EventError:
		printStatus(w, "✗", "groundwork failed: "+ev.Message, color.FgRed)
	}
}

func statusColor(s models.EvaluationStatus) color.Attribute {
	switch s {
	case models.EvaluationCompleted:
		return color.FgGreen
	case models.EvaluationFailed:
		return color.FgRed
	default:
		return color.FgYellow
	}
}

// groundworkMarkdown renders each agent's output as a section.
func groundworkMarkdown(g *models.GroundworkResult) string {
	var b strings.Builder
	for _, agent := range groundwork.Agents {
		out := g.Output(agent)
		if out == nil {
			continue
		}
		fmt.Fprintf(&b, "# %s\n\n%s\n\n", prompts.MustGet(agent).Title, strings.TrimSpace(out.AnalysisText))
	}
	return b.String()
}
