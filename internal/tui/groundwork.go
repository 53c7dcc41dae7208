package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/verdict/internal/groundwork"
	"github.com/ShayCichocki/verdict/internal/prompts"
	"github.com/ShayCichocki/verdict/pkg/models"
)

// ErrDetached is returned when the user closes the view before the run ends.
var ErrDetached = errors.New("detached from groundwork run")

// EventMsg wraps a groundwork event for the program.
type EventMsg struct {
	Event groundwork.Event
}

// StreamClosedMsg signals that the event stream has closed.
type StreamClosedMsg struct{}

type rowState int

const (
	rowPending rowState = iota
	rowRunning
	rowDone
	rowFailed
)

type agentRow struct {
	agent    string
	title    string
	state    rowState
	started  time.Time
	elapsed  time.Duration
	headline string
	// detail is a secondary line, used for competitor deep dives.
	detail string
}

// GroundworkModel is the bubbletea model for a groundwork run.
type GroundworkModel struct {
	evaluationID string
	rows         []*agentRow
	spinner      spinner.Model
	width        int

	groundworkID string
	failure      string
	finished     bool
	detached     bool
	now          func() time.Time

	// Styles
	headerStyle  lipgloss.Style
	titleStyle   lipgloss.Style
	pendingStyle lipgloss.Style
	doneStyle    lipgloss.Style
	failedStyle  lipgloss.Style
	dimStyle     lipgloss.Style
}

// NewGroundworkModel creates a model with a pending row per agent.
func NewGroundworkModel(evaluationID string) *GroundworkModel {
	rows := make([]*agentRow, len(groundwork.Agents))
	for i, agent := range groundwork.Agents {
		rows[i] = &agentRow{agent: agent, title: prompts.MustGet(agent).Title}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &GroundworkModel{
		evaluationID: evaluationID,
		rows:         rows,
		spinner:      s,
		now:          time.Now,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		titleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Width(26),

		pendingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),

		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		failedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
	}
}

// Init implements tea.Model.
func (m *GroundworkModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *GroundworkModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.finished {
				m.detached = true
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.apply(msg.Event)

	case StreamClosedMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *GroundworkModel) apply(ev groundwork.Event) {
	switch ev.Type {
	case groundwork.EventStage:
		row := m.row(ev.Agent)
		if row == nil {
			return
		}
		if ev.Status == groundwork.StageRunning {
			row.state = rowRunning
			row.started = ev.Timestamp
			return
		}
		row.state = rowDone
		if !row.started.IsZero() {
			row.elapsed = ev.Timestamp.Sub(row.started)
		}

	case groundwork.EventHeadline:
		if ev.Agent == models.AgentCompetitorDeepDive {
			if row := m.row(models.AgentCompetitorIntelligence); row != nil {
				row.detail = ev.Text
			}
			return
		}
		if row := m.row(ev.Agent); row != nil {
			row.headline = ev.Text
		}

	case groundwork.EventComplete:
		m.groundworkID = ev.GroundworkID

	case groundwork.EventError:
		m.failure = ev.Message
		for _, row := range m.rows {
			if row.state == rowRunning {
				row.state = rowFailed
			}
		}
	}
}

func (m *GroundworkModel) row(agent string) *agentRow {
	for _, r := range m.rows {
		if r.agent == agent {
			return r
		}
	}
	return nil
}

// View implements tea.Model.
func (m *GroundworkModel) View() string {
	var b strings.Builder

	b.WriteString(m.headerStyle.Render("Groundwork for " + m.evaluationID))
	b.WriteString("\n")

	for _, row := range m.rows {
		b.WriteString(m.icon(row))
		b.WriteString(" ")
		b.WriteString(m.titleStyle.Render(row.title))
		switch row.state {
		case rowRunning:
			b.WriteString(m.dimStyle.Render(m.now().Sub(row.started).Round(time.Second).String()))
		case rowDone:
			b.WriteString(m.dimStyle.Render(row.elapsed.Round(100 * time.Millisecond).String()))
		}
		b.WriteString("\n")
		if row.headline != "" {
			b.WriteString("    " + m.dimStyle.Render(m.truncate(row.headline)) + "\n")
		}
		if row.detail != "" {
			b.WriteString("    " + m.dimStyle.Render(m.truncate(row.detail)) + "\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.failure != "":
		b.WriteString(m.failedStyle.Render("✗ " + m.failure))
	case m.groundworkID != "":
		b.WriteString(m.doneStyle.Render("✓ groundwork " + m.groundworkID + " complete"))
	default:
		b.WriteString(m.pendingStyle.Render(fmt.Sprintf("%d/%d agents complete · q to detach", m.completed(), len(m.rows))))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *GroundworkModel) icon(row *agentRow) string {
	switch row.state {
	case rowRunning:
		return m.spinner.View()
	case rowDone:
		return m.doneStyle.Render("✓")
	case rowFailed:
		return m.failedStyle.Render("✗")
	default:
		return m.pendingStyle.Render("·")
	}
}

func (m *GroundworkModel) completed() int {
	n := 0
	for _, row := range m.rows {
		if row.state == rowDone {
			n++
		}
	}
	return n
}

func (m *GroundworkModel) truncate(s string) string {
	limit := m.width - 6
	if limit < 20 {
		limit = 100
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

// Err returns the run's failure, ErrDetached if the view was closed early,
// or nil once the run completed.
func (m *GroundworkModel) Err() error {
	switch {
	case m.failure != "":
		return fmt.Errorf("groundwork failed: %s", m.failure)
	case m.detached:
		return ErrDetached
	default:
		return nil
	}
}

// GroundworkID returns the persisted run ID once the run completes.
func (m *GroundworkModel) GroundworkID() string {
	return m.groundworkID
}

// Forward relays events to the program until the stream closes.
func Forward(program *tea.Program, events <-chan groundwork.Event) {
	for ev := range events {
		program.Send(EventMsg{Event: ev})
	}
	program.Send(StreamClosedMsg{})
}

// RunGroundwork shows progress for a run until its event stream closes or
// the user detaches.
func RunGroundwork(ctx context.Context, evaluationID string, events <-chan groundwork.Event, out io.Writer) error {
	model := NewGroundworkModel(evaluationID)
	program := tea.NewProgram(model, tea.WithOutput(out), tea.WithContext(ctx))
	go Forward(program, events)

	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("groundwork view: %w", err)
	}
	return final.(*GroundworkModel).Err()
}
