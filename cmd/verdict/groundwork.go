package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/verdict/internal/groundwork"
	"github.com/ShayCichocki/verdict/internal/tui"
	"github.com/ShayCichocki/verdict/pkg/models"
)

var (
	showOnly    bool
	plainOutput bool
)

var groundworkCmd = &cobra.Command{
	Use:   "groundwork <evaluation-id>",
	Short: "Run launch groundwork research for a completed evaluation",
	Long: `Run the six groundwork agents against a completed evaluation.

Phase A researches competitors (with per-competitor deep dives) and market
size, then a gap analysis. Phase B builds customer personas and a
go-to-market playbook, then scopes the MVP. Progress streams as each agent
starts and finishes.

Use --show to print the stored result of an earlier run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), cfg, nil, func(ctx context.Context, s services) error {
			w := cmd.OutOrStdout()
			if !showOnly {
				events, err := s.Groundwork.Start(ctx, args[0])
				if err != nil {
					return err
				}
				if err := watchGroundwork(ctx, cmd.ErrOrStderr(), args[0], events); err != nil {
					if !errors.Is(err, tui.ErrDetached) {
						return err
					}
					printStatus(cmd.ErrOrStderr(), "…", "view closed, waiting for the run to finish", color.FgYellow)
					s.Groundwork.Wait()
				}
			}
			result, err := s.Groundwork.Result(ctx, args[0])
			if err != nil {
				return err
			}
			return printGroundwork(w, result)
		})
	},
}

// watchGroundwork shows the live view on a terminal and plain progress lines
// otherwise.
func watchGroundwork(ctx context.Context, w io.Writer, evaluationID string, events <-chan groundwork.Event) error {
	if f, ok := w.(*os.File); ok && !jsonOutput && !plainOutput && isatty.IsTerminal(f.Fd()) {
		return tui.RunGroundwork(ctx, evaluationID, events, f)
	}
	return followGroundwork(w, events)
}

// followGroundwork prints events until the stream closes and returns the
// run's failure, if any.
func followGroundwork(w io.Writer, events <-chan groundwork.Event) error {
	var runErr error
	for ev := range events {
		if !jsonOutput {
			printGroundworkEvent(w, ev)
		}
		if ev.Type == groundwork.EventError {
			runErr = fmt.Errorf("groundwork failed: %s", ev.Message)
		}
	}
	return runErr
}

func printGroundwork(w io.Writer, g *models.GroundworkResult) error {
	if jsonOutput {
		return printJSON(w, g)
	}
	printStatus(w, "●", fmt.Sprintf("groundwork %s %s", g.ID, g.Status), color.FgCyan)
	if g.Error != "" {
		printStatus(w, "✗", g.Error, color.FgRed)
	}
	md := groundworkMarkdown(g)
	out, err := renderMarkdown(md, renderWidth)
	if err != nil {
		out = md
	}
	fmt.Fprint(w, out)

	m := g.Metrics
	fmt.Fprintf(w, "Competitors researched: %d (failed %d)\n", m.CompetitorsDone, m.CompetitorsFail)
	fmt.Fprintf(w, "Tokens: %d in / %d out, searches: %d, duration: %dms\n",
		m.TotalTokensIn, m.TotalTokensOut, m.TotalSearches, m.TotalDurationMs)
	for key, am := range m.Agents {
		if am.OverBudget {
			printStatus(w, "!", fmt.Sprintf("%s used %d searches (budget %d)", key, am.SearchesUsed, am.SearchBudget), color.FgYellow)
		}
	}
	return nil
}

func init() {
	groundworkCmd.Flags().BoolVar(&plainOutput, "plain", false, "Print progress lines instead of the live view")
	groundworkCmd.Flags().BoolVar(&showOnly, "show", false, "Show the stored result without starting a run")
}
