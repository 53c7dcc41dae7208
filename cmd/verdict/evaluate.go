package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/verdict/internal/evaluation"
	"github.com/ShayCichocki/verdict/internal/pipeline"
	"github.com/ShayCichocki/verdict/pkg/models"
)

const pollInterval = 2 * time.Second

var (
	ideaFile       string
	ideaFlags      ideaDoc
	userID         string
	optTranscribe  bool
	optHumanize    bool
	waitFlag       bool
	iterateReplies map[string]string
)

// ideaDoc is the on-disk idea format. JSON files decode too.
type ideaDoc struct {
	Problem       string `yaml:"problem"`
	Solution      string `yaml:"solution"`
	TargetMarket  string `yaml:"target_market"`
	BusinessModel string `yaml:"business_model"`
	WhyYou        string `yaml:"why_you"`
	Email         string `yaml:"email"`
}

func (d ideaDoc) idea() models.IdeaInput {
	return models.IdeaInput{
		Problem:       d.Problem,
		Solution:      d.Solution,
		TargetMarket:  d.TargetMarket,
		BusinessModel: d.BusinessModel,
		WhyYou:        d.WhyYou,
		Email:         d.Email,
	}
}

// loadIdea reads path (or stdin for "-") and overlays non-empty flag values.
func loadIdea(r io.Reader, path string, flags ideaDoc) (models.IdeaInput, error) {
	var doc ideaDoc
	if path != "" {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(r)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return models.IdeaInput{}, fmt.Errorf("read idea: %w", err)
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return models.IdeaInput{}, fmt.Errorf("parse idea %s: %w", path, err)
		}
	}
	overlay(&doc.Problem, flags.Problem)
	overlay(&doc.Solution, flags.Solution)
	overlay(&doc.TargetMarket, flags.TargetMarket)
	overlay(&doc.BusinessModel, flags.BusinessModel)
	overlay(&doc.WhyYou, flags.WhyYou)
	overlay(&doc.Email, flags.Email)
	return doc.idea(), nil
}

func overlay(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func pipelineOptions() pipeline.Options {
	return pipeline.Options{Transcribe: optTranscribe, Humanize: optHumanize}
}

// progress returns the stage observer for interactive runs.
func progress(cmd *cobra.Command) pipeline.Observer {
	if jsonOutput {
		return nil
	}
	return stageObserver(cmd.ErrOrStderr())
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Submit a business idea for evaluation",
	Long: `Submit a business idea and run the evaluation pipeline.

The idea can come from a YAML or JSON file (--file, "-" for stdin) with the
keys problem, solution, target_market, business_model, why_you, email, or
from flags. Flags override file values.

Without --wait the evaluation ID is printed immediately; the command still
exits only after the run has been stored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idea, err := loadIdea(cmd.InOrStdin(), ideaFile, ideaFlags)
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), cfg, progress(cmd), func(ctx context.Context, s services) error {
			auth := models.AuthContext{UserID: userID, Email: idea.Email, IsAuthenticated: userID != ""}
			id, err := s.Evaluation.Submit(ctx, auth, idea, pipelineOptions())
			if err != nil {
				return err
			}
			return reportSubmitted(ctx, cmd.OutOrStdout(), s.Evaluation, id)
		})
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll <evaluation-id>",
	Short: "Show the status and verdict of an evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), cfg, nil, func(ctx context.Context, s services) error {
			var (
				res evaluation.PollResult
				err error
			)
			if waitFlag {
				res, err = s.Evaluation.Await(ctx, args[0], pollInterval)
			} else {
				res, err = s.Evaluation.Poll(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return printPoll(cmd.OutOrStdout(), res)
		})
	},
}

var iterateCmd = &cobra.Command{
	Use:   "iterate <prior-evaluation-id>",
	Short: "Re-run a completed evaluation as the next version",
	Long: `Create the next version of a project from a completed evaluation.

Answer the prior verdict's action items with --respond AI-1="..." and edit
idea fields with the same flags as evaluate. Projects are capped at
pipeline.max_iterations versions (default 3).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		edits := ideaEdits(cmd)
		return withServices(cmd.Context(), cfg, progress(cmd), func(ctx context.Context, s services) error {
			id, err := s.Evaluation.Iterate(ctx, evaluation.IterateRequest{
				PriorEvaluationID: args[0],
				Edits:             edits,
				Responses:         iterateReplies,
				Options:           pipelineOptions(),
			})
			if err != nil {
				return err
			}
			return reportSubmitted(ctx, cmd.OutOrStdout(), s.Evaluation, id)
		})
	},
}

// ideaEdits collects only the idea flags the user actually set.
func ideaEdits(cmd *cobra.Command) models.IdeaEdits {
	var edits models.IdeaEdits
	set := func(name string, value string, dst **string) {
		if cmd.Flags().Changed(name) {
			v := value
			*dst = &v
		}
	}
	set("problem", ideaFlags.Problem, &edits.Problem)
	set("solution", ideaFlags.Solution, &edits.Solution)
	set("market", ideaFlags.TargetMarket, &edits.TargetMarket)
	set("business-model", ideaFlags.BusinessModel, &edits.BusinessModel)
	set("why-you", ideaFlags.WhyYou, &edits.WhyYou)
	return edits
}

func reportSubmitted(ctx context.Context, w io.Writer, svc *evaluation.Service, id string) error {
	if !waitFlag {
		if jsonOutput {
			return printJSON(w, map[string]string{"evaluation_id": id, "status": string(models.EvaluationProcessing)})
		}
		printStatus(w, "✓", "submitted "+id, color.FgGreen)
		return nil
	}
	res, err := svc.Await(ctx, id, 200*time.Millisecond)
	if err != nil {
		return err
	}
	return printPoll(w, res)
}

func printPoll(w io.Writer, res evaluation.PollResult) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	printStatus(w, "●", fmt.Sprintf("%s v%d %s", res.EvaluationID, res.Version, res.Status), statusColor(res.Status))
	if res.Error != "" {
		printStatus(w, "✗", res.Error, color.FgRed)
	}
	if res.Verdict != nil {
		printVerdict(w, res.Verdict)
	}
	if res.Status == models.EvaluationFailed {
		return fmt.Errorf("evaluation %s failed", res.EvaluationID)
	}
	return nil
}

var historyCmd = &cobra.Command{
	Use:   "history <project-or-evaluation-id>",
	Short: "List every version of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), cfg, nil, func(ctx context.Context, s services) error {
			history, err := s.Evaluation.History(ctx, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, history)
			}
			for _, e := range history {
				line := fmt.Sprintf("v%d %s %s", e.Version, e.ID, e.Status)
				if e.Verdict != nil {
					line += fmt.Sprintf("  %s %d/10", e.Verdict.Decision, e.Verdict.Confidence)
				}
				printStatus(w, "●", line, statusColor(e.Status))
			}
			return nil
		})
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), cfg, nil, func(ctx context.Context, s services) error {
			projects, err := s.Evaluation.ListProjects(ctx, userID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, projects)
			}
			if len(projects) == 0 {
				fmt.Fprintln(w, "No projects. Run 'verdict evaluate' to start.")
				return nil
			}
			for _, p := range projects {
				fmt.Fprintf(w, "%s  v%d  %s  %s\n", p.ID, p.LatestVersion, p.CreatedAt.Format("2006-01-02 15:04"), p.Title)
			}
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show evaluation counts and average confidence",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), cfg, nil, func(ctx context.Context, s services) error {
			stats, err := s.Evaluation.Stats(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, stats)
			}
			fmt.Fprintf(w, "Projects:    %d\n", stats.Projects)
			fmt.Fprintf(w, "Evaluations: %d\n", stats.Evaluations)
			for _, st := range []models.EvaluationStatus{models.EvaluationPending, models.EvaluationProcessing, models.EvaluationCompleted, models.EvaluationFailed} {
				fmt.Fprintf(w, "  %-11s %d\n", st, stats.ByStatus[st])
			}
			for _, d := range models.Decisions {
				fmt.Fprintf(w, "  %-16s %d\n", d, stats.ByDecision[d])
			}
			fmt.Fprintf(w, "Average confidence: %.1f\n", stats.AverageConfidence)
			return nil
		})
	},
}

func addIdeaFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ideaFlags.Problem, "problem", "", "Problem the idea addresses")
	cmd.Flags().StringVar(&ideaFlags.Solution, "solution", "", "Proposed solution")
	cmd.Flags().StringVar(&ideaFlags.TargetMarket, "market", "", "Target market")
	cmd.Flags().StringVar(&ideaFlags.BusinessModel, "business-model", "", "How the idea makes money")
	cmd.Flags().StringVar(&ideaFlags.WhyYou, "why-you", "", "Founder-market fit (optional)")
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&optTranscribe, "transcribe", false, "Clean up the idea text before intake")
	cmd.Flags().BoolVar(&optHumanize, "humanize", false, "Rewrite agent outputs for readability")
	cmd.Flags().BoolVar(&waitFlag, "wait", false, "Wait for the verdict and render it")
}

func init() {
	addIdeaFlags(evaluateCmd)
	addRunFlags(evaluateCmd)
	evaluateCmd.Flags().StringVarP(&ideaFile, "file", "f", "", "Idea file (YAML or JSON, - for stdin)")
	evaluateCmd.Flags().StringVar(&ideaFlags.Email, "email", "", "Contact email")
	evaluateCmd.Flags().StringVar(&userID, "user", "", "User ID attached to the project")

	addIdeaFlags(iterateCmd)
	addRunFlags(iterateCmd)
	iterateCmd.Flags().StringToStringVar(&iterateReplies, "respond", nil, "Response to a prior action item, e.g. AI-1=\"12 LOIs signed\"")

	pollCmd.Flags().BoolVar(&waitFlag, "wait", false, "Poll until the evaluation finishes")

	projectsCmd.Flags().StringVar(&userID, "user", "", "Only list this user's projects")
}
