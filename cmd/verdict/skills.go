package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/verdict/internal/skills"
)

var skillInputFile string

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List and apply text-transformation skills",
	Long: `Skills are markdown definitions with YAML front matter that transform
text before or after an agent call. Built-in skills ship with verdict;
definitions in skills.dir override them by ID.`,
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded skills",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := skills.NewRegistry(cfg.Skills.Dir)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		list := registry.List()
		if jsonOutput {
			return printJSON(w, list)
		}
		for _, s := range list {
			scope := "all agents"
			if len(s.AgentScope) > 0 {
				scope = strings.Join(s.AgentScope, ", ")
			}
			fmt.Fprintf(w, "%-20s %-5s %-8s %s (%s)\n", s.ID, s.ApplyPoint, s.Version, s.Description, scope)
		}
		return nil
	},
}

var skillsApplyCmd = &cobra.Command{
	Use:   "apply <skill-id> [text]",
	Short: "Apply a skill to text from an argument, --file, or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := skillInput(cmd.InOrStdin(), args[1:], skillInputFile)
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), cfg, nil, func(ctx context.Context, s services) error {
			skill, ok := s.Skills.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown skill: %s", args[0])
			}
			res := s.Applier.Apply(ctx, skill, input)
			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, res)
			}
			errw := cmd.ErrOrStderr()
			for _, note := range res.Notes {
				printStatus(errw, "!", note, color.FgYellow)
			}
			if res.Applied {
				printStatus(errw, "✓", "applied via "+res.Backend, color.FgGreen)
			}
			fmt.Fprintln(w, res.Text)
			return nil
		})
	},
}

var skillsReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload skill definitions and show the backend chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), cfg, nil, func(ctx context.Context, s services) error {
			if err := s.Skills.Reload(); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printStatus(w, "✓", fmt.Sprintf("%d skills loaded from %s", len(s.Skills.List()), dirLabel(s.Skills.Dir())), color.FgGreen)
			backends := s.Applier.Backends()
			if len(backends) == 0 {
				printStatus(w, "!", "no skill backends configured", color.FgYellow)
				return nil
			}
			printStatus(w, "●", "backends: "+strings.Join(backends, " → "), color.FgCyan)
			return nil
		})
	},
}

func dirLabel(dir string) string {
	if dir == "" {
		return "built-ins only"
	}
	return dir
}

// skillInput picks the text to transform: the argument, then the file, then stdin.
func skillInput(stdin io.Reader, args []string, path string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	var (
		data []byte
		err  error
	)
	if path != "" && path != "-" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no input text")
	}
	return text, nil
}

func init() {
	skillsApplyCmd.Flags().StringVarP(&skillInputFile, "file", "f", "", "Read input text from a file")
	skillsCmd.AddCommand(skillsListCmd, skillsApplyCmd, skillsReloadCmd)
}
