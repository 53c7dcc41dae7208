package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/verdict/internal/config"
	"github.com/ShayCichocki/verdict/internal/logging"
)

var (
	configPath string
	debugFlag  bool
	jsonOutput bool

	// cfg is loaded once before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Business idea evaluation engine",
	Long: `Verdict runs a panel of model agents over a business idea and returns a
structured verdict: a decision, confidence, five dimension scores, and the
action items a founder should address before iterating.

Pipeline:
- Intake frames the idea
- Catalyst and Fire argue for and against it in parallel
- Synthesis weighs both and issues the verdict

Completed evaluations can be iterated up to three versions per project, and
can seed a six-agent groundwork run (competitors, market sizing, gaps,
personas, go-to-market, MVP scope).

Use storage.backend: sqlite to keep results between invocations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		logging.Init(cfg.Log.Debug || debugFlag, nil)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		c, err := config.LoadFromPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return c, nil
	}
	c, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.config/verdict/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(iterateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(groundworkCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
