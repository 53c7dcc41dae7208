package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/verdict/internal/mcpserver"
	"github.com/ShayCichocki/verdict/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve evaluation and groundwork tools over MCP (stdio)",
	Long: `Start a Model Context Protocol server on stdin/stdout.

Tools: submit_idea, poll_evaluation, iterate_evaluation, get_history,
get_stats, run_groundwork, get_groundwork. Logs go to stderr. On shutdown
the server waits for in-flight evaluations and groundwork runs to be stored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withServices(ctx, cfg, nil, func(ctx context.Context, s services) error {
			srv := mcpserver.NewServer(s.Evaluation, s.Groundwork, version.Get())
			log.Info().
				Str("storage", s.Config.Storage.Backend).
				Strs("skill_backends", s.Applier.Backends()).
				Msg("mcp server listening on stdio")
			if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	},
}
