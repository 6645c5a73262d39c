package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/websum/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and job scheduler",
		Long: `Starts the HTTP API on server.port together with the job scheduler.
Jobs are accepted per conversation, run with bounded concurrency and strict
per-conversation ordering, and published through the configured publisher.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	app, err := server.Build(cmd.Context(), &e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if err := app.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run server: %w", err)
	}
	return nil
}
