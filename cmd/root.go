// Package cmd defines and implements the CLI commands for the websum executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/config"
	"github.com/JakeFAU/websum/internal/logging"
)

// env is what every subcommand needs: the loaded config and a logger.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

type envKey struct{}

// envLoader builds an env from an optional config path. Tests inject their own.
type envLoader func(path string) (*env, error)

func loadEnv(path string) (*env, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func newRootCmd(load envLoader) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "websum",
		Short: "Turn web pages into summarized markdown notes.",
		Long: `websum acquires a URL through the best available strategy (GitHub API,
headless Chrome, or a remote rendering service), splits the readable content
into token-bounded chunks, summarizes it with an OpenAI-compatible model and
publishes the result as a markdown note.`,
		SilenceUsage: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e, err := load(cfgFile)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(e.logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, e))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, err := resolveEnv(cmd.Context()); err == nil {
				// Sync on a terminal stderr commonly fails with EINVAL.
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: websum.yaml in ., /etc/websum or $HOME/.websum)")
	cmd.AddCommand(newServeCmd(), newFetchCmd(), newChunkCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	if ctx == nil {
		return nil, errors.New("command context not initialized")
	}
	e, ok := ctx.Value(envKey{}).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(loadEnv).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "websum:", err)
		os.Exit(1)
	}
}
