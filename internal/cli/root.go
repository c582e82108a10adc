// Package cli holds the opensim-assistant command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"opensim-assistant/internal/app"
	"opensim-assistant/internal/config"
	"opensim-assistant/internal/logger"
)

var (
	configPath string
	modelName  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "opensim-assistant",
	Short: "Answer OpenSim questions from the project documentation",
	Long: `Scrapes the OpenSim documentation, indexes it with sentence embeddings
and answers questions with the most relevant passages and their sources.

Run "opensim-assistant index" once, then "ask" or "serve".`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "embedding model name (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// Execute runs the command tree until ctx is cancelled.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if modelName != "" {
		cfg.EmbeddingModel = modelName
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	slog.SetDefault(logger.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat))
	return cfg, nil
}

// withDeps loads config, bootstraps the dependencies and closes them after fn.
func withDeps(cmd *cobra.Command, fn func(ctx context.Context, deps *app.Dependencies) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			slog.WarnContext(ctx, "failed to close dependencies", "error", cerr)
		}
	}()
	return fn(ctx, deps)
}
