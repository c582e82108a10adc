package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"opensim-assistant/internal/app"
)

var (
	servePort  int
	serveSetup bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web chat, MCP and stats endpoints",
	Long: `Builds the index when it is missing (unless --setup=false) and serves
the chat page, /query, /stats and the MCP endpoint until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (0 uses SERVER_PORT)")
	serveCmd.Flags().BoolVar(&serveSetup, "setup", true, "build the index before serving when it is missing")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
		if serveSetup {
			// On failure /query answers 503 until an index exists.
			if _, _, err := deps.BuildIndex(ctx, false, false); err != nil {
				slog.ErrorContext(ctx, "index setup failed, serving unindexed", "error", err)
			}
		}

		a, err := app.New(deps)
		if err != nil {
			return err
		}
		port := servePort
		if port == 0 {
			port = deps.Config.ServerPort
		}
		return a.Run(ctx, port)
	})
}
