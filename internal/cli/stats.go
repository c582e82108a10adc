package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"opensim-assistant/internal/app"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index and crawl statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
		snap, err := deps.Stats().Collect(ctx)
		if err != nil {
			return fmt.Errorf("stats failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal stats: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		st := newStyles(out)
		fmt.Fprintln(out, st.heading.Render("Index"))
		fmt.Fprintf(out, "  records:   %d\n", snap.Records)
		fmt.Fprintf(out, "  mode:      %s\n", snap.Mode)
		fmt.Fprintf(out, "  backend:   %s\n", snap.Backend)
		fmt.Fprintf(out, "  model:     %s\n", snap.Model)
		fmt.Fprintf(out, "  documents: %d\n", snap.Documents)
		fmt.Fprintf(out, "  chunks:    %d runes, %d overlap\n", snap.ChunkSize, snap.ChunkOverlap)
		if snap.Pages != nil {
			fmt.Fprintln(out, st.heading.Render("Crawl ledger"))
			fmt.Fprintf(out, "  completed: %d\n", snap.Pages.Completed)
			fmt.Fprintf(out, "  failed:    %d\n", snap.Pages.Failed)
		}
		return nil
	})
}
