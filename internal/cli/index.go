package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"opensim-assistant/internal/app"
	"opensim-assistant/internal/retrieval"
)

var (
	indexForce    bool
	indexRescrape bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the vector index from the document cache",
	Long: `Chunks and embeds the cached documents into the vector index. The
sources are scraped first when the cache is missing or --rescrape is set.
An existing index is left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "drop and rebuild an existing index")
	indexCmd.Flags().BoolVar(&indexRescrape, "rescrape", false, "scrape the sources again before building")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
		stats, built, err := deps.BuildIndex(ctx, indexForce, indexRescrape)
		if err != nil {
			return fmt.Errorf("index failed: %w", err)
		}
		if !built {
			fmt.Fprintln(cmd.OutOrStdout(), "Index already present; use --force to rebuild.")
			return nil
		}
		printBuildStats(cmd, stats)
		return nil
	})
}

func printBuildStats(cmd *cobra.Command, stats retrieval.BuildStats) {
	out := cmd.OutOrStdout()
	st := newStyles(out)
	fmt.Fprintln(out, st.heading.Render(fmt.Sprintf("Indexed %d chunks from %d documents", stats.Chunks, stats.Documents)))
	fmt.Fprintf(out, "  took %s\n", stats.Duration.Round(time.Millisecond))
}
