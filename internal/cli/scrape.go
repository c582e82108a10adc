package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"opensim-assistant/internal/app"
)

var (
	scrapeMaxPages    int
	scrapeRetryFailed bool
	scrapeIndex       bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the documentation sources into the document cache",
	Long: `Walks the configured source URLs depth first, extracts page text and
writes the document cache. With --retry-failed only pages the crawl ledger
marked failed are fetched again and merged into the existing cache.`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeMaxPages, "max-pages", 0, "page budget (0 uses the configured MAX_PAGES)")
	scrapeCmd.Flags().BoolVar(&scrapeRetryFailed, "retry-failed", false, "re-fetch pages the ledger marked failed")
	scrapeCmd.Flags().BoolVar(&scrapeIndex, "index", false, "rebuild the index after scraping")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
		report, err := deps.Scrape(ctx, app.ScrapeOptions{
			MaxPages:    scrapeMaxPages,
			RetryFailed: scrapeRetryFailed,
		})
		if err != nil {
			return fmt.Errorf("scrape failed: %w", err)
		}

		out := cmd.OutOrStdout()
		st := newStyles(out)
		fmt.Fprintln(out, st.heading.Render(fmt.Sprintf("Scraped %d documents", len(report.Documents))))
		fmt.Fprintf(out, "  visited: %d, failed: %d, took %s\n", report.Visited, len(report.Failed), report.Duration.Round(time.Millisecond))
		for _, u := range report.Failed {
			fmt.Fprintln(out, st.muted.Render("  failed: " + u))
		}
		fmt.Fprintf(out, "  cache: %s\n", deps.Docs.Path())

		if !scrapeIndex {
			return nil
		}
		stats, _, err := deps.BuildIndex(ctx, true, false)
		if err != nil {
			return fmt.Errorf("index failed: %w", err)
		}
		printBuildStats(cmd, stats)
		return nil
	})
}
