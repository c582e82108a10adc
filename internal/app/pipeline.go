package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"opensim-assistant/internal/docstore"
	"opensim-assistant/internal/retrieval"
	"opensim-assistant/internal/scraper"
)

type ScrapeOptions struct {
	// MaxPages overrides the configured page budget when positive.
	MaxPages int
	// RetryFailed re-fetches only the pages the ledger marked failed.
	RetryFailed bool
}

// Scrape crawls the configured sources and writes the document cache. A
// retry run merges its pages into the existing cache by URL.
func (d *Dependencies) Scrape(ctx context.Context, opts ScrapeOptions) (*scraper.Report, error) {
	cfg := scraper.ConfigFrom(d.Config)
	if opts.MaxPages > 0 {
		cfg.MaxPages = opts.MaxPages
	}

	var sopts []scraper.Option
	if d.Pages != nil {
		sopts = append(sopts, scraper.WithLedger(d.Pages))
	}
	s, err := scraper.New(cfg, sopts...)
	if err != nil {
		return nil, err
	}

	if !opts.RetryFailed {
		report, err := s.Scrape(ctx)
		if err != nil {
			return report, err
		}
		if len(report.Documents) == 0 {
			slog.WarnContext(ctx, "scrape produced no documents, keeping existing cache", "path", d.Docs.Path())
			return report, nil
		}
		if err := d.Docs.Save(report.Documents); err != nil {
			return report, err
		}
		return report, nil
	}

	report, err := s.RetryFailed(ctx)
	if err != nil {
		return report, err
	}
	existing, err := d.Docs.Load()
	if err != nil && !errors.Is(err, docstore.ErrNoCache) {
		return report, err
	}
	if err := d.Docs.Save(docstore.Merge(existing, report.Documents)); err != nil {
		return report, err
	}
	return report, nil
}

// BuildIndex makes sure the index is populated. It scrapes first when the
// cache is missing or rescrape is set; rescrape implies a forced rebuild.
func (d *Dependencies) BuildIndex(ctx context.Context, force, rescrape bool) (retrieval.BuildStats, bool, error) {
	load := func() ([]docstore.Document, error) {
		if rescrape || !d.Docs.Exists() {
			slog.InfoContext(ctx, "document cache missing or stale, scraping", "path", d.Docs.Path())
			if _, err := d.Scrape(ctx, ScrapeOptions{}); err != nil {
				return nil, fmt.Errorf("scrape: %w", err)
			}
		}
		return d.Docs.Load()
	}
	return d.Retriever.EnsureIndex(ctx, load, force || rescrape)
}
