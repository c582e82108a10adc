// Package scraper crawls the OpenSim documentation sites and turns each page
// into a docstore.Document.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"opensim-assistant/internal/config"
	"opensim-assistant/internal/docstore"
)

// Ledger records the outcome of every fetch.
type Ledger interface {
	MarkCompleted(ctx context.Context, url, title string) error
	MarkFailed(ctx context.Context, url, reason string) error
	FailedURLs(ctx context.Context) ([]string, error)
}

var ErrNoLedger = errors.New("crawl ledger not configured")

type Config struct {
	Sources      []string
	MaxPages     int
	MaxDepth     int
	Delay        time.Duration
	Timeout      time.Duration
	Retries      int
	RetryInitial time.Duration
	Exclusions   []string
	UserAgent    string
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Sources:    cfg.SourceURLs,
		MaxPages:   cfg.MaxPages,
		MaxDepth:   cfg.MaxDepth,
		Delay:      cfg.CrawlDelay,
		Timeout:    cfg.FetchTimeout,
		Retries:    cfg.FetchRetries,
		Exclusions: cfg.CrawlExclusions,
		UserAgent:  cfg.UserAgent,
	}
}

type Report struct {
	Documents []docstore.Document
	Visited   int
	Failed    []string
	Duration  time.Duration
}

type Scraper struct {
	cfg        Config
	fetcher    *fetcher
	ledger     Ledger
	exclusions []*regexp.Regexp
	now        func() time.Time
}

type Option func(*Scraper)

func WithLedger(l Ledger) Option { return func(s *Scraper) { s.ledger = l } }

func New(cfg Config, opts ...Option) (*Scraper, error) {
	if cfg.MaxPages <= 0 {
		return nil, fmt.Errorf("%w: max pages must be positive", config.ErrInvalid)
	}
	ex, err := CompileExclusions(cfg.Exclusions)
	if err != nil {
		return nil, fmt.Errorf("%w: crawl exclusion: %w", config.ErrInvalid, err)
	}
	s := &Scraper{
		cfg:        cfg,
		fetcher:    newFetcher(cfg),
		exclusions: ex,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

type crawl struct {
	visited map[string]bool
	report  *Report
}

// Scrape walks every source depth first until MaxPages URLs have been
// visited. Failed pages are logged and skipped; only cancellation aborts.
func (s *Scraper) Scrape(ctx context.Context) (*Report, error) {
	start := s.now()
	c := &crawl{visited: make(map[string]bool), report: &Report{}}

	slog.InfoContext(ctx, "starting scrape", "sources", len(s.cfg.Sources), "max_pages", s.cfg.MaxPages)
	for _, src := range s.cfg.Sources {
		if err := s.visit(ctx, c, src, 0); err != nil {
			return c.report, err
		}
	}

	c.report.Duration = s.now().Sub(start)
	slog.InfoContext(ctx, "scrape completed",
		"documents", len(c.report.Documents),
		"visited", c.report.Visited,
		"failed", len(c.report.Failed),
		"duration", c.report.Duration)
	return c.report, nil
}

func (s *Scraper) visit(ctx context.Context, c *crawl, rawURL string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > s.cfg.MaxDepth || c.report.Visited >= s.cfg.MaxPages || c.visited[rawURL] {
		return nil
	}
	c.visited[rawURL] = true
	c.report.Visited++

	slog.InfoContext(ctx, "scraping", "url", rawURL, "depth", depth)
	doc, links, err := s.scrapePage(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.recordFailure(ctx, c, rawURL, err)
		return nil
	}
	s.recordSuccess(ctx, c, rawURL, doc)

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	for _, link := range DiscoverLinks(base, links, depth, s.cfg.MaxDepth, s.exclusions) {
		if c.report.Visited >= s.cfg.MaxPages {
			break
		}
		if err := s.visit(ctx, c, link, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// RetryFailed fetches the pages the ledger marked failed, without following
// their links.
func (s *Scraper) RetryFailed(ctx context.Context) (*Report, error) {
	if s.ledger == nil {
		return nil, ErrNoLedger
	}
	start := s.now()
	urls, err := s.ledger.FailedURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list failed pages: %w", err)
	}

	c := &crawl{visited: make(map[string]bool), report: &Report{}}
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return c.report, err
		}
		if c.visited[u] {
			continue
		}
		c.visited[u] = true
		c.report.Visited++

		doc, _, err := s.scrapePage(ctx, u)
		if err != nil {
			s.recordFailure(ctx, c, u, err)
			continue
		}
		s.recordSuccess(ctx, c, u, doc)
	}
	c.report.Duration = s.now().Sub(start)
	slog.InfoContext(ctx, "retry completed", "retried", len(urls), "recovered", len(c.report.Documents))
	return c.report, nil
}

func (s *Scraper) recordFailure(ctx context.Context, c *crawl, u string, cause error) {
	slog.WarnContext(ctx, "failed to scrape page", "url", u, "error", cause)
	c.report.Failed = append(c.report.Failed, u)
	if s.ledger != nil {
		if err := s.ledger.MarkFailed(ctx, u, cause.Error()); err != nil {
			slog.WarnContext(ctx, "failed to record page", "url", u, "error", err)
		}
	}
}

func (s *Scraper) recordSuccess(ctx context.Context, c *crawl, u string, doc *docstore.Document) {
	title := ""
	if doc != nil {
		c.report.Documents = append(c.report.Documents, *doc)
		title = doc.Title
		slog.DebugContext(ctx, "added document", "title", doc.Title, "type", doc.Type)
	}
	if s.ledger == nil {
		return
	}
	if err := s.ledger.MarkCompleted(ctx, u, title); err != nil {
		slog.WarnContext(ctx, "failed to record page", "url", u, "error", err)
	}
}

// scrapePage fetches one URL. A nil document with a nil error means the page
// had no usable text.
func (s *Scraper) scrapePage(ctx context.Context, rawURL string) (*docstore.Document, []string, error) {
	res, err := s.fetcher.fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}

	var page Page
	switch {
	case res.contentType == "application/pdf" || strings.HasSuffix(strings.ToLower(rawURL), ".pdf"):
		text, err := ExtractPDF(res.body)
		if err != nil {
			return nil, nil, err
		}
		page = Page{Title: pdfTitle(rawURL), Text: text}
	case res.contentType == "text/html" || res.contentType == "application/xhtml+xml":
		page, err = ExtractHTML(bytes.NewReader(res.body))
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, res.contentType)
	}

	if strings.TrimSpace(page.Text) == "" {
		return nil, page.Links, nil
	}
	return &docstore.Document{
		URL:       rawURL,
		Title:     page.Title,
		Text:      page.Text,
		Section:   Section(rawURL),
		Type:      ContentType(rawURL, page.Title),
		ScrapedAt: s.now().UTC(),
	}, page.Links, nil
}

func pdfTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return unknownTitle
	}
	name := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	if name == "" || name == "." || name == "/" {
		return unknownTitle
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}
