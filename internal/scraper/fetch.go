package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 10 << 20

var ErrUnsupportedContent = errors.New("unsupported content type")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type fetched struct {
	body        []byte
	contentType string
}

type fetcher struct {
	client       *http.Client
	limiter      *rate.Limiter
	userAgent    string
	retries      int
	retryInitial time.Duration
}

func newFetcher(cfg Config) *fetcher {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &fetcher{
		client:       &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(limit, 1),
		userAgent:    cfg.UserAgent,
		retries:      cfg.Retries,
		retryInitial: cfg.RetryInitial,
	}
}

// fetch downloads url, retrying transient failures with exponential backoff.
// 4xx responses other than 429 are not retried.
func (f *fetcher) fetch(ctx context.Context, url string) (fetched, error) {
	eb := backoff.NewExponentialBackOff()
	if f.retryInitial > 0 {
		eb.InitialInterval = f.retryInitial
	}
	var b backoff.BackOff = eb
	b = backoff.WithMaxRetries(b, uint64(max(f.retries, 0))) // #nosec G115 -- clamped to non-negative
	b = backoff.WithContext(b, ctx)

	var out fetched
	err := backoff.Retry(func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		res, err := f.once(ctx, url)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return backoff.Permanent(err)
			}
			return err
		}
		out = res
		return nil
	}, b)
	return out, err
}

func (f *fetcher) once(ctx context.Context, url string) (fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetched{}, backoff.Permanent(err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fetched{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fetched{}, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fetched{}, fmt.Errorf("read body: %w", err)
	}

	ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if ct == "" {
		ct = http.DetectContentType(body)
		ct, _, _ = mime.ParseMediaType(ct)
	}
	return fetched{body: body, contentType: ct}, nil
}
