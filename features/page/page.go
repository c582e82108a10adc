// Package page is the crawl ledger: one row per URL the scraper tried.
package page

import "time"

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Page struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
}
