package page

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const upsertQuery = `INSERT INTO pages (url, title, status, error, attempts) VALUES ($1, $2, $3, $4, 1)
ON CONFLICT (url) DO UPDATE SET title = EXCLUDED.title, status = EXCLUDED.status, error = EXCLUDED.error, attempts = pages.attempts + 1, updated_at = NOW()`

func (r *PostgresRepo) MarkCompleted(ctx context.Context, url, title string) error {
	_, err := r.db.ExecContext(ctx, upsertQuery, url, title, StatusCompleted, "")
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, url, reason string) error {
	_, err := r.db.ExecContext(ctx, upsertQuery, url, "", StatusFailed, reason)
	return err
}

func (r *PostgresRepo) FailedURLs(ctx context.Context) ([]string, error) {
	query := `SELECT url FROM pages WHERE status = $1 ORDER BY updated_at ASC`
	rows, err := r.db.QueryContext(ctx, query, StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// List returns pages with any of the given statuses, or every page when none
// are given.
func (r *PostgresRepo) List(ctx context.Context, statuses ...string) ([]Page, error) {
	query := `SELECT id, url, title, status, error, attempts, updated_at FROM pages`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(statuses))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pages := []Page{}
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.URL, &p.Title, &p.Status, &p.Error, &p.Attempts, &p.UpdatedAt); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pages GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{StatusCompleted: 0, StatusFailed: 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
