// Package stats reports the state of the documentation index.
package stats

import (
	"context"
	"errors"
	"fmt"

	"opensim-assistant/internal/docstore"
)

const (
	ModeReady     = "ready"
	ModeUnindexed = "unindexed"
)

type IndexCounter interface {
	Count(ctx context.Context) (int, error)
}

type Library interface {
	Load() ([]docstore.Document, error)
}

type PageCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type PageCounts struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type Snapshot struct {
	Records      int         `json:"records"`
	Mode         string      `json:"mode"`
	Backend      string      `json:"backend"`
	Model        string      `json:"model"`
	Documents    int         `json:"documents"`
	ChunkSize    int         `json:"chunk_size"`
	ChunkOverlap int         `json:"chunk_overlap"`
	Pages        *PageCounts `json:"pages,omitempty"`
}

type Info struct {
	Backend      string
	Model        string
	ChunkSize    int
	ChunkOverlap int
}

type Collector struct {
	index   IndexCounter
	library Library
	pages   PageCounter
	info    Info
}

// NewCollector builds a Collector. pages may be nil when no ledger is
// configured.
func NewCollector(index IndexCounter, library Library, pages PageCounter, info Info) *Collector {
	return &Collector{index: index, library: library, pages: pages, info: info}
}

func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Mode:         ModeUnindexed,
		Backend:      c.info.Backend,
		Model:        c.info.Model,
		ChunkSize:    c.info.ChunkSize,
		ChunkOverlap: c.info.ChunkOverlap,
	}

	n, err := c.index.Count(ctx)
	if err != nil {
		return snap, fmt.Errorf("count records: %w", err)
	}
	snap.Records = n
	if n > 0 {
		snap.Mode = ModeReady
	}

	if c.library != nil {
		docs, err := c.library.Load()
		switch {
		case errors.Is(err, docstore.ErrNoCache):
		case err != nil:
			return snap, fmt.Errorf("load documents: %w", err)
		default:
			snap.Documents = len(docs)
		}
	}

	if c.pages != nil {
		counts, err := c.pages.CountByStatus(ctx)
		if err != nil {
			return snap, fmt.Errorf("count pages: %w", err)
		}
		snap.Pages = &PageCounts{Completed: counts["completed"], Failed: counts["failed"]}
	}
	return snap, nil
}
