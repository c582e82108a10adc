// Package retrieval builds the documentation index and answers questions
// from it.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"opensim-assistant/internal/docstore"
	"opensim-assistant/internal/middleware"
	"opensim-assistant/internal/text"
	"opensim-assistant/internal/vector"
)

const (
	DefaultTopK      = 4
	DefaultBatchSize = 64
)

var (
	ErrNotReady    = errors.New("documentation index is not ready")
	ErrNoDocuments = errors.New("no documents to index")
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker returns the indices of docs ordered by relevance to query.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}

// Result holds the hits for one question, best first.
type Result struct {
	Question string
	Hits     []vector.Hit
}

func (r *Result) Empty() bool { return r == nil || len(r.Hits) == 0 }

type BuildStats struct {
	Documents int
	Chunks    int
	Duration  time.Duration
}

type Retriever struct {
	embedder  Embedder
	index     vector.Index
	chunker   *text.Chunker
	reranker  Reranker
	logger    *QueryLogger
	minScore  float32
	batchSize int
}

type Option func(*Retriever)

func WithChunker(c *text.Chunker) Option    { return func(r *Retriever) { r.chunker = c } }
func WithReranker(rr Reranker) Option       { return func(r *Retriever) { r.reranker = rr } }
func WithQueryLogger(l *QueryLogger) Option { return func(r *Retriever) { r.logger = l } }
func WithMinScore(s float32) Option         { return func(r *Retriever) { r.minScore = s } }

func WithBatchSize(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func New(e Embedder, idx vector.Index, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:  e,
		index:     idx,
		chunker:   text.DefaultChunker(),
		batchSize: DefaultBatchSize,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Ready reports whether the index holds anything to answer from.
func (r *Retriever) Ready(ctx context.Context) (bool, error) {
	n, err := r.index.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count index records: %w", err)
	}
	return n > 0, nil
}

// BuildIndex chunks, embeds and stores every document. Records are appended,
// so building twice without a reset leaves duplicates.
func (r *Retriever) BuildIndex(ctx context.Context, docs []docstore.Document) (BuildStats, error) {
	start := time.Now()
	var stats BuildStats
	if len(docs) == 0 {
		return stats, ErrNoDocuments
	}

	var pending []vector.Record
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		texts := make([]string, len(pending))
		for i, p := range pending {
			texts[i] = p.Text
		}
		vecs, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		for i := range pending {
			pending[i].Vector = vecs[i]
		}
		if err := r.index.Add(ctx, pending); err != nil {
			return fmt.Errorf("add records: %w", err)
		}
		stats.Chunks += len(pending)
		slog.DebugContext(ctx, "indexed batch", "size", len(pending), "total", stats.Chunks)
		pending = nil
		return nil
	}

	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			slog.WarnContext(ctx, "skipping empty document", "url", d.URL)
			continue
		}
		stats.Documents++
		for ch := range r.chunker.Split(d.URL, d.Text) {
			if strings.TrimSpace(ch.Text) == "" {
				continue
			}
			pending = append(pending, vector.Record{
				Text: ch.Text,
				Meta: vector.Meta{
					URL:        d.URL,
					Title:      d.Title,
					Section:    d.Section,
					Type:       d.Type,
					ChunkIndex: ch.Index,
					Offset:     ch.Offset,
				},
			})
			if len(pending) >= r.batchSize {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}
	if stats.Chunks == 0 {
		return stats, ErrNoDocuments
	}
	if m, ok := r.index.(vector.BuildMarker); ok {
		if err := m.MarkBuilt(ctx); err != nil {
			return stats, fmt.Errorf("mark index built: %w", err)
		}
	}

	stats.Duration = time.Since(start)
	slog.InfoContext(ctx, "index built",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"duration", stats.Duration)
	return stats, nil
}

// EnsureIndex builds the index unless a completed one is already present.
// With force the existing records are dropped first. Records left by an
// unfinished build are discarded before building, and a failed build resets
// the index so it is never served half written. built reports whether a
// build ran.
func (r *Retriever) EnsureIndex(ctx context.Context, load func() ([]docstore.Document, error), force bool) (stats BuildStats, built bool, err error) {
	if !force {
		exists, err := r.index.Exists(ctx)
		if err != nil {
			return stats, false, fmt.Errorf("check index: %w", err)
		}
		if exists {
			slog.InfoContext(ctx, "index already present, skipping build")
			return stats, false, nil
		}
		n, err := r.index.Count(ctx)
		if err != nil {
			return stats, false, fmt.Errorf("count index records: %w", err)
		}
		if n > 0 {
			slog.WarnContext(ctx, "discarding records of an unfinished build", "records", n)
			force = true
		}
	}
	if force {
		if err := r.index.Reset(ctx); err != nil {
			return stats, false, fmt.Errorf("reset index: %w", err)
		}
	}

	docs, err := load()
	if err != nil {
		return stats, false, fmt.Errorf("load documents: %w", err)
	}
	stats, err = r.BuildIndex(ctx, docs)
	if err != nil {
		if rerr := r.index.Reset(context.WithoutCancel(ctx)); rerr != nil {
			slog.ErrorContext(ctx, "failed to reset index after build error", "error", rerr)
		}
		return stats, false, err
	}
	return stats, true, nil
}

// Answer returns up to k chunks closest to question. A blank question yields
// an empty result rather than an error.
func (r *Retriever) Answer(ctx context.Context, question string, k int) (*Result, error) {
	start := time.Now()
	q := strings.TrimSpace(question)
	res := &Result{Question: q}
	if q == "" {
		return res, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}

	ready, err := r.Ready(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, ErrNotReady
	}

	vec, err := r.embedder.Embed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := r.index.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	if r.minScore > 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Score >= r.minScore {
				kept = append(kept, h)
			}
		}
		hits = kept
	}

	reranked := false
	if r.reranker != nil && len(hits) > 1 {
		hits, err = r.rerank(ctx, q, hits)
		if err != nil {
			return nil, err
		}
		reranked = true
	}
	res.Hits = hits

	if r.logger != nil {
		entry := newQueryLogEntry(q, k, hits, time.Since(start))
		entry.CorrelationID = middleware.GetCorrelationID(ctx)
		entry.Reranked = reranked
		r.logger.Log(entry)
	}
	return res, nil
}

func (r *Retriever) rerank(ctx context.Context, q string, hits []vector.Hit) ([]vector.Hit, error) {
	contents := make([]string, len(hits))
	for i, h := range hits {
		contents[i] = h.Text
	}

	indices, err := r.reranker.Rerank(ctx, q, contents)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	seen := make(map[int]bool, len(indices))
	reranked := make([]vector.Hit, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(hits) || seen[idx] {
			continue
		}
		seen[idx] = true
		reranked = append(reranked, hits[idx])
	}
	return reranked, nil
}
