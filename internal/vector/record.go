// Package vector defines the embedding records held by an index and the
// contract every index backend implements.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidRecord     = errors.New("invalid embedding record")
)

// Meta ties a record back to the page it was cut from.
type Meta struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Section    string `json:"section"`
	Type       string `json:"type"`
	ChunkIndex int    `json:"chunk_index"`
	Offset     int    `json:"offset"`
}

type Record struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
	Meta   Meta      `json:"meta"`
}

// Validate checks the record against the dimensionality of the index.
func (r Record) Validate(dims int) error {
	if r.Text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidRecord)
	}
	if r.Meta.URL == "" {
		return fmt.Errorf("%w: missing source url", ErrInvalidRecord)
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidRecord)
	}
	if dims > 0 && len(r.Vector) != dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(r.Vector), dims)
	}
	return nil
}

// Hit is a query match. Score is cosine similarity, higher is closer.
type Hit struct {
	Record
	Score float32 `json:"score"`
}

type Index interface {
	// Add appends records. It never deduplicates.
	Add(ctx context.Context, records []Record) error
	// Query returns at most k hits ordered best first.
	Query(ctx context.Context, vec []float32, k int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	// Exists reports whether a completed index is present.
	Exists(ctx context.Context) (bool, error)
	// Reset drops every record.
	Reset(ctx context.Context) error
	Close() error
}

// BuildMarker is an index that persists a flag once a build has finished.
// Exists on such an index reports that flag rather than raw record presence.
type BuildMarker interface {
	MarkBuilt(ctx context.Context) error
}

// ValidateBatch checks records share one dimensionality and returns it.
func ValidateBatch(records []Record, dims int) (int, error) {
	for i, r := range records {
		if dims == 0 {
			dims = len(r.Vector)
		}
		if err := r.Validate(dims); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return dims, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
