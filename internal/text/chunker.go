package text

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// Chunk is a window of a document's text. Offset is counted in runes.
type Chunk struct {
	DocumentURL string
	Text        string
	Offset      int
	Index       int
}

// Chunker cuts text into fixed-size windows where neighbours share Overlap runes.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidChunkConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// DefaultChunker uses 1000 runes with 200 runes of overlap.
func DefaultChunker() *Chunker {
	return &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split yields the chunks of text in order. The sequence is recomputed on
// every range, so it can be iterated more than once.
func (c *Chunker) Split(docURL, text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		runes := []rune(text)
		n := len(runes)
		step := c.size - c.overlap

		for i, start := 0, 0; start < n; i, start = i+1, start+step {
			end := min(start+c.size, n)
			chunk := Chunk{
				DocumentURL: docURL,
				Text:        string(runes[start:end]),
				Offset:      start,
				Index:       i,
			}
			if !yield(chunk) {
				return
			}
			if end == n {
				return
			}
		}
	}
}

// Collect is a convenience for callers that need the whole slice.
func (c *Chunker) Collect(docURL, text string) []Chunk {
	var out []Chunk
	for ch := range c.Split(docURL, text) {
		out = append(out, ch)
	}
	return out
}

// Join rebuilds the source text from chunks produced with the given overlap.
func Join(chunks []Chunk, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch.Text)
			continue
		}
		r := []rune(ch.Text)
		if overlap < len(r) {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}
