// Package docstore persists scraped documentation pages as a JSON cache.
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

var ErrNoCache = errors.New("document cache not found")

type Document struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Section   string    `json:"section"`
	Type      string    `json:"type"`
	ScrapedAt time.Time `json:"scraped_at"`
}

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *Store) Load() ([]Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoCache, s.path)
		}
		return nil, fmt.Errorf("read document cache: %w", err)
	}

	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode document cache %s: %w", s.path, err)
	}
	return docs, nil
}

// Save replaces the cache atomically.
func (s *Store) Save(docs []Document) error {
	if docs == nil {
		docs = []Document{}
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".docs-*.json")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace document cache: %w", err)
	}
	return nil
}

// Merge replaces documents in base that share a URL with one in updates and
// appends the rest. Order of base is preserved.
func Merge(base, updates []Document) []Document {
	pos := make(map[string]int, len(base))
	out := make([]Document, len(base))
	copy(out, base)
	for i, d := range out {
		pos[d.URL] = i
	}
	for _, d := range updates {
		if i, ok := pos[d.URL]; ok {
			out[i] = d
			continue
		}
		pos[d.URL] = len(out)
		out = append(out, d)
	}
	return out
}

// Find returns the document with the given URL.
func Find(docs []Document, url string) (Document, bool) {
	for _, d := range docs {
		if d.URL == url {
			return d, true
		}
	}
	return Document{}, false
}
