package retrieval

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"opensim-assistant/internal/vector"
)

// QueryLogEntry is one line of the query log.
type QueryLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	Query         string    `json:"query"`
	K             int       `json:"k"`
	NumResults    int       `json:"num_results"`
	TopScore      float32   `json:"top_score"`
	TopURL        string    `json:"top_url,omitempty"`
	Sources       []string  `json:"sources,omitempty"`
	Reranked      bool      `json:"reranked,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
}

// newQueryLogEntry summarises an answered question. Sources keep hit order
// and drop repeated URLs.
func newQueryLogEntry(q string, k int, hits []vector.Hit, elapsed time.Duration) QueryLogEntry {
	e := QueryLogEntry{
		Query:      q,
		K:          k,
		NumResults: len(hits),
		LatencyMs:  elapsed.Milliseconds(),
	}
	if len(hits) == 0 {
		return e
	}
	e.TopScore = hits[0].Score
	e.TopURL = hits[0].Meta.URL

	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if !seen[h.Meta.URL] {
			seen[h.Meta.URL] = true
			e.Sources = append(e.Sources, h.Meta.URL)
		}
	}
	return e
}

// QueryLogger appends one JSON object per answered question. It is safe for
// concurrent use.
type QueryLogger struct {
	mu   sync.Mutex
	enc  *json.Encoder
	file *os.File
	now  func() time.Time
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w), now: time.Now}
}

// NewFileQueryLogger opens path for appending, creating parent directories.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create query log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, fmt.Errorf("open query log: %w", err)
	}
	l := NewQueryLogger(f)
	l.file = f
	return l, nil
}

func (l *QueryLogger) Log(entry QueryLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(entry); err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}

func (l *QueryLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
