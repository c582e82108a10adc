// Package answer turns retrieval results into the response shown by the CLI
// and the web chat.
package answer

import (
	"context"
	"errors"
	"fmt"

	"opensim-assistant/internal/retrieval"
)

const (
	StatusOK        = "ok"
	StatusNoResults = "no_results"
	StatusNotReady  = "not_ready"
)

const (
	NoResultsMessage = "I couldn't find any relevant documentation about that topic."
	NotReadyMessage  = `The documentation index is not ready yet. Run "opensim-assistant index" first.`
)

type Source struct {
	Title   string  `json:"title"`
	URL     string  `json:"source"`
	Section string  `json:"section"`
	Type    string  `json:"type"`
	Score   float32 `json:"score"`
}

type Passage struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
}

type Response struct {
	Status   string    `json:"status"`
	Answer   string    `json:"answer"`
	Sources  []Source  `json:"sources"`
	Passages []Passage `json:"passages,omitempty"`
}

type Retriever interface {
	Answer(ctx context.Context, question string, k int) (*retrieval.Result, error)
}

type Service struct {
	Retriever Retriever
	K         int
}

func NewService(r Retriever, k int) *Service {
	return &Service{Retriever: r, K: k}
}

// Ask answers question with the best matching passage and cites every hit.
// An unindexed store yields a not_ready response, not an error.
func (s *Service) Ask(ctx context.Context, question string) (Response, error) {
	res, err := s.Retriever.Answer(ctx, question, s.K)
	if errors.Is(err, retrieval.ErrNotReady) {
		return Response{Status: StatusNotReady, Answer: NotReadyMessage, Sources: []Source{}}, nil
	}
	if err != nil {
		return Response{}, err
	}
	return Format(res), nil
}

func Format(res *retrieval.Result) Response {
	if res.Empty() {
		return Response{Status: StatusNoResults, Answer: NoResultsMessage, Sources: []Source{}}
	}

	resp := Response{
		Status:   StatusOK,
		Answer:   fmt.Sprintf("Here's what I found about '%s':\n\n%s", res.Question, res.Hits[0].Text),
		Sources:  make([]Source, 0, len(res.Hits)),
		Passages: make([]Passage, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		src := Source{
			Title:   h.Meta.Title,
			URL:     h.Meta.URL,
			Section: h.Meta.Section,
			Type:    h.Meta.Type,
			Score:   h.Score,
		}
		resp.Sources = append(resp.Sources, src)
		resp.Passages = append(resp.Passages, Passage{Text: h.Text, Source: src})
	}
	return resp
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
