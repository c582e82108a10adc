// Package embedding selects an embedding provider and enforces the input and
// output contract every provider must meet.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"opensim-assistant/internal/adapter/gemini"
	"opensim-assistant/internal/adapter/hashembed"
	"opensim-assistant/internal/adapter/ollama"
	"opensim-assistant/internal/adapter/openai"
	"opensim-assistant/internal/config"
)

var (
	ErrEmptyInput    = errors.New("embedding input is empty")
	ErrInputTooLong  = errors.New("embedding input exceeds the model limit")
	ErrBadResponse   = errors.New("embedding provider returned a malformed response")
	ErrUnknownVendor = errors.New("unknown embedding provider")
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// Guard wraps an Embedder with input length and response shape checks.
// MaxTokens is approximated as four runes per token; zero disables the check.
type Guard struct {
	next      Embedder
	maxTokens int
}

func NewGuard(next Embedder, maxTokens int) *Guard {
	return &Guard{next: next, maxTokens: maxTokens}
}

func (g *Guard) ModelName() string { return g.next.ModelName() }

// Unwrap returns the provider behind the guard.
func (g *Guard) Unwrap() Embedder { return g.next }

// Close releases the provider's client when it holds one.
func (g *Guard) Close() error {
	if c, ok := g.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (g *Guard) check(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if g.maxTokens > 0 {
		if n := utf8.RuneCountInString(text); n > g.maxTokens*4 {
			return fmt.Errorf("%w: ~%d tokens, limit %d", ErrInputTooLong, (n+3)/4, g.maxTokens)
		}
	}
	return nil
}

func (g *Guard) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := g.check(text); err != nil {
		return nil, err
	}
	vec, err := g.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrBadResponse)
	}
	return vec, nil
}

func (g *Guard) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if err := g.check(t); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := g.next.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d inputs", ErrBadResponse, len(vecs), len(texts))
	}
	dims := len(vecs[0])
	for i, v := range vecs {
		if len(v) == 0 || len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dims, want %d", ErrBadResponse, i, len(v), dims)
		}
	}
	return vecs, nil
}

// New builds the configured provider wrapped in a Guard.
func New(ctx context.Context, cfg *config.Config) (*Guard, error) {
	var e Embedder
	switch cfg.EmbeddingProvider {
	case config.ProviderOllama:
		e = ollama.NewEmbedder(ollama.Config{BaseURL: cfg.OllamaURL, Model: cfg.EmbeddingModel})
	case config.ProviderGemini:
		g, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		e = g
	case config.ProviderOpenAI:
		e = openai.NewEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, "")
	case config.ProviderHash:
		e = hashembed.New(hashembed.DefaultDims)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, cfg.EmbeddingProvider)
	}
	return NewGuard(e, cfg.EmbeddingMaxTokens), nil
}
