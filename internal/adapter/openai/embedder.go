// Package openai embeds text through the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const DefaultModel = string(openai.SmallEmbedding3)

type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbedder builds an embedder. baseURL may point at any compatible API;
// empty keeps the OpenAI default.
func NewEmbedder(apiKey, model, baseURL string) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Embedder{client: openai.NewClientWithConfig(cfg), model: openai.EmbeddingModel(model)}
}

func (e *Embedder) ModelName() string { return string(e.model) }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// The API reports each vector's input position.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
