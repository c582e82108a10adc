package config_test

import (
	"errors"
	"testing"

	"opensim-assistant/internal/config"

	"github.com/stretchr/testify/assert"
)

func validConfig() config.Config {
	return config.Config{
		IndexBackend:       config.BackendBolt,
		EmbeddingProvider:  config.ProviderHash,
		EmbeddingModel:     "hash-384",
		EmbeddingMaxTokens: 512,
		ChunkSize:          1000,
		ChunkOverlap:       200,
		TopK:               4,
		SourceURLs:         []string{"https://simtk.org/projects/opensim"},
		RerankProvider:     "none",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
		errIs   error
	}{
		{
			name:    "Valid Config",
			mutate:  func(c *config.Config) {},
			wantErr: false,
		},
		{
			name:    "Unknown Backend",
			mutate:  func(c *config.Config) { c.IndexBackend = "chroma" },
			wantErr: true,
			errIs:   config.ErrInvalid,
		},
		{
			name:    "Unknown Provider",
			mutate:  func(c *config.Config) { c.EmbeddingProvider = "huggingface" },
			wantErr: true,
			errIs:   config.ErrInvalid,
		},
		{
			name:    "Gemini Without Key",
			mutate:  func(c *config.Config) { c.EmbeddingProvider = config.ProviderGemini },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "OpenAI Without Key",
			mutate:  func(c *config.Config) { c.EmbeddingProvider = config.ProviderOpenAI },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Overlap Not Below Size",
			mutate:  func(c *config.Config) { c.ChunkOverlap = 1000 },
			wantErr: true,
			errIs:   config.ErrInvalid,
		},
		{
			name:    "Chunk Larger Than Model Limit",
			mutate:  func(c *config.Config) { c.ChunkSize = 4000 },
			wantErr: true,
			errIs:   config.ErrInvalid,
		},
		{
			name:    "No Sources",
			mutate:  func(c *config.Config) { c.SourceURLs = nil },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Reranker Without Key",
			mutate:  func(c *config.Config) { c.RerankProvider = "jina" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errIs != nil {
					assert.True(t, errors.Is(err, tt.errIs))
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
