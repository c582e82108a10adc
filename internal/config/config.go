package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

const (
	BackendBolt     = "bolt"
	BackendWeaviate = "weaviate"
	BackendQdrant   = "qdrant"

	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

type Config struct {
	// Storage
	DataDir      string `envconfig:"DATA_DIR" default:"data" toml:"data_dir"`
	DocsFile     string `envconfig:"DOCS_FILE" default:"opensim_docs.json" toml:"docs_file"`
	IndexBackend string `envconfig:"INDEX_BACKEND" default:"bolt" toml:"index_backend"`
	IndexPath    string `envconfig:"INDEX_PATH" default:"opensim_index.db" toml:"index_path"`
	Collection   string `envconfig:"COLLECTION" default:"OpenSimChunk" toml:"collection"`

	// Embedding
	EmbeddingProvider  string `envconfig:"EMBEDDING_PROVIDER" default:"ollama" toml:"embedding_provider"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL" default:"all-minilm" toml:"embedding_model"`
	EmbeddingMaxTokens int    `envconfig:"EMBEDDING_MAX_TOKENS" default:"512" toml:"embedding_max_tokens"`
	OllamaURL          string `envconfig:"OLLAMA_URL" default:"http://localhost:11434" toml:"ollama_url"`
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY" toml:"gemini_api_key"`
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY" toml:"openai_api_key"`

	// Retrieval
	ChunkSize      int     `envconfig:"CHUNK_SIZE" default:"1000" toml:"chunk_size"`
	ChunkOverlap   int     `envconfig:"CHUNK_OVERLAP" default:"200" toml:"chunk_overlap"`
	TopK           int     `envconfig:"TOP_K" default:"4" toml:"top_k"`
	MinScore       float32 `envconfig:"MIN_SCORE" default:"0" toml:"min_score"`
	EmbedBatchSize int     `envconfig:"EMBED_BATCH_SIZE" default:"64" toml:"embed_batch_size"`
	RerankProvider string  `envconfig:"RERANK_PROVIDER" default:"none" toml:"rerank_provider"`
	RerankAPIKey   string  `envconfig:"RERANK_API_KEY" toml:"rerank_api_key"`

	// Scraping
	SourceURLs      []string      `envconfig:"SOURCE_URLS" default:"https://simtk.org/projects/opensim,https://simtk-confluence.stanford.edu/display/OpenSim/User%27s+Guide,https://simtk-confluence.stanford.edu/display/OpenSim/Tutorials" toml:"source_urls"`
	MaxPages        int           `envconfig:"MAX_PAGES" default:"20" toml:"max_pages"`
	MaxDepth        int           `envconfig:"MAX_DEPTH" default:"3" toml:"max_depth"`
	CrawlDelay      time.Duration `envconfig:"CRAWL_DELAY" default:"1s" toml:"-"`
	FetchTimeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s" toml:"-"`
	FetchRetries    int           `envconfig:"FETCH_RETRIES" default:"3" toml:"fetch_retries"`
	CrawlExclusions []string      `envconfig:"CRAWL_EXCLUSIONS" toml:"crawl_exclusions"`
	UserAgent       string        `envconfig:"USER_AGENT" default:"opensim-assistant/1.0 (+https://simtk.org/projects/opensim)" toml:"user_agent"`

	// Remote vector stores
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080" toml:"weaviate_host"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http" toml:"weaviate_scheme"`
	QdrantAddr     string `envconfig:"QDRANT_ADDR" default:"localhost:6334" toml:"qdrant_addr"`

	// Crawl ledger, disabled when DatabaseURL is empty
	DatabaseURL   string `envconfig:"DATABASE_URL" toml:"database_url"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations" toml:"migration_path"`

	// Server
	ServerPort     int           `envconfig:"SERVER_PORT" default:"8000" toml:"server_port"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" toml:"-"`
	QueryLogPath   string        `envconfig:"QUERY_LOG_PATH" default:"data/query.log" toml:"query_log_path"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" toml:"log_level"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" toml:"log_format"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10" toml:"bootstrap_retry_attempts"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2" toml:"bootstrap_retry_delay_seconds"`
}

// Load reads .env, the environment, and then the optional TOML file at path.
// Values present in the file win over the environment.
func Load(path string) (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator supplied flag
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	// Unmarshal only touches keys present in the file.
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	var d fileDurations
	if err := toml.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	for _, f := range []struct {
		raw  string
		dest *time.Duration
		key  string
	}{
		{d.CrawlDelay, &c.CrawlDelay, "crawl_delay"},
		{d.FetchTimeout, &c.FetchTimeout, "fetch_timeout"},
		{d.RequestTimeout, &c.RequestTimeout, "request_timeout"},
	} {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, f.key, err)
		}
		*f.dest = v
	}
	return nil
}

// fileDurations carries duration keys as strings ("1s", "250ms").
type fileDurations struct {
	CrawlDelay     string `toml:"crawl_delay"`
	FetchTimeout   string `toml:"fetch_timeout"`
	RequestTimeout string `toml:"request_timeout"`
}

func (c *Config) Validate() error {
	switch c.IndexBackend {
	case BackendBolt, BackendWeaviate, BackendQdrant:
	default:
		return fmt.Errorf("%w: INDEX_BACKEND %q", ErrInvalid, c.IndexBackend)
	}

	switch c.EmbeddingProvider {
	case ProviderOllama, ProviderHash:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: EMBEDDING_PROVIDER %q", ErrInvalid, c.EmbeddingProvider)
	}

	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EMBEDDING_MODEL", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_SIZE=%d CHUNK_OVERLAP=%d", ErrInvalid, c.ChunkSize, c.ChunkOverlap)
	}
	// Chunks are sized in characters, the model limit in tokens (~4 chars each).
	if c.EmbeddingMaxTokens > 0 && c.ChunkSize > c.EmbeddingMaxTokens*4 {
		return fmt.Errorf("%w: CHUNK_SIZE %d exceeds the model input limit of %d tokens", ErrInvalid, c.ChunkSize, c.EmbeddingMaxTokens)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: TOP_K must be positive", ErrInvalid)
	}
	if len(c.SourceURLs) == 0 {
		return fmt.Errorf("%w: SOURCE_URLS", ErrMissingRequired)
	}
	if c.RerankProvider != "" && c.RerankProvider != "none" && c.RerankAPIKey == "" {
		return fmt.Errorf("%w: RERANK_API_KEY", ErrMissingRequired)
	}
	return nil
}

// DocsPath is the location of the scraped document cache.
func (c *Config) DocsPath() string {
	return c.resolve(c.DocsFile)
}

// IndexFile is the location of the bolt index file.
func (c *Config) IndexFile() string {
	return c.resolve(c.IndexPath)
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}
