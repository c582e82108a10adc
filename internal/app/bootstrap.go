package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"opensim-assistant/features/page"
	"opensim-assistant/features/stats"
	"opensim-assistant/internal/adapter/bolt"
	"opensim-assistant/internal/adapter/qdrant"
	"opensim-assistant/internal/adapter/reranker"
	wstore "opensim-assistant/internal/adapter/weaviate"
	"opensim-assistant/internal/answer"
	"opensim-assistant/internal/config"
	"opensim-assistant/internal/docstore"
	"opensim-assistant/internal/embedding"
	"opensim-assistant/internal/retrieval"
	"opensim-assistant/internal/text"
	"opensim-assistant/internal/vector"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// SchemaEnsurer is a store that must create its schema before first use.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Pinger is a remote dependency that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Config    *config.Config
	DB        *sql.DB
	Index     vector.Index
	Embedder  *embedding.Guard
	Chunker   *text.Chunker
	Docs      *docstore.Store
	Pages     *page.PostgresRepo
	Retriever *retrieval.Retriever
	QueryLog  *retrieval.QueryLogger
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Docs: docstore.New(cfg.DocsPath())}
	ok := false
	defer func() {
		if !ok {
			if err := deps.Close(); err != nil {
				slog.WarnContext(ctx, "failed to release partial dependencies", "error", err)
			}
		}
	}()

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// Crawl ledger
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(ctx, cfg, retryDelay)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		deps.Pages = page.NewPostgresRepo(db)
	}

	chunker, err := text.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	deps.Chunker = chunker

	idx, err := openIndex(ctx, cfg, retryDelay)
	if err != nil {
		return nil, err
	}
	deps.Index = idx

	emb, err := embedding.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder error: %w", err)
	}
	deps.Embedder = emb

	opts := []retrieval.Option{
		retrieval.WithChunker(chunker),
		retrieval.WithMinScore(cfg.MinScore),
		retrieval.WithBatchSize(cfg.EmbedBatchSize),
	}
	if cfg.QueryLogPath != "" {
		ql, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
		if err != nil {
			slog.WarnContext(ctx, "failed to create query logger, falling back to stderr", "error", err)
			ql = retrieval.NewQueryLogger(os.Stderr)
		}
		deps.QueryLog = ql
		opts = append(opts, retrieval.WithQueryLogger(ql))
	}
	if cfg.RerankProvider != "" && cfg.RerankProvider != reranker.ProviderNone {
		opts = append(opts, retrieval.WithReranker(reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey)))
	}
	deps.Retriever = retrieval.New(emb, idx, opts...)

	ok = true
	return deps, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := withRetry(ctx, "ping db", cfg.BootstrapRetryAttempts, retryDelay, db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("migration up error: %w", err)
	}
	return db, nil
}

func openIndex(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (vector.Index, error) {
	switch cfg.IndexBackend {
	case config.BackendBolt:
		path := cfg.IndexFile()
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		idx, err := bolt.Open(path)
		if err != nil {
			return nil, err
		}
		return idx, nil

	case config.BackendWeaviate:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		store := wstore.NewStore(client, cfg.Collection)
		if err := EnsureSchemaWithRetry(ctx, store, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		return store, nil

	case config.BackendQdrant:
		store, err := qdrant.Dial(cfg.QdrantAddr, cfg.Collection)
		if err != nil {
			return nil, err
		}
		if err := PingWithRetry(ctx, store, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			store.Close()
			return nil, fmt.Errorf("qdrant ping error: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: INDEX_BACKEND %q", config.ErrInvalid, cfg.IndexBackend)
}

// EnsureSchemaWithRetry delegates schema check to a helper with retry logic.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	return withRetry(ctx, "ensure schema", attempts, delay, store.EnsureSchema)
}

func PingWithRetry(ctx context.Context, p Pinger, attempts int, delay time.Duration) error {
	return withRetry(ctx, "ping", attempts, delay, p.Ping)
}

func withRetry(ctx context.Context, op string, attempts int, delay time.Duration, fn func(context.Context) error) error {
	attempts = max(attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		slog.WarnContext(ctx, "dependency not ready, retrying...", "op", op, "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// Close releases everything Bootstrap opened. It is safe on a partial set.
func (d *Dependencies) Close() error {
	var errs []error
	if d.Index != nil {
		errs = append(errs, d.Index.Close())
	}
	if d.Embedder != nil {
		errs = append(errs, d.Embedder.Close())
	}
	if d.QueryLog != nil {
		errs = append(errs, d.QueryLog.Close())
	}
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
	}
	return errors.Join(errs...)
}

// Answerer is the shared question-answering service for the CLI and web.
func (d *Dependencies) Answerer() *answer.Service {
	return answer.NewService(d.Retriever, d.Config.TopK)
}

func (d *Dependencies) Stats() *stats.Collector {
	var pages stats.PageCounter
	if d.Pages != nil {
		pages = d.Pages
	}
	return stats.NewCollector(d.Index, d.Docs, pages, stats.Info{
		Backend:      d.Config.IndexBackend,
		Model:        d.Embedder.ModelName(),
		ChunkSize:    d.Chunker.Size(),
		ChunkOverlap: d.Chunker.Overlap(),
	})
}
