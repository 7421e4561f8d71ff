package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localrag/localrag/db"
	"github.com/localrag/localrag/internal/api"
	"github.com/localrag/localrag/internal/answer"
	"github.com/localrag/localrag/internal/chunkstore"
	"github.com/localrag/localrag/internal/config"
	"github.com/localrag/localrag/internal/document"
	"github.com/localrag/localrag/internal/ingest"
	"github.com/localrag/localrag/internal/llm"
	"github.com/localrag/localrag/internal/task"
)

// Setup builds the application from configuration. On error everything
// already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	pool, err := providePool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	embedder, err := chunkstore.NewGeminiEmbedder(ctx, cfg.EmbedderModel)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	chunks, err := chunkstore.New(pool, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chunk store: %w", err)
	}

	catalog, err := document.NewCatalog(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating document catalog: %w", err)
	}

	splitter := ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	engine, err := ingest.NewEngine(catalog, chunks, splitter, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ingestion engine: %w", err)
	}
	a.Engine = engine

	client, err := llm.NewGemini(ctx, llm.GeminiConfig{
		Model:       cfg.ModelName,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating generation client: %w", err)
	}

	rewriter, err := answer.NewRewriter(client, logger)
	if err != nil {
		return nil, fmt.Errorf("creating rewriter: %w", err)
	}

	pipeline, err := answer.NewPipeline(rewriter, chunks, client, cfg.SearchTopK, logger)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	a.Pipeline = pipeline

	executor, err := task.NewExecutor(
		task.NewStore(pool, logger),
		task.NewPostgresConversations(pool, logger),
		pipeline,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("creating executor: %w", err)
	}
	a.Executor = executor

	server, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Engine:      engine,
		Executor:    executor,
		Pool:        pool,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	a.Server = server

	return a, nil
}

// providePool migrates the schema and opens the connection pool.
func providePool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
