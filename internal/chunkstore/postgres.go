package chunkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store is the pgvector-backed chunk index.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger
}

// New creates a chunk store.
func New(pool *pgxpool.Pool, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// Add embeds and indexes the given chunks, returning their generated ids in
// input order. The insert is transactional: either every chunk is indexed or
// none are.
func (s *Store) Add(ctx context.Context, chunks []Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %v", ErrStore, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, len(chunks))
	now := time.Now().UTC()
	for i, c := range chunks {
		id := uuid.New()
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: marshaling metadata: %v", ErrStore, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO chunks (id, content, embedding, source, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, c.Content, pgvector.NewVector(vectors[i]), c.Source, metadata, now)
		if err != nil {
			return nil, fmt.Errorf("%w: inserting chunk: %v", ErrStore, err)
		}
		ids[i] = id.String()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: committing chunks: %v", ErrStore, err)
	}

	s.logger.Debug("indexed chunks", "count", len(ids), "source", chunks[0].Source)
	return ids, nil
}

// Delete removes the chunks with the given ids. Unknown ids are ignored, so
// a retried delete is idempotent.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return fmt.Errorf("%w: deleting %d chunks: %v", ErrStore, len(ids), err)
	}

	s.logger.Debug("deleted chunks", "count", len(ids))
	return nil
}

// Search returns the passages most similar to the query, ordered by
// similarity. The search runs under a bounded timeout; callers can detect a
// timeout with errors.Is(err, context.DeadlineExceeded).
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Passage, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vectors, err := s.embedder.Embed(queryCtx, []string{query})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("%w: embedding query: %v", ErrStore, err)
	}
	embedding := pgvector.NewVector(vectors[0])

	rows, err := s.pool.Query(queryCtx,
		`SELECT content, source, 1 - (embedding <=> $1) AS similarity
		FROM chunks
		ORDER BY embedding <=> $1
		LIMIT $2`,
		embedding, cfg.topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timeout: %w", err)
		}
		return nil, fmt.Errorf("%w: searching chunks: %v", ErrStore, err)
	}
	defer rows.Close()

	var passages []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.Text, &p.Source, &p.Score); err != nil {
			return nil, fmt.Errorf("%w: scanning passage: %v", ErrStore, err)
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timeout: %w", err)
		}
		return nil, fmt.Errorf("%w: reading passages: %v", ErrStore, err)
	}

	return passages, nil
}
