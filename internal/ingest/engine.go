// Package ingest turns uploaded files into content-addressed, chunked,
// indexed catalog records.
//
// Ordering rules keep the catalog authoritative at every step: new chunks
// are indexed before the catalog record is committed, and stale chunks are
// removed only after the commit succeeds. A failure mid-ingestion leaves the
// previous record and its chunks intact and queryable; at worst the chunk
// store temporarily holds orphaned chunks, which degrade retrieval quality
// but never catalog correctness.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/localrag/localrag/internal/chunkstore"
	"github.com/localrag/localrag/internal/document"
)

// Outcome describes what an ingestion did to the catalog.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// ChunkStore is the slice of the chunk store the engine needs.
type ChunkStore interface {
	Add(ctx context.Context, chunks []chunkstore.Chunk) ([]string, error)
	Delete(ctx context.Context, ids []string) error
}

// Catalog is the slice of the document catalog the engine needs.
type Catalog interface {
	ByIdentityHash(ctx context.Context, identityHash string) (*document.Document, error)
	ByID(ctx context.Context, id uuid.UUID) (*document.Document, error)
	Create(ctx context.Context, doc *document.Document) error
	Replace(ctx context.Context, identityHash, content, contentHash string, chunkIDs []string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts document.ListOptions) ([]document.Document, int, error)
}

// Result reports a single file's ingestion.
type Result struct {
	Outcome    Outcome
	DocumentID uuid.UUID
	ChunkCount int
}

// Engine orchestrates extraction, splitting, indexing and cataloging.
type Engine struct {
	catalog  Catalog
	chunks   ChunkStore
	splitter *Splitter
	logger   *slog.Logger
}

// NewEngine creates an ingestion engine.
func NewEngine(catalog Catalog, chunks ChunkStore, splitter *Splitter, logger *slog.Logger) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if chunks == nil {
		return nil, fmt.Errorf("chunk store is required")
	}
	if splitter == nil {
		splitter = NewSplitter(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{catalog: catalog, chunks: chunks, splitter: splitter, logger: logger}, nil
}

// Ingest processes one uploaded file identified by its filename.
//
// Re-ingesting a file whose extracted text is unchanged is a no-op on both
// the catalog and the chunk store. Changed content replaces the record's
// chunk set entirely: afterward none of the old chunk ids remain indexed and
// the record's chunk_ids equals exactly the new set.
func (e *Engine) Ingest(ctx context.Context, r io.Reader, filename string) (Result, error) {
	docType, err := typeForExtension(filename)
	if err != nil {
		return Result{}, err
	}

	text, err := extractText(r, docType)
	if err != nil {
		return Result{}, err
	}

	identityHash := document.IdentityHash(docType, filename)
	contentHash := document.ContentHash(text)

	existing, err := e.catalog.ByIdentityHash(ctx, identityHash)
	if err != nil && !errors.Is(err, document.ErrNotFound) {
		return Result{}, fmt.Errorf("looking up document %q: %w", filename, err)
	}

	if existing != nil && existing.ContentHash == contentHash {
		e.logger.Info("document unchanged", "title", filename)
		return Result{
			Outcome:    OutcomeUnchanged,
			DocumentID: existing.ID,
			ChunkCount: len(existing.ChunkIDs),
		}, nil
	}

	pieces := e.splitter.Split(text)
	chunks := make([]chunkstore.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = chunkstore.Chunk{
			Content: p,
			Source:  filename,
		}
	}

	// Index new chunks before touching the catalog record. A failure here
	// leaves the old record and its chunks intact and queryable.
	chunkIDs, err := e.chunks.Add(ctx, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("indexing chunks for %q: %w", filename, err)
	}
	if chunkIDs == nil {
		// An empty document is a valid record with no chunks; the catalog
		// column is non-null.
		chunkIDs = []string{}
	}

	if existing != nil {
		if err := e.catalog.Replace(ctx, identityHash, text, contentHash, chunkIDs); err != nil {
			return Result{}, fmt.Errorf("replacing document %q: %w", filename, err)
		}

		// Old chunks are deleted only after the commit. Failure here is
		// non-fatal: orphaned chunks degrade retrieval quality, not catalog
		// correctness.
		if len(existing.ChunkIDs) > 0 {
			if err := e.chunks.Delete(ctx, existing.ChunkIDs); err != nil {
				e.logger.Warn("deleting stale chunks failed, leaving orphans",
					"title", filename, "count", len(existing.ChunkIDs), "error", err)
			}
		}

		e.logger.Info("document updated", "title", filename, "chunks", len(chunkIDs))
		return Result{
			Outcome:    OutcomeUpdated,
			DocumentID: existing.ID,
			ChunkCount: len(chunkIDs),
		}, nil
	}

	doc := &document.Document{
		IdentityHash: identityHash,
		ContentHash:  contentHash,
		Title:        filename,
		Type:         docType,
		Metadata:     map[string]string{"source": filename},
		Content:      text,
		ChunkIDs:     chunkIDs,
	}
	if err := e.catalog.Create(ctx, doc); err != nil {
		return Result{}, fmt.Errorf("creating document %q: %w", filename, err)
	}

	e.logger.Info("document created", "title", filename, "chunks", len(chunkIDs))
	return Result{
		Outcome:    OutcomeCreated,
		DocumentID: doc.ID,
		ChunkCount: len(chunkIDs),
	}, nil
}

// File is one member of an upload batch.
type File struct {
	Name   string
	Reader io.Reader
}

// FileResult is the per-file outcome of a batch ingestion.
type FileResult struct {
	Name   string
	Result Result
	Err    error
}

// IngestBatch ingests each file in order. One file's failure never aborts
// the rest of the batch; callers get a per-file error detail.
func (e *Engine) IngestBatch(ctx context.Context, files []File) []FileResult {
	results := make([]FileResult, 0, len(files))
	for _, f := range files {
		res, err := e.Ingest(ctx, f.Reader, f.Name)
		results = append(results, FileResult{Name: f.Name, Result: res, Err: err})
	}
	return results
}

// Delete removes a document and its indexed chunks.
//
// Chunk deletion runs before record deletion, so a crash between the two
// never leaves a catalog record pointing at missing chunks; it leaves
// temporarily-orphaned chunks instead, which a retried delete cannot
// re-orphan (chunk deletes are idempotent).
func (e *Engine) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := e.catalog.ByID(ctx, id)
	if err != nil {
		return err
	}

	if len(doc.ChunkIDs) > 0 {
		if err := e.chunks.Delete(ctx, doc.ChunkIDs); err != nil {
			return fmt.Errorf("deleting chunks for %q: %w", doc.Title, err)
		}
	}

	if err := e.catalog.Delete(ctx, id); err != nil {
		return err
	}

	e.logger.Info("document deleted", "id", id, "title", doc.Title)
	return nil
}

// List returns a page of catalog records plus the total count.
func (e *Engine) List(ctx context.Context, opts document.ListOptions) ([]document.Document, int, error) {
	return e.catalog.List(ctx, opts)
}
