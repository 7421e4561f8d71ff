package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// documentCols is the standard SELECT column list for scanDocument.
const documentCols = `id, identity_hash, content_hash, title, document_type,
	metadata, content, chunk_ids, created_at, updated_at`

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// Catalog manages document records backed by PostgreSQL.
type Catalog struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewCatalog creates a document catalog.
func NewCatalog(pool *pgxpool.Pool, logger *slog.Logger) (*Catalog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{pool: pool, logger: logger}, nil
}

// ByIdentityHash returns the document with the given identity hash.
// Returns ErrNotFound when no such document exists.
func (c *Catalog) ByIdentityHash(ctx context.Context, identityHash string) (*Document, error) {
	row := c.pool.QueryRow(ctx,
		`SELECT `+documentCols+` FROM documents WHERE identity_hash = $1`, identityHash)
	return scanDocument(row)
}

// ByID returns the document with the given id.
// Returns ErrNotFound when no such document exists.
func (c *Catalog) ByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := c.pool.QueryRow(ctx,
		`SELECT `+documentCols+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

// Create inserts a new catalog record. The document's ID and timestamps are
// assigned here. A duplicate identity or content hash surfaces as
// ErrPersistence; identity hashes are immutable once assigned.
func (c *Catalog) Create(ctx context.Context, doc *Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	// chunk_ids is non-null; a document without chunks stores an empty array.
	chunkIDs := doc.ChunkIDs
	if chunkIDs == nil {
		chunkIDs = []string{}
	}

	_, err = c.pool.Exec(ctx,
		`INSERT INTO documents (id, identity_hash, content_hash, title, document_type,
			metadata, content, chunk_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID, doc.IdentityHash, doc.ContentHash, doc.Title, string(doc.Type),
		metadata, doc.Content, chunkIDs, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: duplicate hash for %q: %v", ErrPersistence, doc.Title, err)
		}
		return fmt.Errorf("%w: inserting document: %v", ErrPersistence, err)
	}

	c.logger.Debug("created document",
		"id", doc.ID, "title", doc.Title, "chunks", len(doc.ChunkIDs))
	return nil
}

// Replace atomically swaps the content, content hash and chunk set of the
// record identified by identityHash. The record's chunk_ids field and its
// content are updated as a single unit; a reader never observes new content
// with the old chunk set or vice versa.
func (c *Catalog) Replace(ctx context.Context, identityHash, content, contentHash string, chunkIDs []string) error {
	if chunkIDs == nil {
		chunkIDs = []string{}
	}

	tag, err := c.pool.Exec(ctx,
		`UPDATE documents
		SET content = $2, content_hash = $3, chunk_ids = $4, updated_at = $5
		WHERE identity_hash = $1`,
		identityHash, content, contentHash, chunkIDs, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: duplicate content hash: %v", ErrPersistence, err)
		}
		return fmt.Errorf("%w: updating document: %v", ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	c.logger.Debug("replaced document content",
		"identity_hash", identityHash, "chunks", len(chunkIDs))
	return nil
}

// Delete removes a catalog record.
// Returns ErrNotFound when no such document exists.
func (c *Catalog) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting document %s: %v", ErrPersistence, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	c.logger.Debug("deleted document", "id", id)
	return nil
}

// UnboundedPageSize is the page-size sentinel meaning "return everything".
// It is distinct from zero, which means "use the default page size".
const UnboundedPageSize = -1

// DefaultPageSize is applied when ListOptions.PageSize is zero.
const DefaultPageSize = 50

// ListOptions controls catalog listing.
type ListOptions struct {
	// Types restricts results to the given document types. Empty = all.
	Types []Type

	// Offset is the absolute row offset. When zero, Page*PageSize applies.
	Offset int

	// Page is the zero-based page index, used when Offset is zero.
	Page int

	// PageSize is the page length. Zero means DefaultPageSize;
	// UnboundedPageSize disables the limit.
	PageSize int
}

func (o ListOptions) offset() int {
	if o.Offset > 0 {
		return o.Offset
	}
	size := o.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if o.Page > 0 {
		return o.Page * size
	}
	return 0
}

// List returns a page of catalog records plus the total count of records
// matching the type filter.
func (c *Catalog) List(ctx context.Context, opts ListOptions) ([]Document, int, error) {
	types := make([]string, 0, len(opts.Types))
	for _, t := range opts.Types {
		types = append(types, string(t))
	}

	var total int
	countSQL := `SELECT count(*) FROM documents`
	if len(types) > 0 {
		countSQL += ` WHERE document_type = ANY($1)`
	}
	var err error
	if len(types) > 0 {
		err = c.pool.QueryRow(ctx, countSQL, types).Scan(&total)
	} else {
		err = c.pool.QueryRow(ctx, countSQL).Scan(&total)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: counting documents: %v", ErrPersistence, err)
	}

	query := `SELECT ` + documentCols + ` FROM documents`
	args := []any{}
	if len(types) > 0 {
		query += ` WHERE document_type = ANY($1)`
		args = append(args, types)
	}
	query += ` ORDER BY created_at DESC, id`
	query += fmt.Sprintf(` OFFSET $%d`, len(args)+1)
	args = append(args, opts.offset())
	if opts.PageSize != UnboundedPageSize {
		size := opts.PageSize
		if size <= 0 {
			size = DefaultPageSize
		}
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, size)
	}

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: listing documents: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: reading documents: %v", ErrPersistence, err)
	}

	return docs, total, nil
}

// scanDocument scans one documents row.
func scanDocument(row pgx.Row) (*Document, error) {
	var (
		doc      Document
		docType  string
		metadata []byte
	)
	err := row.Scan(&doc.ID, &doc.IdentityHash, &doc.ContentHash, &doc.Title,
		&docType, &metadata, &doc.Content, &doc.ChunkIDs, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scanning document: %v", ErrPersistence, err)
	}

	doc.Type = Type(docType)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("%w: parsing metadata: %v", ErrPersistence, err)
		}
	}
	return &doc, nil
}
