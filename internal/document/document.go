// Package document provides the document catalog: one persistent record per
// logical document, keyed by a stable identity hash, with a content hash for
// change detection and the set of chunk ids the document currently owns in
// the search index.
//
// Thread Safety: Catalog is safe for concurrent use; each mutation is a
// single statement or a single transaction.
package document

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type identifies the source format of a document.
type Type string

const (
	TypePDF      Type = "pdf"
	TypeMarkdown Type = "markdown"
)

// Valid reports whether t is a known document type.
func (t Type) Valid() bool {
	return t == TypePDF || t == TypeMarkdown
}

// Document is a catalog record for one logical document.
//
// IdentityHash is the stable key across re-uploads of "the same" document
// (same type and source identifier). ContentHash fingerprints the extracted
// text. ChunkIDs is the exact set of chunk ids currently held by the chunk
// store for this document; the ingestion ordering rules keep it free of
// dangling or missing references.
type Document struct {
	ID           uuid.UUID
	IdentityHash string
	ContentHash  string
	Title        string
	Type         Type
	Metadata     map[string]string
	Content      string
	ChunkIDs     []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sentinel errors for catalog operations. Check with errors.Is().
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrPersistence indicates the catalog could not commit a record.
	ErrPersistence = errors.New("catalog persistence failed")
)
