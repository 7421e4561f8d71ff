// Package chunkstore provides the similarity-search index over document
// chunks. Chunks are embedded on write and searched by vector similarity,
// backed by PostgreSQL + pgvector.
package chunkstore

import (
	"errors"
	"time"
)

// Chunk is a bounded slice of a document's text submitted for indexing.
type Chunk struct {
	Content  string
	Source   string            // source identifier, e.g. the uploaded filename
	Metadata map[string]string // optional extra metadata
}

// Passage is a retrieved chunk with its similarity score.
type Passage struct {
	Text   string
	Source string
	Score  float32 // cosine similarity (0-1)
}

// ErrStore indicates a chunk store operation failed.
// Check with errors.Is().
var ErrStore = errors.New("chunk store operation failed")

// searchTimeout bounds vector search queries so a slow index cannot
// stall an answering turn.
const searchTimeout = 10 * time.Second

// SearchOption configures search behavior using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	timeout time.Duration
}

// WithTopK sets the maximum number of passages to return. Default is 4.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithTimeout overrides the default search timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    4,
		timeout: searchTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
