package chunkstore

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// VectorDimension is the embedding dimensionality used by the chunks table.
// The chunks.embedding column is declared vector(768); gemini-embedding-001
// supports truncation to 768 via OutputDimensionality.
const VectorDimension int32 = 768

const (
	// embedBatchSize is the maximum number of inputs per EmbedContent call.
	embedBatchSize = 100

	// embedConcurrency caps in-flight embedding requests for one Embed call.
	embedConcurrency = 4
)

// Embedder generates vector embeddings for text.
// Implementations must return one embedding per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GeminiEmbedder embeds text with the Gemini embedding API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates an embedder for the given model.
// The client reads GEMINI_API_KEY from the environment.
func NewGeminiEmbedder(ctx context.Context, model string) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// Embed generates embeddings for the given texts. Inputs beyond one API
// batch are split and embedded concurrently; results come back in input
// order regardless.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			return e.embedBatch(ctx, texts[start:end], vectors[start:end])
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// embedBatch embeds one batch, writing results into out (len(out) == len(texts)).
func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string, out [][]float32) error {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dim := VectorDimension
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return fmt.Errorf("empty embedding at index %d", i)
		}
		out[i] = emb.Values
	}
	return nil
}
