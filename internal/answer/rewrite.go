package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/localrag/localrag/internal/llm"
)

// Rewriter turns a conversation into a single retrieval-optimized query.
type Rewriter struct {
	client llm.Client
	logger *slog.Logger
}

// NewRewriter creates a query rewriter.
func NewRewriter(client llm.Client, logger *slog.Logger) (*Rewriter, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{client: client, logger: logger}, nil
}

// Rewrite returns the retrieval query for the conversation's last turn.
//
// A single-turn conversation returns the turn's raw text without a model
// call: there is no context to fold in, and the common first-turn case
// should not pay for one. A rewrite that comes back empty after trimming
// falls back to the raw text, so the query is never empty.
func (r *Rewriter) Rewrite(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("conversation has no messages")
	}

	last := messages[len(messages)-1].Text
	if len(messages) == 1 {
		return last, nil
	}

	prompt := []llm.Message{
		llm.System(rewriteSystemPrompt(formatHistory(messages[:len(messages)-1]))),
		llm.User("Reformulate this query for better research results: " + last),
	}

	rewritten, err := r.client.Generate(ctx, prompt)
	if errors.Is(err, llm.ErrEmptyResponse) {
		r.logger.Debug("empty rewrite, falling back to raw query")
		return last, nil
	}
	if err != nil {
		return "", fmt.Errorf("rewriting query: %w", err)
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		r.logger.Debug("empty rewrite, falling back to raw query")
		return last, nil
	}

	r.logger.Debug("rewrote query", "original_len", len(last), "rewritten_len", len(rewritten))
	return rewritten, nil
}
