// Package answer implements the retrieval-augmented answering pipeline:
// rewrite the query from conversation context, retrieve supporting passages,
// then generate either a cited or an uncited answer.
//
// The pipeline is a linear state machine (start → rewritten → retrieved →
// answered) with no back edges and no retries; any failure is terminal for
// the turn.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/localrag/localrag/internal/chunkstore"
	"github.com/localrag/localrag/internal/llm"
)

// Retriever is the slice of the chunk store the pipeline needs.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...chunkstore.SearchOption) ([]chunkstore.Passage, error)
}

// stage tracks the pipeline's progress through a turn.
type stage int

const (
	stageStart stage = iota
	stageRewritten
	stageRetrieved
	stageAnswered
)

func (s stage) String() string {
	switch s {
	case stageStart:
		return "start"
	case stageRewritten:
		return "rewritten"
	case stageRetrieved:
		return "retrieved"
	case stageAnswered:
		return "answered"
	default:
		return "unknown"
	}
}

// Turn is the result of one answering turn.
type Turn struct {
	Query    string // the rewritten retrieval query
	Mode     Mode
	Answer   string
	Passages []chunkstore.Passage // retrieved passages, for citation/audit use
}

// FragmentFunc receives answer fragments as the model streams them.
// Returning an error aborts the stream and fails the turn.
type FragmentFunc func(text string) error

// Pipeline drives one conversation turn end to end.
type Pipeline struct {
	rewriter  *Rewriter
	retriever Retriever
	client    llm.Client
	topK      int
	logger    *slog.Logger
}

// NewPipeline creates an answering pipeline.
// topK bounds the number of retrieved passages per turn (<=0 uses the
// chunk store default).
func NewPipeline(rewriter *Rewriter, retriever Retriever, client llm.Client, topK int, logger *slog.Logger) (*Pipeline, error) {
	if rewriter == nil {
		return nil, fmt.Errorf("rewriter is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		rewriter:  rewriter,
		retriever: retriever,
		client:    client,
		topK:      topK,
		logger:    logger,
	}, nil
}

// Run executes one turn over the conversation's full message history.
// onFragment, when non-nil, receives each answer fragment in arrival order;
// rewrite output is internal and never emitted through it.
func (p *Pipeline) Run(ctx context.Context, messages []llm.Message, onFragment FragmentFunc) (*Turn, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}
	current := stageStart

	// start → rewritten
	query, err := p.rewriter.Rewrite(ctx, messages)
	if err != nil {
		return nil, err
	}
	current = stageRewritten
	p.logger.Debug("pipeline stage", "stage", current, "query", query)

	// rewritten → retrieved
	passages, err := p.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	current = stageRetrieved
	p.logger.Debug("pipeline stage", "stage", current, "passages", len(passages))

	// retrieved → answered
	mode := selectMode(len(passages))
	answer, err := p.generate(ctx, messages, query, passages, mode, onFragment)
	if err != nil {
		return nil, err
	}
	current = stageAnswered
	p.logger.Debug("pipeline stage", "stage", current, "mode", mode, "answer_len", len(answer))

	return &Turn{
		Query:    query,
		Mode:     mode,
		Answer:   answer,
		Passages: passages,
	}, nil
}

// retrieve searches the chunk store for the rewritten query.
//
// Policy: a search timeout degrades to "no passages retrieved" so the turn
// falls through to the no-documents answering path; any other search error
// is terminal.
func (p *Pipeline) retrieve(ctx context.Context, query string) ([]chunkstore.Passage, error) {
	var opts []chunkstore.SearchOption
	if p.topK > 0 {
		opts = append(opts, chunkstore.WithTopK(p.topK))
	}

	passages, err := p.retriever.Search(ctx, query, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.logger.Warn("retrieval timed out, answering without documents", "query", query)
			return nil, nil
		}
		return nil, fmt.Errorf("retrieving passages: %w", err)
	}
	return passages, nil
}

// generate makes the single answering call for the turn, streaming fragments
// through onFragment when set.
func (p *Pipeline) generate(ctx context.Context, messages []llm.Message, query string,
	passages []chunkstore.Passage, mode Mode, onFragment FragmentFunc) (string, error) {

	spec := modeSpecs[mode]
	history := formatHistory(messages[:len(messages)-1])

	var userContent strings.Builder
	if section := formatPassages(passages, spec.passagesTitle); section != "" {
		userContent.WriteString(section)
		userContent.WriteString("\n\n")
	}
	fmt.Fprintf(&userContent, "User's question:\n<user_query>\n%s\n</user_query>\n\n%s",
		query, spec.instruction)

	prompt := []llm.Message{
		llm.System(fmt.Sprintf(spec.systemTemplate, history)),
		llm.User(userContent.String()),
	}

	var answer strings.Builder
	for fragment, err := range p.client.GenerateStream(ctx, prompt) {
		if err != nil {
			return "", fmt.Errorf("generating answer: %w", err)
		}
		answer.WriteString(fragment)
		if onFragment != nil {
			if err := onFragment(fragment); err != nil {
				return "", fmt.Errorf("forwarding fragment: %w", err)
			}
		}
	}

	if answer.Len() == 0 {
		return "", llm.ErrEmptyResponse
	}
	return answer.String(), nil
}
