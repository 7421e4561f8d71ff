package answer

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/internal/chunkstore"
	"github.com/localrag/localrag/internal/llm"
	"github.com/localrag/localrag/internal/log"
)

// fakeClient scripts Generate and GenerateStream responses.
type fakeClient struct {
	generateText string
	generateErr  error
	fragments    []string
	streamErr    error

	generateCalls []string // last user message of each Generate call
	streamPrompts []llm.Message
}

func (f *fakeClient) Generate(_ context.Context, messages []llm.Message) (string, error) {
	f.generateCalls = append(f.generateCalls, messages[len(messages)-1].Text)
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.generateText, nil
}

func (f *fakeClient) GenerateStream(_ context.Context, messages []llm.Message) iter.Seq2[string, error] {
	f.streamPrompts = messages
	return func(yield func(string, error) bool) {
		for _, fr := range f.fragments {
			if !yield(fr, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}
}

// fakeRetriever scripts Search results.
type fakeRetriever struct {
	passages []chunkstore.Passage
	err      error
	queries  []string
}

func (f *fakeRetriever) Search(_ context.Context, query string, _ ...chunkstore.SearchOption) ([]chunkstore.Passage, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.passages, nil
}

func newTestPipeline(t *testing.T, client *fakeClient, retriever *fakeRetriever) *Pipeline {
	t.Helper()
	rewriter, err := NewRewriter(client, log.NewNop())
	require.NoError(t, err)
	p, err := NewPipeline(rewriter, retriever, client, 4, log.NewNop())
	require.NoError(t, err)
	return p
}

func TestRewriteSingleTurnSkipsModel(t *testing.T) {
	client := &fakeClient{generateText: "should not be used"}
	rewriter, err := NewRewriter(client, log.NewNop())
	require.NoError(t, err)

	got, err := rewriter.Rewrite(context.Background(), []llm.Message{llm.User("what is pgvector?")})
	require.NoError(t, err)
	assert.Equal(t, "what is pgvector?", got)
	assert.Empty(t, client.generateCalls, "single turn must not call the model")
}

func TestRewriteMultiTurnUsesModel(t *testing.T) {
	client := &fakeClient{generateText: "pgvector cosine distance operator"}
	rewriter, err := NewRewriter(client, log.NewNop())
	require.NoError(t, err)

	got, err := rewriter.Rewrite(context.Background(), []llm.Message{
		llm.User("tell me about pgvector"),
		llm.Assistant("pgvector stores embeddings in Postgres."),
		llm.User("how does it compare vectors?"),
	})
	require.NoError(t, err)
	assert.Equal(t, "pgvector cosine distance operator", got)
	require.Len(t, client.generateCalls, 1)
	assert.Contains(t, client.generateCalls[0], "how does it compare vectors?")
}

func TestRewriteFallsBackOnEmptyResponse(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"empty response error", &fakeClient{generateErr: llm.ErrEmptyResponse}},
		{"whitespace only", &fakeClient{generateText: "   \n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rewriter, err := NewRewriter(tt.client, log.NewNop())
			require.NoError(t, err)

			got, err := rewriter.Rewrite(context.Background(), []llm.Message{
				llm.User("first"),
				llm.Assistant("answer"),
				llm.User("the raw question"),
			})
			require.NoError(t, err)
			assert.Equal(t, "the raw question", got)
		})
	}
}

func TestRewriteEmptyConversation(t *testing.T) {
	rewriter, err := NewRewriter(&fakeClient{}, log.NewNop())
	require.NoError(t, err)

	_, err = rewriter.Rewrite(context.Background(), nil)
	require.Error(t, err)
}

func TestPipelineCitedPath(t *testing.T) {
	client := &fakeClient{fragments: []string{"According to ", "doc.pdf, yes."}}
	retriever := &fakeRetriever{passages: []chunkstore.Passage{
		{Text: "relevant passage", Source: "doc.pdf", Score: 0.9},
	}}
	p := newTestPipeline(t, client, retriever)

	var streamed []string
	turn, err := p.Run(context.Background(),
		[]llm.Message{llm.User("is it documented?")},
		func(text string) error {
			streamed = append(streamed, text)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, ModeCited, turn.Mode)
	assert.Equal(t, "According to doc.pdf, yes.", turn.Answer)
	assert.Equal(t, []string{"According to ", "doc.pdf, yes."}, streamed)
	assert.Len(t, turn.Passages, 1)

	// the answering prompt embeds the passage and its source
	var userContent string
	for _, m := range client.streamPrompts {
		if m.Role == llm.RoleUser {
			userContent = m.Text
		}
	}
	assert.Contains(t, userContent, "<source>doc.pdf</source>")
	assert.Contains(t, userContent, "relevant passage")
	assert.Contains(t, userContent, "<user_query>")
}

func TestPipelineNoDocumentsPath(t *testing.T) {
	client := &fakeClient{fragments: []string{"From general knowledge."}}
	retriever := &fakeRetriever{} // nothing retrieved
	p := newTestPipeline(t, client, retriever)

	turn, err := p.Run(context.Background(),
		[]llm.Message{llm.User("anything indexed?")}, nil)
	require.NoError(t, err)

	assert.Equal(t, ModeNoDocuments, turn.Mode)
	assert.Empty(t, turn.Passages)

	var userContent string
	for _, m := range client.streamPrompts {
		if m.Role == llm.RoleUser {
			userContent = m.Text
		}
	}
	assert.NotContains(t, userContent, "<documents>", "no-documents prompt must not carry a sources section")
}

func TestPipelineSearchTimeoutDegradesToNoDocuments(t *testing.T) {
	client := &fakeClient{fragments: []string{"answered without sources"}}
	retriever := &fakeRetriever{err: context.DeadlineExceeded}
	p := newTestPipeline(t, client, retriever)

	turn, err := p.Run(context.Background(),
		[]llm.Message{llm.User("slow index?")}, nil)
	require.NoError(t, err, "search timeout must not fail the turn")
	assert.Equal(t, ModeNoDocuments, turn.Mode)
}

func TestPipelineSearchErrorIsTerminal(t *testing.T) {
	client := &fakeClient{fragments: []string{"unused"}}
	retriever := &fakeRetriever{err: errors.New("index broken")}
	p := newTestPipeline(t, client, retriever)

	_, err := p.Run(context.Background(), []llm.Message{llm.User("q")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index broken")
}

func TestPipelineEmptyGenerationFails(t *testing.T) {
	client := &fakeClient{} // no fragments
	retriever := &fakeRetriever{}
	p := newTestPipeline(t, client, retriever)

	_, err := p.Run(context.Background(), []llm.Message{llm.User("q")}, nil)
	require.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestPipelineFragmentErrorAbortsTurn(t *testing.T) {
	client := &fakeClient{fragments: []string{"one", "two"}}
	retriever := &fakeRetriever{}
	p := newTestPipeline(t, client, retriever)

	_, err := p.Run(context.Background(),
		[]llm.Message{llm.User("q")},
		func(string) error { return errors.New("consumer gone") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consumer gone")
}

func TestPipelineRewrittenQueryDrivesRetrieval(t *testing.T) {
	client := &fakeClient{
		generateText: "expanded retrieval query",
		fragments:    []string{"answer"},
	}
	retriever := &fakeRetriever{}
	p := newTestPipeline(t, client, retriever)

	_, err := p.Run(context.Background(), []llm.Message{
		llm.User("earlier turn"),
		llm.Assistant("earlier answer"),
		llm.User("follow-up"),
	}, nil)
	require.NoError(t, err)

	require.Len(t, retriever.queries, 1)
	assert.Equal(t, "expanded retrieval query", retriever.queries[0])
}

func TestPipelineHistoryExcludesCurrentTurn(t *testing.T) {
	client := &fakeClient{fragments: []string{"ok"}}
	retriever := &fakeRetriever{}
	p := newTestPipeline(t, client, retriever)

	_, err := p.Run(context.Background(),
		[]llm.Message{llm.User("the only question")}, nil)
	require.NoError(t, err)

	var system string
	for _, m := range client.streamPrompts {
		if m.Role == llm.RoleSystem {
			system = m.Text
		}
	}
	require.NotEmpty(t, system)
	assert.False(t, strings.Contains(system, "the only question"),
		"current turn must not appear in the serialized history")
}
