package llm

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	Model       string
	Temperature float32
	TopP        float32
}

// Gemini implements Client on the Gemini API.
//
// Gemini is safe for concurrent use by multiple goroutines.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	topP        float32
	logger      *slog.Logger
}

// NewGemini creates a Gemini client.
// The underlying client reads GEMINI_API_KEY from the environment.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Gemini{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		logger:      logger,
	}, nil
}

// Generate runs a single non-streaming completion.
func (g *Gemini) Generate(ctx context.Context, messages []Message) (string, error) {
	contents, config := g.convert(messages)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// GenerateStream runs a streaming completion, yielding text fragments in
// arrival order.
func (g *Gemini) GenerateStream(ctx context.Context, messages []Message) iter.Seq2[string, error] {
	contents, config := g.convert(messages)

	return func(yield func(string, error) bool) {
		sawText := false
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				yield("", fmt.Errorf("%w: %v", ErrGeneration, err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			sawText = true
			if !yield(text, nil) {
				return
			}
		}
		if !sawText {
			yield("", ErrEmptyResponse)
		}
	}
}

// convert maps role-tagged messages onto genai contents. System messages
// become the system instruction; consecutive system messages are joined.
func (g *Gemini) convert(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
		TopP:        genai.Ptr(g.topP),
	}

	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Text)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	return contents, config
}
